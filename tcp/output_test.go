package tcp

import "testing"

// TestOutputNoSpuriousAckWhenIdle is a regression test: once the send
// queue is drained and nothing forces an immediate ack, output must emit
// nothing, even when the congestion window happens to equal exactly one
// MSS (the case right after a passive open's initial CWND is set to mss).
func TestOutputNoSpuriousAckWhenIdle(t *testing.T) {
	cs := &connectionState{id: ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}}
	cs.cb.resetSnd(100, 0)
	cs.cb.resetRcv(4096, 500)
	cs.cb.maxseg = 536
	cs.cb.snd.CWND = 536 // equals maxseg exactly, the triggering case.
	cs.cb.snd.WND = 4096

	segs := cs.output(testNow)
	if len(segs) != 0 {
		t.Fatalf("got %d segments, want 0 (nothing pending, no ack forced)", len(segs))
	}
}

// TestOutputEmitsForcedAck confirms the companion case still works: a
// forced ack with no data pending must still produce exactly one
// zero-payload segment.
func TestOutputEmitsForcedAck(t *testing.T) {
	cs := &connectionState{id: ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}}
	cs.cb.resetSnd(100, 0)
	cs.cb.resetRcv(4096, 500)
	cs.cb.maxseg = 536
	cs.cb.snd.CWND = 536
	cs.cb.snd.WND = 4096
	cs.cb.shouldAckNow = true

	segs := cs.output(testNow)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1 forced ack", len(segs))
	}
	if segs[0].DataLen != 0 || segs[0].Flags.Mask() != FlagACK {
		t.Fatalf("got seg %v, want a bare zero-payload ACK", segs[0])
	}
}

// TestOutputNeverCombinesSynFinRst checks a handful of representative
// control-block states never produce a segment with more than one of
// SYN/FIN/RST set at once.
func TestOutputNeverCombinesSynFinRst(t *testing.T) {
	cs := &connectionState{id: ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}}
	cs.cb.resetSnd(100, 0)
	cs.cb.resetRcv(4096, 500)
	cs.cb.maxseg = 536
	cs.cb.snd.CWND = 536
	cs.cb.snd.WND = 4096
	cs.sndq = []byte("final bytes before close")
	cs.cantSndMore = true

	segs := cs.output(testNow)
	for _, seg := range segs {
		n := 0
		if seg.Flags.HasAny(FlagSYN) {
			n++
		}
		if seg.Flags.HasAny(FlagFIN) {
			n++
		}
		if seg.Flags.HasAny(FlagRST) {
			n++
		}
		if n > 1 {
			t.Fatalf("segment %v sets more than one of SYN/FIN/RST", seg)
		}
	}
}

// TestSendSequenceSpaceInvariant checks snd.una <= snd.nxt <= snd.max holds
// after a representative sequence of sends and partial acks.
func TestSendSequenceSpaceInvariant(t *testing.T) {
	cs := &connectionState{id: ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}}
	cs.cb.resetSnd(100, 0)
	cs.cb.resetRcv(4096, 500)
	cs.cb.maxseg = 536
	cs.cb.snd.CWND = 4096
	cs.cb.snd.WND = 4096
	cs.sndq = make([]byte, 1200)

	check := func() {
		t.Helper()
		if GreaterThan(cs.cb.snd.UNA, cs.cb.snd.NXT) {
			t.Fatalf("snd.una=%d > snd.nxt=%d", cs.cb.snd.UNA, cs.cb.snd.NXT)
		}
		if GreaterThan(cs.cb.snd.NXT, cs.cb.snd.MAX) {
			t.Fatalf("snd.nxt=%d > snd.max=%d", cs.cb.snd.NXT, cs.cb.snd.MAX)
		}
	}

	cs.output(testNow)
	check()

	ackSeg := Segment{SEQ: 500, ACK: Add(cs.cb.snd.ISS, 600), WND: 4096, Flags: FlagACK}
	cs.di3AckStuff(testNow, ackSeg)
	check()
}
