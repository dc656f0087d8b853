package tcp

import (
	"net/netip"
	"testing"
	"time"
)

func newHandleTestEngine() *Engine {
	seed := byte(1)
	return NewEngine(EngineConfig{RNG: func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			seed++
			b[i] = seed
		}
		return b
	}})
}

var (
	clientAddr = netip.MustParseAddr("10.0.0.1")
	serverAddr = netip.MustParseAddr("10.0.0.2")
)

// TestPassiveOpenFullHandshake walks an Engine through deliver_in_1 (bare
// SYN against a listening port), deliver_in_3c_3d (final ACK completing
// SYN_RECEIVED), and confirms the connection reaches ESTABLISHED and
// reports EventEstablished exactly once.
func TestPassiveOpenFullHandshake(t *testing.T) {
	e := newHandleTestEngine()
	if err := e.Listen(7); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	syn := Segment{SrcPort: 1234, DstPort: 7, SEQ: 100, WND: 4096, Flags: FlagSYN}
	outs, events := e.Handle(testNow, clientAddr, serverAddr, syn)
	if len(events) != 0 {
		t.Fatalf("got %d events on SYN, want 0", len(events))
	}
	if len(outs) != 1 || outs[0].Seg.Flags.Mask() != synack {
		t.Fatalf("got %d outs, want 1 SYN+ACK", len(outs))
	}
	synAck := outs[0].Seg
	if synAck.ACK != Value(101) {
		t.Fatalf("got ACK=%d, want 101", synAck.ACK)
	}

	id := ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}
	ack := Segment{SrcPort: 1234, DstPort: 7, SEQ: 101, ACK: synAck.SEQ.Incr(), WND: 4096, Flags: FlagACK}
	outs, events = e.Handle(testNow, clientAddr, serverAddr, ack)
	if len(outs) != 0 {
		t.Fatalf("got %d outs on final ACK, want 0", len(outs))
	}
	if len(events) != 1 || events[0].Kind != EventEstablished || events[0].ID != id {
		t.Fatalf("got events %+v, want single EventEstablished for %v", events, id)
	}
	if !e.Exists(id) {
		t.Fatal("connection should still exist after handshake completes")
	}
}

// TestSimultaneousOpenDeliverIn2b exercises deliver_in_2b: a connection in
// SYN_SENT that receives a bare SYN (rather than a SYN+ACK) transitions to
// SYN_RECEIVED and replies with its own SYN+ACK, rather than treating the
// segment as unacceptable. Flagged in spec.md §9 as an untested path in the
// reference this module is grounded on.
func TestSimultaneousOpenDeliverIn2b(t *testing.T) {
	e := newHandleTestEngine()
	id, outs, err := e.Connect(testNow, clientAddr, serverAddr, 7, ConnConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(outs) != 1 || outs[0].Seg.Flags.Mask() != FlagSYN {
		t.Fatalf("got %d outs, want 1 bare SYN", len(outs))
	}

	peerSyn := Segment{SrcPort: 7, DstPort: id.LocalPort, SEQ: 9000, WND: 4096, Flags: FlagSYN}
	outs, events := e.Handle(testNow, serverAddr, clientAddr, peerSyn)
	if len(events) != 0 {
		t.Fatalf("got %d events, want 0 (not yet established)", len(events))
	}
	if len(outs) != 1 || outs[0].Seg.Flags.Mask() != synack {
		t.Fatalf("got %d outs, want 1 SYN+ACK reply", len(outs))
	}

	cs, ok := e.conns[id]
	if !ok {
		t.Fatal("connection should still be tracked")
	}
	if cs.cb.state != StateSynRcvd {
		t.Fatalf("got state %v, want SYN-RECEIVED", cs.cb.state)
	}
	if cs.cb.rcv.IRS != 9000 {
		t.Fatalf("got rcv.IRS=%d, want 9000", cs.cb.rcv.IRS)
	}
}

// TestTimeWaitIgnoresRST exercises the RFC 1337 defense: a RST arriving
// while a connection sits in TIME_WAIT must not destroy it, only restart
// the 2MSL timer, and must emit nothing back to the peer.
func TestTimeWaitIgnoresRST(t *testing.T) {
	cs := &connectionState{id: ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}}
	cs.cb.state = StateTimeWait
	cs.cb.resetRcv(4096, 500)
	cs.cb.resetSnd(100, 4096)

	rst := Segment{SrcPort: 1234, DstPort: 7, SEQ: 500, Flags: FlagRST}
	events, destroyed, _ := cs.deliverIn3(testNow, rst)
	if destroyed {
		t.Fatal("RST in TIME_WAIT must not destroy the connection")
	}
	if len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
	if !cs.cb.tt2msl.active {
		t.Fatal("2MSL timer should be (re)armed after the RST")
	}
}

// TestEstablishedRstDestroysConnection confirms the companion case: a RST
// exactly at rcv.NXT in a synchronized, non-TIME_WAIT state does destroy
// the connection.
func TestEstablishedRstDestroysConnection(t *testing.T) {
	cs := &connectionState{id: ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}}
	cs.cb.state = StateEstablished
	cs.cb.resetRcv(4096, 500)
	cs.cb.resetSnd(100, 4096)

	rst := Segment{SrcPort: 1234, DstPort: 7, SEQ: 500, Flags: FlagRST}
	events, destroyed, cause := cs.deliverIn3(testNow, rst)
	if !destroyed || cause != CauseRST {
		t.Fatalf("got destroyed=%v cause=%v, want true/CauseRST", destroyed, cause)
	}
	if len(events) != 1 || events[0].Kind != EventDrop {
		t.Fatalf("got events %+v, want single EventDrop", events)
	}
}

// TestSimultaneousClose drives one side of a simultaneous close from
// FIN_WAIT_1 through CLOSING to TIME_WAIT, rather than the more common FIN_WAIT_1 ->
// FIN_WAIT_2 -> TIME_WAIT path one side takes when its peer's FIN lags
// behind the peer's ACK of our own FIN.
func TestSimultaneousClose(t *testing.T) {
	cs := &connectionState{}
	cs.cb.state = StateFinWait1

	destroyed, _ := cs.di3StStuff(testNow, true, false)
	if destroyed {
		t.Fatal("unexpected destroy")
	}
	if cs.cb.state != StateClosing {
		t.Fatalf("got state %v, want CLOSING", cs.cb.state)
	}

	destroyed, _ = cs.di3StStuff(testNow.Add(time.Second), false, true)
	if destroyed {
		t.Fatal("unexpected destroy")
	}
	if cs.cb.state != StateTimeWait {
		t.Fatalf("got state %v, want TIME-WAIT", cs.cb.state)
	}
}

// TestDataStuffQueuesOverlappingTrailingBytes exercises the shape
// acceptable() admits but the equal/greater-than split in di3DataStuff
// used to silently drop: a segment whose start lies behind rcv.NXT (so
// neither branch's guard matched) but whose end reaches past it. The
// trailing, not-yet-delivered bytes must still reach the connection once
// the gap in front of rcv.NXT is filled.
func TestDataStuffQueuesOverlappingTrailingBytes(t *testing.T) {
	cs := &connectionState{rcvBufSize: defaultBufSize}
	cs.cb.resetRcv(4096, 0)
	cs.cb.rcv.NXT = 100

	// seq=95 overlaps [95,100) already delivered and carries 10 new bytes
	// through [100,105).
	overlapping := Segment{SEQ: 95, DataLen: 10, Payload: bytesOf(10, 'x')}
	fin := cs.di3DataStuff(overlapping)
	if fin {
		t.Fatal("unexpected fin")
	}
	if cs.cb.rcv.NXT != 100 {
		t.Fatalf("rcv.NXT should not advance from an out-of-order arrival, got %d", cs.cb.rcv.NXT)
	}
	if got := cs.cb.reassembly.totalBytes(); got == 0 {
		t.Fatal("overlapping segment's trailing bytes should have been queued for reassembly, got nothing queued")
	}

	data, _, ok := cs.cb.reassembly.maybeTake(100)
	if !ok {
		t.Fatal("maybeTake(100) should succeed once the queued element covers rcv.NXT")
	}
	want := bytesOf(5, 'x')
	if string(data) != string(want) {
		t.Fatalf("got %q, want %q (the 5 bytes of the segment past rcv.NXT)", data, want)
	}
}
