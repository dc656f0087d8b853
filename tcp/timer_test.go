package tcp

import (
	"testing"
	"time"
)

// TestTickRetransmitsBeforeGivingUp drives the retransmit timer through
// repeated expiries and checks the connection survives with a
// retransmitted segment each time, up to the shift bound, then is finally
// dropped with CauseRetransmissionExceeded.
func TestTickRetransmitsBeforeGivingUp(t *testing.T) {
	e := newHandleTestEngine()
	id := ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}
	cs := &connectionState{id: id, sndBufSize: defaultBufSize, rcvBufSize: defaultBufSize}
	cs.cb.resetSnd(100, 4096)
	cs.cb.resetRcv(4096, 500)
	cs.cb.maxseg = 536
	cs.sndq = []byte("payload")
	cs.cb.state = StateEstablished
	cs.cb.startRexmt(testNow, rexmtModeData)
	e.conns[id] = cs

	now := testNow
	for i := 0; i < maxRexmtShift; i++ {
		now = cs.cb.rexmt.deadline
		events, outs := e.Tick(now)
		if len(events) != 0 {
			t.Fatalf("iteration %d: got %d events, want 0 (still within shift bound)", i, len(events))
		}
		if len(outs) != 1 {
			t.Fatalf("iteration %d: got %d outs, want 1 retransmitted segment", i, len(outs))
		}
		if !e.Exists(id) {
			t.Fatalf("iteration %d: connection dropped too early", i)
		}
	}

	now = cs.cb.rexmt.deadline
	events, _ := e.Tick(now)
	if len(events) != 1 || events[0].Kind != EventDrop || events[0].Cause != CauseRetransmissionExceeded {
		t.Fatalf("got events %+v, want single CauseRetransmissionExceeded drop", events)
	}
	if e.Exists(id) {
		t.Fatal("connection should be gone after exceeding the retransmit shift bound")
	}
}

// TestTickTimeWaitExpiryDropsConnection checks the 2MSL timer tears down a
// TIME_WAIT connection once it fires, with no segment emitted.
func TestTickTimeWaitExpiryDropsConnection(t *testing.T) {
	e := newHandleTestEngine()
	id := ConnID{LocalAddr: serverAddr, LocalPort: 7, RemoteAddr: clientAddr, RemotePort: 1234}
	cs := &connectionState{id: id, sndBufSize: defaultBufSize, rcvBufSize: defaultBufSize}
	cs.cb.resetSnd(100, 4096)
	cs.cb.resetRcv(4096, 500)
	cs.cb.state = StateTimeWait
	cs.cb.tt2msl.set(struct{}{}, testNow, twoMSL)
	e.conns[id] = cs

	events, outs := e.Tick(testNow.Add(twoMSL))
	if len(outs) != 0 {
		t.Fatalf("got %d outs, want 0", len(outs))
	}
	if len(events) != 1 || events[0].Kind != EventDrop || events[0].Cause != CauseTimer2MSL {
		t.Fatalf("got events %+v, want single CauseTimer2MSL drop", events)
	}
	if e.Exists(id) {
		t.Fatal("connection should be removed once 2MSL fires")
	}
}

// TestRexmtBackoffDoublesAndCaps checks the exponential shape and the cap.
func TestRexmtBackoffDoublesAndCaps(t *testing.T) {
	base := 200 * time.Millisecond
	if got := rexmtBackoff(base, 0); got != base {
		t.Fatalf("shift 0: got %v, want %v", got, base)
	}
	if got := rexmtBackoff(base, 1); got != 2*base {
		t.Fatalf("shift 1: got %v, want %v", got, 2*base)
	}
	if got := rexmtBackoff(base, 31); got != 64*time.Second {
		t.Fatalf("shift 31: got %v, want capped at 64s", got)
	}
}
