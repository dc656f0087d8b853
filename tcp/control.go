package tcp

import (
	"math"
	"time"
)

// sendSpace holds the send sequence space (RFC 9293 §3.3.1), extended with
// congestion control scalars.
type sendSpace struct {
	ISS      Value // initial send sequence number.
	UNA      Value // oldest unacknowledged byte.
	NXT      Value // next byte to send.
	MAX      Value // highest byte ever sent (for duplicate-ACK / retransmit bookkeeping).
	WND      Size  // window advertised by remote, with the negotiated scale applied (see scaledWindow).
	WL1      Value // seq of segment used for last window update.
	WL2      Value // ack of segment used for last window update.
	CWND     Size  // congestion window.
	SSTHRESH Size  // slow-start threshold.
	RECOVER  Value // highest seq sent before entering fast recovery.
}

func (s *sendSpace) inFlight() Size { return Sizeof(s.UNA, s.NXT) }

// recvSpace holds the receive sequence space.
type recvSpace struct {
	IRS         Value // initial receive sequence number.
	NXT         Value // next expected byte.
	WND         Size  // window we advertise.
	ADV         Value // right edge of window last advertised (NXT+WND at last output).
	LastAckSent Value
	RxWin0Sent  bool // true if we have told remote our window is zero.
}

// controlBlock is the per-connection Transmission Control Block described
// in §3 of the spec, grounded on the teacher's tcp.ControlBlock but
// extended with reassembly, RTT/backoff timers, and congestion control the
// teacher's restricted "sequential segments only" model did not need.
type controlBlock struct {
	logger

	state State

	snd sendSpace
	rcv recvSpace

	// Negotiated connection parameters.
	maxseg        Size // t_maxseg: negotiated MSS for sending.
	advmss        uint16
	tfDoingWS     bool
	sndScale      uint8
	rcvScale      uint8
	requestRScale bool

	// Timers.
	rexmt     rexmtTimer
	tt2msl    timed[struct{}]
	ttDelack  timed[struct{}]
	ttConnEst timed[struct{}]
	ttFinW2   timed[struct{}]
	idleSince time.Time

	// RTT estimation.
	rttSeg timed[Value] // sequence number whose RTT is currently being timed.
	rttInf rttInfo

	// Retransmit / fast-recovery state.
	dupAcks     uint8
	badRxtWin   time.Time // window during which a spurious-retransmit detection would fire.
	prevCWND    Size
	prevSSTHRESH Size

	// Output bookkeeping.
	shouldAckNow bool
	finSent      bool  // true once the output path has actually transmitted our FIN.
	finSeq       Value // sequence number carried by our FIN, valid iff finSent.

	// Reassembly queue for out-of-order segments.
	reassembly reassemblyQueue

	// Soft error reported by a lower layer (e.g. ICMP), surfaced on the
	// next failing user call.
	softError error
}

// advertisedWindow returns the window value to place on an outgoing
// segment: our receive window, scaled down and capped at 65535 as
// required by the wire format (the scale factor itself is carried out of
// band via the WS option once negotiated).
func (cb *controlBlock) advertisedWindow() Size {
	w := cb.rcv.WND >> cb.rcvScale
	if w > math.MaxUint16 {
		w = math.MaxUint16
	}
	return w
}

// scaledWindow applies the negotiated send-side window scale to a raw
// window value carried on an incoming segment (RFC 9293 §3.2.2): the
// peer's WS option, once negotiated, tells us how to interpret every
// window field they send from then on, including the one on the SYN/ACK
// itself.
func (cb *controlBlock) scaledWindow(raw Size) Size {
	if !cb.tfDoingWS {
		return raw
	}
	return raw << cb.sndScale
}

func (cb *controlBlock) resetSnd(iss Value, wnd Size) {
	cb.snd = sendSpace{ISS: iss, UNA: iss, NXT: iss, MAX: iss, WND: wnd}
}

func (cb *controlBlock) resetRcv(wnd Size, irs Value) {
	cb.rcv = recvSpace{IRS: irs, NXT: irs, WND: wnd, ADV: Add(irs, wnd)}
}

// acceptable implements the RFC 9293 §3.10.7.2 segment acceptability test,
// generalised for the zero-window case per §4.4 of the spec: a zero-length
// segment against a zero receive window is acceptable only if its
// sequence number exactly matches rcv.NXT.
func (cb *controlBlock) acceptable(seg Segment) bool {
	segLen := seg.LEN()
	if cb.rcv.WND == 0 {
		return segLen == 0 && seg.SEQ == cb.rcv.NXT
	}
	windowEnd := Add(cb.rcv.NXT, cb.rcv.WND)
	if segLen == 0 {
		return InRange(seg.SEQ, cb.rcv.NXT, windowEnd)
	}
	if InRange(seg.SEQ, cb.rcv.NXT, windowEnd) {
		return true
	}
	last := Add(seg.SEQ, segLen-1)
	return InRange(last, cb.rcv.NXT, windowEnd)
}

// startRexmt arms the retransmit timer in the given mode using the current
// RTO estimate backed off by the timer's own shift.
func (cb *controlBlock) startRexmt(now time.Time, mode rexmtMode) {
	base := cb.rttInf.rto()
	cb.rexmt.mode = mode
	cb.rexmt.set(struct{}{}, now, rexmtBackoff(base, cb.rexmt.shift))
}

// cancelRexmt disarms the retransmit timer and resets its backoff shift,
// called once all outstanding data has been acknowledged.
func (cb *controlBlock) cancelRexmt() {
	cb.rexmt.stop()
	cb.rexmt.shift = 0
}
