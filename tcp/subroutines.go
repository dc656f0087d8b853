package tcp

import "time"

// defaultRemoteMSS is substituted when a peer's SYN carries no MSS option,
// per RFC 9293 §3.7.1.
const defaultRemoteMSS = 536

// chooseMSS negotiates the segment size we will use for sending: the
// peer's advertised MSS (or the RFC default if absent), clamped to our own
// local ceiling.
func chooseMSS(remoteMSS uint16, localCeiling uint16) Size {
	mss := remoteMSS
	if mss == 0 {
		mss = defaultRemoteMSS
	}
	if mss > localCeiling {
		mss = localCeiling
	}
	return Size(mss)
}

// negotiateWindowScale honours the remote's WS option (RFC 9293 §3.2.2)
// when present and within the legal shift range; otherwise window scaling
// is not used for this connection.
func negotiateWindowScale(remoteHasWS bool, remoteWS uint8, localShift uint8) (doingWS bool, sndScale uint8) {
	if !remoteHasWS || remoteWS > 14 {
		return false, 0
	}
	return true, remoteWS
}

// initialCongestionState picks the starting congestion window and
// slow-start threshold for a freshly synchronized connection: cwnd opens
// at one segment (classic slow start), ssthresh starts unconstrained at
// the full send window so the first loss is what actually sets it.
func initialCongestionState(mss Size, sndBufSize int) (cwnd, ssthresh Size) {
	return mss, Size(sndBufSize)
}

// maybeStartRTTTiming begins timing the round trip for seq if no sample is
// currently in flight. rttSeg.deadline is repurposed here as a start
// timestamp (the field holds "the instant to compare now against"; for
// RTT timing that instant is when the timed segment was sent, not an
// expiry).
func (cb *controlBlock) maybeStartRTTTiming(now time.Time, seq Value) {
	if cb.rttSeg.active {
		return
	}
	cb.rttSeg.val = seq
	cb.rttSeg.deadline = now
	cb.rttSeg.active = true
}

// feedRTTSample folds a new sample into the estimator if ackedThru has
// caught up with the segment currently being timed.
func (cb *controlBlock) feedRTTSample(now time.Time, ackedThru Value) {
	if !cb.rttSeg.active {
		return
	}
	if !GreaterThanEq(ackedThru, cb.rttSeg.val) {
		return
	}
	cb.rttInf.update(now.Sub(cb.rttSeg.deadline))
	cb.rttSeg.stop()
}

// onLoss applies the classic Van Jacobson multiplicative decrease:
// ssthresh drops to half the in-flight data (floored at two segments),
// cwnd collapses to one segment to restart slow start.
func (cb *controlBlock) onLoss() {
	inFlight := cb.snd.inFlight()
	half := inFlight / 2
	if half < 2*cb.maxseg {
		half = 2 * cb.maxseg
	}
	cb.snd.SSTHRESH = half
	cb.snd.CWND = cb.maxseg
}

// growCongestionWindow applies slow start below ssthresh and linear
// (additive increase) growth above it, called once per ACK that advances snd.UNA.
func (cb *controlBlock) growCongestionWindow(acked Size) {
	if cb.snd.CWND < cb.snd.SSTHRESH {
		cb.snd.CWND += acked
		return
	}
	// Additive increase: roughly one segment per window of data acked.
	increment := (cb.maxseg*acked)/cb.snd.CWND + 1
	cb.snd.CWND += increment
}
