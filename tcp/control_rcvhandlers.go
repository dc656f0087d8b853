package tcp

import (
	"log/slog"
	"net/netip"
	"time"
)

// Timer durations for the connection-lifetime timers. The spec leaves
// these as policy, not protocol; these values follow common BSD-derived
// defaults rather than the strict RFC 793 MSL=2min (which would make
// TIME_WAIT last four minutes per connection).
const (
	msl             = 30 * time.Second
	twoMSL          = 2 * msl
	finWait2Timeout = 10 * time.Minute
	connEstTimeout  = 75 * time.Second
)

// passiveOpen implements deliver_in_1: admission of a bare SYN on a
// listening port, grounded on the teacher's rcvListen.
func (e *Engine) passiveOpen(now time.Time, localAddr, remoteAddr netip.Addr, localPort uint16, seg Segment, cfg ConnConfig) (*connectionState, Segment) {
	cfg = cfg.withDefaults()
	cs := &connectionState{
		id:         ConnID{LocalAddr: localAddr, LocalPort: localPort, RemoteAddr: remoteAddr, RemotePort: seg.SrcPort},
		sndBufSize: cfg.SndBufSize,
		rcvBufSize: cfg.RcvBufSize,
	}
	cb := &cs.cb
	cb.log = e.log

	iss := e.genISN()
	cb.resetSnd(iss, 0)
	cb.resetRcv(Size(cfg.RcvBufSize), Add(seg.SEQ, 1))

	cb.maxseg = chooseMSS(seg.MSS, cfg.AdvertisedMSS)
	cb.advmss = cfg.AdvertisedMSS
	cb.tfDoingWS, cb.sndScale = negotiateWindowScale(seg.HasWS, seg.WS, cfg.RcvWindowScaleShift)
	if cb.tfDoingWS {
		cb.rcvScale = cfg.RcvWindowScaleShift
		cb.requestRScale = true
	}
	cb.snd.CWND, cb.snd.SSTHRESH = initialCongestionState(cb.maxseg, cfg.SndBufSize)
	cb.state = StateSynRcvd

	cb.startRexmt(now, rexmtModeSyn)
	cb.ttConnEst.set(struct{}{}, now, connEstTimeout)

	reply := makeSynAck(cb)
	reply.SrcPort, reply.DstPort = localPort, seg.SrcPort
	cb.snd.NXT = cb.snd.NXT.Incr()
	cb.snd.MAX = cb.snd.NXT

	e.conns[cs.id] = cs
	e.debug("passive open", slog.String("id", cs.id.String()))
	return cs, reply
}

// deliverIn2 handles SYN_SENT per deliver_in_2/2a/2b.
func (cs *connectionState) deliverIn2(now time.Time, seg Segment) (established bool, reply Segment, hasReply bool, drop bool) {
	cb := &cs.cb
	switch {
	case seg.Flags.Mask() == synack && seg.ACK == cb.snd.NXT:
		cb.rcv.IRS = seg.SEQ
		cb.rcv.NXT = seg.SEQ.Incr()
		cb.snd.UNA = seg.ACK
		cb.maxseg = chooseMSS(seg.MSS, cb.advmss)
		cb.snd.CWND, cb.snd.SSTHRESH = initialCongestionState(cb.maxseg, cs.sndBufSize)
		if cb.requestRScale && seg.HasWS && seg.WS <= 14 {
			cb.tfDoingWS = true
			cb.sndScale = seg.WS
		} else {
			cb.requestRScale = false
			cb.rcvScale = 0
		}
		cb.snd.WND = cb.scaledWindow(seg.WND)
		cb.snd.WL1, cb.snd.WL2 = seg.SEQ, seg.ACK
		cb.cancelRexmt()
		cb.ttConnEst.stop()
		cb.state = StateEstablished
		cb.feedRTTSample(now, seg.ACK)
		cb.shouldAckNow = true
		return true, Segment{}, false, false

	case seg.Flags.Mask() == FlagSYN:
		// deliver_in_2b: simultaneous open. Specified but flagged as
		// untested in the reference (spec.md §9); implemented per the
		// teacher's own rcvSynSent, which already takes this branch.
		cb.rcv.IRS = seg.SEQ
		cb.rcv.NXT = seg.SEQ.Incr()
		cb.state = StateSynRcvd
		reply = makeSynAck(cb)
		reply.SrcPort, reply.DstPort = cs.id.LocalPort, cs.id.RemotePort
		cb.snd.NXT = cb.snd.NXT.Incr()
		cb.snd.MAX = cb.snd.NXT
		return false, reply, true, false

	case seg.Flags.HasAll(FlagACK|FlagRST) && seg.ACK == cb.snd.NXT:
		return false, Segment{}, false, true

	default:
		return false, Segment{}, false, false
	}
}

// deliverIn3c3d handles SYN_RECEIVED per deliver_in_3c_3d.
func (cs *connectionState) deliverIn3c3d(now time.Time, seg Segment) (established bool, rst Segment, hasRst bool, drop bool) {
	cb := &cs.cb
	if seg.SEQ == cb.rcv.NXT && seg.Flags.Mask() == FlagACK && seg.ACK == cb.snd.NXT {
		cb.snd.UNA = seg.ACK
		cb.snd.WND = cb.scaledWindow(seg.WND)
		cb.snd.WL1, cb.snd.WL2 = seg.SEQ, seg.ACK
		cb.cancelRexmt()
		cb.ttConnEst.stop()
		cb.state = StateEstablished
		return true, Segment{}, false, false
	}
	r, ok := dropWithReset(seg)
	return false, r, ok, true
}

// deliverIn3 handles every synchronized state (ESTABLISHED and beyond),
// covering the RFC 5961/1337 branches and the deliver_in_3 family
// (di3_ackstuff/di3_datastuff/di3_ststuff).
func (cs *connectionState) deliverIn3(now time.Time, seg Segment) (events []Event, destroyed bool, cause DropCause) {
	cb := &cs.cb

	if !cb.acceptable(seg) {
		cb.shouldAckNow = true
		return nil, false, 0
	}

	if seg.Flags.HasAny(FlagRST) {
		if cb.state == StateTimeWait {
			// RFC 1337: ignore RST in TIME_WAIT outright rather than
			// destroying a connection that is already winding down.
			cb.tt2msl.set(struct{}{}, now, twoMSL)
			return nil, false, 0
		}
		if seg.SEQ == cb.rcv.NXT {
			return []Event{{Kind: EventDrop, ID: cs.id, Cause: CauseRST}}, true, CauseRST
		}
		// RFC 5961: off-sequence RST is not actionable, answer with a challenge ACK.
		cb.shouldAckNow = true
		return nil, false, 0
	}

	if seg.Flags.HasAny(FlagSYN) {
		// RFC 5961: SYN in a synchronized state never destroys the
		// connection, just provokes a challenge ACK.
		cb.shouldAckNow = true
		return nil, false, 0
	}

	cb.idleSince = now
	ourFinAcked := cs.di3AckStuff(now, seg)
	fin := cs.di3DataStuff(seg)
	if fin || seg.DataLen > 0 {
		cb.shouldAckNow = true
		events = append(events, Event{Kind: EventReceived, ID: cs.id})
	}

	destroyed, cause = cs.di3StStuff(now, fin, ourFinAcked)
	if destroyed {
		events = append(events, Event{Kind: EventDrop, ID: cs.id, Cause: cause})
	}
	return events, destroyed, cause
}

// di3AckStuff implements the ACK-processing half of deliver_in_3: advance
// snd.UNA, detect duplicate ACKs, manage the retransmit timer, feed the
// RTT estimator, and report whether our own FIN is now fully acked.
func (cs *connectionState) di3AckStuff(now time.Time, seg Segment) (ourFinAcked bool) {
	cb := &cs.cb
	if !seg.Flags.HasAny(FlagACK) {
		return false
	}
	if LessThan(seg.ACK, cb.snd.UNA) {
		// Stale ack, behind snd.una: per the open-question decision
		// (spec.md §9), the strict-< reading is used, so this ack is
		// simply ignored rather than treated as a duplicate.
		return cb.finSent && GreaterThanEq(cb.snd.UNA, cb.finSeq.Incr())
	}

	advanced := GreaterThan(seg.ACK, cb.snd.UNA)
	isDupCandidate := !advanced && seg.DataLen == 0 && seg.WND == cb.snd.WND &&
		cb.rexmt.active && cb.rexmt.mode == rexmtModeData && !(cb.finSent && seg.Flags.HasAny(FlagFIN))

	switch {
	case isDupCandidate:
		cb.dupAcks++
		if cb.dupAcks == 3 {
			cb.onLoss()
		}
	case advanced:
		cb.dupAcks = 0
		ackedBytes := Sizeof(cb.snd.UNA, seg.ACK)
		cb.growCongestionWindow(ackedBytes)
		cb.feedRTTSample(now, seg.ACK)
		cb.snd.UNA = seg.ACK
		if int(ackedBytes) <= len(cs.sndq) {
			cs.sndq = cs.sndq[ackedBytes:]
		} else {
			cs.sndq = cs.sndq[:0]
		}
		if seg.ACK == cb.snd.MAX {
			cb.cancelRexmt()
		} else {
			cb.rexmt.shift = 0
			cb.startRexmt(now, rexmtModeData)
		}
	}

	if GreaterThan(seg.SEQ, cb.snd.WL1) || (seg.SEQ == cb.snd.WL1 && GreaterThanEq(seg.ACK, cb.snd.WL2)) {
		cb.snd.WND = cb.scaledWindow(seg.WND)
		cb.snd.WL1 = seg.SEQ
		cb.snd.WL2 = seg.ACK
	}

	ourFinAcked = cb.finSent && GreaterThanEq(cb.snd.UNA, cb.finSeq.Incr())
	return ourFinAcked
}

// di3DataStuff implements the data-delivery half of deliver_in_3: deliver
// in-order payload directly, queue out-of-order payload for reassembly,
// and drain any newly-contiguous prefix after each arrival.
func (cs *connectionState) di3DataStuff(seg Segment) (fin bool) {
	cb := &cs.cb

	appendCapped := func(data []byte) []byte {
		room := cs.rcvBufSize - len(cs.rcvq)
		if room <= 0 {
			return nil
		}
		if len(data) > room {
			data = data[:room]
		}
		cs.rcvq = append(cs.rcvq, data...)
		return data
	}

	if seg.SEQ == cb.rcv.NXT {
		taken := appendCapped(seg.Payload)
		cb.rcv.NXT = Add(cb.rcv.NXT, Size(len(taken)))
		if seg.Flags.HasAny(FlagFIN) && len(taken) == len(seg.Payload) {
			fin = true
			cb.rcv.NXT = cb.rcv.NXT.Incr()
		}
		for {
			data, qfin, ok := cb.reassembly.maybeTake(cb.rcv.NXT)
			if !ok {
				break
			}
			taken := appendCapped(data)
			cb.rcv.NXT = Add(cb.rcv.NXT, Size(len(taken)))
			if qfin && len(taken) == len(data) {
				fin = true
				cb.rcv.NXT = cb.rcv.NXT.Incr()
			}
			if len(taken) < len(data) {
				break // receive buffer full; stop draining until consumer catches up.
			}
		}
	} else if seg.SEQ != cb.rcv.NXT {
		// Covers both a strict gap (seg.SEQ > rcv.NXT) and a segment whose
		// start overlaps already-delivered bytes but whose end reaches past
		// rcv.NXT (acceptable() admits a segment on either its start or its
		// end falling in-window). maybeTake trims the overlapping prefix
		// off the front element at extraction time, so inserting the
		// segment's full original span here is sufficient either way.
		cb.reassembly.insert(seg.SEQ, seg.Flags.HasAny(FlagFIN), seg.Payload)
	}

	cs.recomputeRcvWindow()
	return fin
}

// di3StStuff implements the tcp_state transition table of deliver_in_3.
func (cs *connectionState) di3StStuff(now time.Time, fin bool, ourFinAcked bool) (destroyed bool, cause DropCause) {
	cb := &cs.cb
	switch cb.state {
	case StateEstablished:
		if fin {
			cb.state = StateCloseWait
			cs.cantRcvMore = true
		}
	case StateFinWait1:
		switch {
		case fin && ourFinAcked:
			cb.state = StateTimeWait
			cs.cantRcvMore = true
			cb.rexmt.stop()
			cb.ttFinW2.stop()
			cb.tt2msl.set(struct{}{}, now, twoMSL)
		case fin && !ourFinAcked:
			cb.state = StateClosing
			cs.cantRcvMore = true
		case !fin && ourFinAcked:
			cb.state = StateFinWait2
			cb.ttFinW2.set(struct{}{}, now, finWait2Timeout)
		}
	case StateFinWait2:
		if fin {
			cb.state = StateTimeWait
			cs.cantRcvMore = true
			cb.rexmt.stop()
			cb.ttFinW2.stop()
			cb.tt2msl.set(struct{}{}, now, twoMSL)
		}
	case StateClosing:
		if ourFinAcked {
			cb.state = StateTimeWait
			cb.tt2msl.set(struct{}{}, now, twoMSL)
		}
	case StateLastAck:
		if ourFinAcked {
			return true, CauseFINHandshake
		}
	case StateTimeWait:
		cb.tt2msl.set(struct{}{}, now, twoMSL)
	}
	return false, 0
}
