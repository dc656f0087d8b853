package tcp

import "time"

// Tick implements §4.6, the timer tick: sweep every connection's timers,
// retransmit/probe/destroy as each expired timer dictates, and return the
// dropped connections plus any segments the sweep produced. Modeled on
// the teacher's plain-deadline style (dhcpv4/client.go's tRenew/tRebind)
// and internal/backoff.go's Hit/Miss doubling, adapted into a pure
// deadline recomputation with no sleeping inside the core.
func (e *Engine) Tick(now time.Time) ([]Event, []OutSegment) {
	var events []Event
	var outs []OutSegment

	for id, cs := range e.conns {
		cb := &cs.cb

		if cb.rexmt.expired(now) {
			dropped, seg, hasSeg := cs.rexmtFire(now)
			if dropped {
				events = append(events, e.connDropped(id, CauseRetransmissionExceeded))
				continue
			}
			if hasSeg {
				outs = append(outs, OutSegment{SrcAddr: id.LocalAddr, DstAddr: id.RemoteAddr, Seg: seg})
			}
		}

		if cb.tt2msl.expired(now) {
			events = append(events, e.connDropped(id, CauseTimer2MSL))
			continue
		}
		if cb.ttConnEst.expired(now) {
			events = append(events, e.connDropped(id, CauseTimerConnEstablished))
			continue
		}
		if cb.ttFinW2.expired(now) {
			events = append(events, e.connDropped(id, CauseTimerFinWait2))
			continue
		}
		if cb.ttDelack.expired(now) {
			cb.ttDelack.stop()
			cb.shouldAckNow = true
		}

		if cb.shouldAckNow {
			outs = append(outs, e.runOutput(now, cs)...)
		}
	}

	return events, outs
}

// rexmtFire handles one expiry of tt_rexmt in whichever mode is currently
// armed, returning dropped=true if the shift bound was exceeded.
func (cs *connectionState) rexmtFire(now time.Time) (dropped bool, seg Segment, hasSeg bool) {
	cb := &cs.cb
	switch cb.rexmt.mode {
	case rexmtModeSyn:
		cb.rexmt.shift++
		if cb.rexmt.shift > tcpMaxRxtShift {
			return true, Segment{}, false
		}
		seg = retransmitSyn(cs)
		cb.startRexmt(now, rexmtModeSyn)
		return false, seg, true

	case rexmtModePersist:
		cb.rexmt.shift++
		if cb.rexmt.shift > maxRexmtShift {
			return true, Segment{}, false
		}
		seg = persistProbe(cs)
		cb.startRexmt(now, rexmtModePersist)
		return false, seg, true

	default: // rexmtModeData
		cb.rexmt.shift++
		if cb.rexmt.shift > maxRexmtShift {
			return true, Segment{}, false
		}
		cb.onLoss()
		cb.rttInf.lastShift = cb.rexmt.shift
		seg = retransmitSegment(cs)
		cb.startRexmt(now, rexmtModeData)
		return false, seg, true
	}
}

// retransmitSegment resends the oldest outstanding data from snd.una,
// capped at one MSS, per "retransmit from snd_una" in spec.md §4.6.
func retransmitSegment(cs *connectionState) Segment {
	cb := &cs.cb
	length := len(cs.sndq)
	if length > int(cb.maxseg) {
		length = int(cb.maxseg)
	}
	seg := Segment{
		SrcPort: cs.id.LocalPort,
		DstPort: cs.id.RemotePort,
		SEQ:     cb.snd.UNA,
		ACK:     cb.rcv.NXT,
		WND:     cb.advertisedWindow(),
		Flags:   FlagACK,
	}
	if length > 0 {
		seg.Payload = cs.sndq[:length]
		seg.DataLen = Size(length)
	}
	if cb.finSent && length == len(cs.sndq) {
		seg.Flags |= FlagFIN
	}
	return seg
}

// persistProbe sends a one-byte window probe, used while the peer's
// advertised window has gone to zero.
func persistProbe(cs *connectionState) Segment {
	cb := &cs.cb
	seg := Segment{
		SrcPort: cs.id.LocalPort,
		DstPort: cs.id.RemotePort,
		SEQ:     cb.snd.UNA,
		ACK:     cb.rcv.NXT,
		WND:     cb.advertisedWindow(),
		Flags:   FlagACK,
	}
	if len(cs.sndq) > 0 {
		seg.Payload = cs.sndq[:1]
		seg.DataLen = 1
	}
	return seg
}

// retransmitSyn rebuilds the SYN or SYN+ACK for a SYN_SENT/SYN_RECEIVED
// connection whose handshake segment was not yet acknowledged.
func retransmitSyn(cs *connectionState) Segment {
	cb := &cs.cb
	var seg Segment
	switch cb.state {
	case StateSynSent:
		seg = makeSyn(cb)
	case StateSynRcvd:
		seg = makeSynAck(cb)
	default:
		return Segment{}
	}
	seg.SrcPort, seg.DstPort = cs.id.LocalPort, cs.id.RemotePort
	return seg
}
