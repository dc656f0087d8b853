package tcp

import "time"

func minSize(a, b Size) Size {
	if a < b {
		return a
	}
	return b
}

// output implements §4.5: build as many segments as the current window and
// pending data justify, advancing snd.NXT as it goes. Grounded on the
// teacher's ControlBlock.PendingSegment (window/cwnd-limited construction)
// and Handler.Send (payload slicing from a backing buffer at
// snd.NXT-snd.UNA), extended with real retransmit-timer arming the
// teacher's Handler explicitly declines to do.
func (cs *connectionState) output(now time.Time) []Segment {
	cb := &cs.cb
	var segs []Segment

	for {
		window := minSize(cb.snd.WND, cb.snd.CWND)
		offset := int(Sizeof(cb.snd.UNA, cb.snd.NXT))
		remaining := len(cs.sndq) - offset
		if remaining < 0 {
			remaining = 0
		}
		usable := Sub(Add(cb.snd.UNA, window), cb.snd.NXT)

		sndqDrained := remaining == 0
		wantsFin := sndqDrained && cs.cantSndMore && !cb.finSent

		if sndqDrained && !wantsFin && !cb.shouldAckNow {
			break
		}
		if usable < int32(cb.maxseg) && !wantsFin && !cb.shouldAckNow {
			break
		}

		payloadLen := remaining
		if payloadLen > int(cb.maxseg) {
			payloadLen = int(cb.maxseg)
		}
		if usable <= 0 {
			payloadLen = 0
		} else if int32(payloadLen) > usable {
			payloadLen = int(usable)
		}

		willFin := wantsFin && payloadLen == remaining

		seg := Segment{
			SrcPort: cs.id.LocalPort,
			DstPort: cs.id.RemotePort,
			SEQ:     cb.snd.NXT,
			ACK:     cb.rcv.NXT,
			WND:     cb.advertisedWindow(),
			Flags:   FlagACK,
			DataLen: Size(payloadLen),
		}
		if payloadLen > 0 {
			seg.Payload = cs.sndq[offset : offset+payloadLen]
			if offset+payloadLen == len(cs.sndq) {
				seg.Flags |= FlagPSH
			}
		}
		finSeq := Add(seg.SEQ, Size(payloadLen))
		if willFin {
			seg.Flags |= FlagFIN
		}

		segs = append(segs, seg)

		advance := Size(payloadLen)
		if willFin {
			advance++
		}
		cb.snd.NXT = Add(cb.snd.NXT, advance)
		if GreaterThan(cb.snd.NXT, cb.snd.MAX) {
			cb.snd.MAX = cb.snd.NXT
		}
		if willFin {
			cb.finSent = true
			cb.finSeq = finSeq
		}
		if payloadLen > 0 {
			cb.maybeStartRTTTiming(now, seg.SEQ)
		}
		if !cb.rexmt.active && advance > 0 {
			cb.startRexmt(now, rexmtModeData)
		}

		cb.rcv.ADV = Add(cb.rcv.NXT, cb.rcv.WND)
		cb.shouldAckNow = false
		cb.ttDelack.stop()
		cb.rcv.LastAckSent = cb.rcv.NXT

		if payloadLen == 0 || willFin {
			break
		}
	}

	// Arm the persist timer when the peer's window has gone to zero and
	// we still have data queued: nothing else will wake the retransmit
	// path, so a zero-window probe is the only way to discover a window
	// update once the peer stops sending pure ACKs.
	if cb.snd.WND == 0 && len(cs.sndq) > 0 && !cb.rexmt.active {
		cb.rexmt.shift = 0
		cb.startRexmt(now, rexmtModePersist)
	}

	return segs
}

// runOutput runs a connection's output path and wraps the resulting
// segments with the address pair the IP transport needs.
func (e *Engine) runOutput(now time.Time, cs *connectionState) []OutSegment {
	segs := cs.output(now)
	if len(segs) == 0 {
		return nil
	}
	outs := make([]OutSegment, len(segs))
	for i, seg := range segs {
		outs[i] = OutSegment{SrcAddr: cs.id.LocalAddr, DstAddr: cs.id.RemoteAddr, Seg: seg}
	}
	return outs
}
