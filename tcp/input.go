package tcp

import (
	"log/slog"
	"net/netip"
	"time"
)

// Handle is the engine's entry point for an arrival: `handle(state, now,
// src, dst, bytes)` from spec.md §4.4, specialized here to take an
// already-decoded Segment (decode + checksum verification is the `wire`
// package's job, an external collaborator per spec.md §1).
func (e *Engine) Handle(now time.Time, srcAddr, dstAddr netip.Addr, seg Segment) ([]OutSegment, []Event) {
	id := ConnID{LocalAddr: dstAddr, LocalPort: seg.DstPort, RemoteAddr: srcAddr, RemotePort: seg.SrcPort}

	cs, found := e.conns[id]
	if !found {
		return e.handleNoConnection(now, srcAddr, dstAddr, seg)
	}

	var events []Event
	var destroyed bool
	var cause DropCause

	switch cs.cb.state {
	case StateSynSent:
		established, reply, hasReply, drop := cs.deliverIn2(now, seg)
		if drop {
			events = append(events, e.connDropped(id, CauseRST))
			return nil, events
		}
		if hasReply {
			out := []OutSegment{{SrcAddr: dstAddr, DstAddr: srcAddr, Seg: reply}}
			return out, events
		}
		if established {
			events = append(events, Event{Kind: EventEstablished, ID: id})
		}

	case StateSynRcvd:
		established, rst, hasRst, drop := cs.deliverIn3c3d(now, seg)
		if drop {
			var out []OutSegment
			if hasRst {
				out = append(out, OutSegment{SrcAddr: dstAddr, DstAddr: srcAddr, Seg: rst})
			}
			events = append(events, e.connDropped(id, CauseRST))
			return out, events
		}
		if established {
			events = append(events, Event{Kind: EventEstablished, ID: id})
		}

	default: // every synchronized state (ESTABLISHED and beyond).
		var evs []Event
		evs, destroyed, cause = cs.deliverIn3(now, seg)
		events = append(events, evs...)
	}

	if destroyed {
		delete(e.conns, id)
		e.debug("conn dropped", slog.String("id", id.String()), slog.String("cause", cause.String()))
		return nil, events
	}

	outs := e.runOutput(now, cs)
	return outs, events
}

// handleNoConnection implements the branch of deliver_in_* reached when no
// connection matches the arriving segment's 4-tuple: passive open
// (deliver_in_1) on a listening port with a bare SYN, or drop-with-reset
// (deliver_in_1b / deliver_in_5) otherwise.
func (e *Engine) handleNoConnection(now time.Time, srcAddr, dstAddr netip.Addr, seg Segment) ([]OutSegment, []Event) {
	_, listening := e.listeners[seg.DstPort]
	if listening && seg.Flags.Mask() == FlagSYN {
		_, synack := e.passiveOpen(now, dstAddr, srcAddr, seg.DstPort, seg, e.defaultConnConfig)
		return []OutSegment{{SrcAddr: dstAddr, DstAddr: srcAddr, Seg: synack}}, nil
	}

	rst, ok := dropWithReset(seg)
	if !ok {
		return nil, nil
	}
	rst.SrcPort, rst.DstPort = seg.DstPort, seg.SrcPort
	return []OutSegment{{SrcAddr: dstAddr, DstAddr: srcAddr, Seg: rst}}, nil
}
