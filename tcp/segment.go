package tcp

import "math/bits"

// Flags is a bit-masked representation of the TCP control bits (RFC 9293 §3.1).
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // FlagFIN - no more data from sender.
	FlagSYN                   // FlagSYN - synchronize sequence numbers.
	FlagRST                   // FlagRST - reset the connection.
	FlagPSH                   // FlagPSH - push function.
	FlagACK                   // FlagACK - acknowledgment field significant.
	FlagURG                   // FlagURG - urgent pointer field significant. Never emitted; see Non-goals.
)

const flagMask = 0x1f

const (
	synack = FlagSYN | FlagACK
	finack = FlagFIN | FlagACK
)

// HasAll reports whether all bits of mask are set in flags.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny reports whether one or more bits of mask are set in flags.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// Mask clears any non-flag bits.
func (flags Flags) Mask() Flags { return flags & flagMask }

// String returns a human readable representation, i.e. "[SYN,ACK]".
func (flags Flags) String() string {
	switch flags {
	case 0:
		return "[]"
	case synack:
		return "[SYN,ACK]"
	case finack:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(flags)))
	buf = append(buf, '[')
	buf = flags.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a human readable flag string to b, LSB (FIN) first.
func (flags Flags) AppendFormat(b []byte) []byte {
	const names = "FIN\x00SYN\x00RST\x00PSH\x00ACK\x00URG\x00"
	var addcomma bool
	for flags != 0 {
		i := bits.TrailingZeros16(uint16(flags))
		if addcomma {
			b = append(b, ',')
		}
		addcomma = true
		name := names[i*4 : i*4+3]
		b = append(b, name...)
		flags &^= 1 << i
	}
	return b
}

// State enumerates the states a TCP connection progresses through. LISTEN
// and CLOSED are not represented: listening is a port set at the Engine
// level (§9, Design Notes) and a would-be-CLOSED connection is removed
// from the Engine's connection map instead of retained.
type State uint8

const (
	StateSynSent State = iota
	StateSynRcvd
	StateEstablished
	StateCloseWait
	StateFinWait1
	StateFinWait2
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateSynSent:
		return "SYN-SENT"
	case StateSynRcvd:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateCloseWait:
		return "CLOSE-WAIT"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST-ACK"
	case StateTimeWait:
		return "TIME-WAIT"
	default:
		return "INVALID"
	}
}

// IsPreestablished reports whether s precedes ESTABLISHED.
func (s State) IsPreestablished() bool { return s == StateSynSent || s == StateSynRcvd }

// IsSynchronized reports whether the connection has passed through the
// three-way handshake, i.e. can run the deliver_in_3 family of rules.
func (s State) IsSynchronized() bool { return s >= StateEstablished }

// canRecv reports whether the state's table entry (Design Notes, open
// question on cantrcvmore) allows further delivery of payload bytes from
// the network.
func (s State) canRecv() bool {
	return s == StateEstablished || s == StateFinWait1 || s == StateFinWait2
}

// Segment represents a decoded incoming or to-be-encoded outgoing TCP
// segment. It corresponds to the already-parsed segment the core consumes;
// byte-level encode/decode and checksum verification are the caller's
// responsibility (see package wire).
type Segment struct {
	SrcPort, DstPort uint16
	SEQ              Value // sequence number of first octet. If SYN set, this is the ISN.
	ACK              Value // acknowledgment number, valid only if Flags has FlagACK.
	WND              Size  // advertised window, pre-scale.
	Flags            Flags
	DataLen          Size   // payload length, not counting SYN/FIN.
	Payload          []byte // referenced, not owned: callers must not mutate after handing to the core.

	// Options, populated by the caller's decoder when present in the wire segment.
	HasMSS bool
	MSS    uint16
	HasWS  bool
	WS     uint8 // window scale shift count, 0-14.
}

// LEN returns the length of the segment in sequence-space octets, SYN/FIN included.
func (seg *Segment) LEN() Size {
	add := Size(seg.Flags>>0) & 1 // FIN bit.
	add += Size(seg.Flags>>1) & 1 // SYN bit.
	return seg.DataLen + add
}

// Last returns the sequence number of the last octet of the segment.
func (seg *Segment) Last() Value {
	seglen := seg.LEN()
	if seglen == 0 {
		return seg.SEQ
	}
	return Add(seg.SEQ, seglen) - 1
}

func (seg *Segment) String() string {
	b := make([]byte, 0, 64)
	b = append(b, "<SEQ="...)
	b = appendUint(b, uint64(seg.SEQ))
	b = append(b, ">"...)
	if seg.Flags.HasAny(FlagACK) {
		b = append(b, "<ACK="...)
		b = appendUint(b, uint64(seg.ACK))
		b = append(b, ">"...)
	}
	if seg.DataLen > 0 {
		b = append(b, "<DATA="...)
		b = appendUint(b, uint64(seg.DataLen))
		b = append(b, ">"...)
	}
	b = seg.Flags.AppendFormat(append(b, '['))
	b = append(b, ']')
	return string(b)
}

func appendUint(b []byte, v uint64) []byte {
	if v == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, tmp[i:]...)
}

// makeSyn builds the initial SYN segment for an active open from the
// control block's negotiated state.
func makeSyn(cb *controlBlock) Segment {
	return Segment{
		SEQ:    cb.snd.ISS,
		WND:    cb.advertisedWindow(),
		Flags:  FlagSYN,
		HasMSS: true,
		MSS:    cb.advmss,
		HasWS:  cb.requestRScale,
		WS:     cb.rcvScale,
	}
}

// makeSynAck builds the SYN+ACK response to a SYN accepted on a listening port.
func makeSynAck(cb *controlBlock) Segment {
	return Segment{
		SEQ:    cb.snd.ISS,
		ACK:    cb.rcv.NXT,
		WND:    cb.advertisedWindow(),
		Flags:  synack,
		HasMSS: true,
		MSS:    cb.advmss,
		HasWS:  cb.tfDoingWS,
		WS:     cb.rcvScale,
	}
}

// makeAck builds a pure ACK (optionally carrying FIN/PSH) reflecting the
// control block's current send/receive state. Payload is attached by the
// output path, not here.
func makeAck(cb *controlBlock, fin bool) Segment {
	flags := FlagACK
	if fin {
		flags |= FlagFIN
	}
	return Segment{
		SEQ:   cb.snd.NXT,
		ACK:   cb.rcv.NXT,
		WND:   cb.advertisedWindow(),
		Flags: flags,
	}
}

// dropWithReset builds the reset response to an offending segment, per
// RFC 9293 §3.5.3. It returns ok=false when the offending segment itself
// carried RST, in which case no reply may be sent.
func dropWithReset(seg Segment) (rst Segment, ok bool) {
	if seg.Flags.HasAny(FlagRST) {
		return Segment{}, false
	}
	rst.SrcPort, rst.DstPort = seg.DstPort, seg.SrcPort
	if seg.Flags.HasAny(FlagACK) {
		rst.SEQ = seg.ACK
		rst.Flags = FlagRST
		return rst, true
	}
	rst.SEQ = 0
	rst.ACK = Add(seg.SEQ, seg.LEN())
	rst.Flags = FlagRST | FlagACK
	return rst, true
}
