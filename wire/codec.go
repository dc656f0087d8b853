package wire

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"github.com/palainp/utcp/tcp"
)

// Option kinds used by the codec, per RFC 9293 §3.1 and the spec's option
// subset (§6): only end-of-list, no-op, MSS and window scale are encoded or
// decoded. A richer enum is kept for the same reason the teacher's
// OptionKind carries entries it never emits: documenting the wire format's
// actual vocabulary, not just the slice this module speaks.
type optionKind uint8

const (
	optEnd      optionKind = 0
	optNop      optionKind = 1
	optMSS      optionKind = 2
	optWS       optionKind = 3
	optSAck     optionKind = 4
	optSAckPerm optionKind = 5
	optTS       optionKind = 8
)

const (
	minHeaderLen = 20
	maxHeaderLen = 60

	// ipProtoTCP is the IPv4/IPv6 next-header value for TCP (RFC 793),
	// the one protocol number the spec's pseudo-header needs; no IP
	// layer lives in this module, so it is a local constant rather than
	// a pull from the teacher's broader IPProto enum.
	ipProtoTCP = 6
)

var (
	errShortHeader  = errors.New("wire: segment shorter than minimum TCP header")
	errBadDataOff   = errors.New("wire: data offset out of range")
	errShortOptions = errors.New("wire: truncated option list")
	errBadChecksum  = errors.New("wire: checksum mismatch")
)

// pseudoHeaderSum computes the RFC 9293 §3.1 pseudo-header contribution to
// the TCP checksum for an IPv4 or IPv6 source/destination pair. Grounded on
// the teacher's CRC791.AddUint32 usage in its own pseudo-header assembly,
// generalized to accept either address family via netip.Addr.
func pseudoHeaderSum(src, dst netip.Addr, tcpLen int) checksum791 {
	var c checksum791
	if src.Is4() && dst.Is4() {
		s4 := src.As4()
		d4 := dst.As4()
		c.addEven(s4[:])
		c.addEven(d4[:])
	} else {
		s16 := src.As16()
		d16 := dst.As16()
		c.addEven(s16[:])
		c.addEven(d16[:])
	}
	c.addUint16(ipProtoTCP)
	c.addUint16(uint16(tcpLen))
	return c
}

// Encode serializes seg into buf, writing the pseudo-header checksum
// computed over src/dst, and returns the number of bytes written. buf must
// have capacity for the header plus any options plus seg.Payload.
func Encode(buf []byte, src, dst netip.Addr, seg *tcp.Segment) (int, error) {
	optLen := optionsLen(seg)
	headerLen := minHeaderLen + optLen
	total := headerLen + int(seg.DataLen)
	if len(buf) < total {
		return 0, errors.New("wire: buffer too small")
	}

	binary.BigEndian.PutUint16(buf[0:2], seg.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], seg.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], uint32(seg.SEQ))
	binary.BigEndian.PutUint32(buf[8:12], uint32(seg.ACK))
	buf[12] = byte((headerLen / 4) << 4)
	buf[13] = byte(seg.Flags) & flagBits
	binary.BigEndian.PutUint16(buf[14:16], uint16(seg.WND))
	buf[16], buf[17] = 0, 0 // checksum, filled in below.
	binary.BigEndian.PutUint16(buf[18:20], 0)

	off := minHeaderLen
	off += putOptions(buf[off:], seg)
	for off < headerLen {
		buf[off] = byte(optNop)
		off++
	}
	if seg.DataLen > 0 {
		copy(buf[headerLen:total], seg.Payload)
	}

	sum := pseudoHeaderSum(src, dst, total)
	sum.addBytes(buf[:total])
	binary.BigEndian.PutUint16(buf[16:18], neverZero(sum.sum16()))

	return total, nil
}

const flagBits = 0x3f // CWR/ECE not modeled; only the low 6 control bits are ever set.

func optionsLen(seg *tcp.Segment) int {
	n := 0
	if seg.HasMSS {
		n += 4
	}
	if seg.HasWS {
		n += 3
	}
	if n == 0 {
		return 0
	}
	return (n + 3) &^ 3 // round up to a 4-byte boundary.
}

func putOptions(buf []byte, seg *tcp.Segment) int {
	off := 0
	if seg.HasMSS {
		buf[off] = byte(optMSS)
		buf[off+1] = 4
		binary.BigEndian.PutUint16(buf[off+2:off+4], seg.MSS)
		off += 4
	}
	if seg.HasWS {
		buf[off] = byte(optWS)
		buf[off+1] = 3
		buf[off+2] = seg.WS
		off += 3
	}
	return off
}

// Decode parses a wire-format TCP segment out of buf (header, options, and
// payload contiguous, as delivered by the IP layer), verifying its checksum
// against the given pseudo-header addresses. The returned Segment's Payload
// aliases buf; callers must not mutate buf afterward. Grounded on the
// teacher's Frame.SetSegment / ValidateSize pairing in tcp/frame.go, and its
// bit-position error reporting via segmentValidator (validator.go) in place
// of the teacher's panic-on-short-buffer style.
func Decode(buf []byte, src, dst netip.Addr) (tcp.Segment, error) {
	var v segmentValidator
	v.flags = allowMultiErrors

	if len(buf) < minHeaderLen {
		v.addBitPosErr(0, 0, errShortHeader)
		return tcp.Segment{}, v.err()
	}

	dataOffWords := buf[12] >> 4
	headerLen := int(dataOffWords) * 4
	if headerLen < minHeaderLen || headerLen > maxHeaderLen || headerLen > len(buf) {
		v.addBitPosErr(96, 4, errBadDataOff)
		return tcp.Segment{}, v.err()
	}

	seg := tcp.Segment{
		SrcPort: binary.BigEndian.Uint16(buf[0:2]),
		DstPort: binary.BigEndian.Uint16(buf[2:4]),
		SEQ:     tcp.Value(binary.BigEndian.Uint32(buf[4:8])),
		ACK:     tcp.Value(binary.BigEndian.Uint32(buf[8:12])),
		Flags:   tcp.Flags(buf[13] & flagBits),
		WND:     tcp.Size(binary.BigEndian.Uint16(buf[14:16])),
	}

	// Summing the whole buffer, checksum field included as transmitted,
	// must fold to zero when the checksum is correct: the field was
	// chosen as the one's-complement of the data sum, so data+field
	// cancel out.
	sum := pseudoHeaderSum(src, dst, len(buf))
	sum.addBytes(buf)
	if got := sum.sum16(); got != 0 {
		v.addBitPosErr(128, 16, errBadChecksum)
	}

	if err := parseOptions(buf[minHeaderLen:headerLen], &seg, &v); err != nil {
		return tcp.Segment{}, err
	}

	payload := buf[headerLen:]
	seg.DataLen = tcp.Size(len(payload))
	if len(payload) > 0 {
		seg.Payload = payload
	}

	if v.hasError() {
		return tcp.Segment{}, v.err()
	}
	return seg, nil
}

func parseOptions(opts []byte, seg *tcp.Segment, v *segmentValidator) error {
	i := 0
	for i < len(opts) {
		kind := optionKind(opts[i])
		if kind == optEnd {
			break
		}
		if kind == optNop {
			i++
			continue
		}
		if i+1 >= len(opts) {
			v.addBitPosErr((minHeaderLen+i)*8, 8, errShortOptions)
			return v.err()
		}
		optLen := int(opts[i+1])
		if optLen < 2 || i+optLen > len(opts) {
			v.addBitPosErr((minHeaderLen+i)*8, 8, errShortOptions)
			return v.err()
		}
		switch kind {
		case optMSS:
			if optLen == 4 {
				seg.HasMSS = true
				seg.MSS = binary.BigEndian.Uint16(opts[i+2 : i+4])
			}
		case optWS:
			if optLen == 3 {
				seg.HasWS = true
				seg.WS = opts[i+2]
			}
		}
		i += optLen
	}
	return nil
}
