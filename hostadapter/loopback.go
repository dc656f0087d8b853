package hostadapter

import "net/netip"

// LoopbackTransport pairs two in-memory endpoints, letting a test or demo
// run two Hosts against each other without a real socket. Grounded on
// petar-GoDCCP's dccp.ChanLink/NewChanPipe: two peers sharing a crossed pair
// of byte-slice channels, each reading its own inbox and writing the other's.
type LoopbackTransport struct {
	selfAddr netip.Addr
	peerAddr netip.Addr
	inbox    chan []byte
	outbox   chan<- []byte
}

// NewLoopbackPair returns two connected Transports addressed as a and b.
func NewLoopbackPair(a, b netip.Addr) (*LoopbackTransport, *LoopbackTransport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	ta := &LoopbackTransport{selfAddr: a, peerAddr: b, inbox: ba, outbox: ab}
	tb := &LoopbackTransport{selfAddr: b, peerAddr: a, inbox: ab, outbox: ba}
	return ta, tb
}

func (t *LoopbackTransport) ReadFrom(buf []byte) (int, netip.Addr, error) {
	data := <-t.inbox
	n := copy(buf, data)
	return n, t.peerAddr, nil
}

func (t *LoopbackTransport) WriteTo(buf []byte, dst netip.Addr) (int, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	t.outbox <- cp
	return len(buf), nil
}
