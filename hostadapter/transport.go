// Package hostadapter drives a tcp.Engine from a real, blocking I/O
// environment: it owns the recv loop that feeds inbound datagrams to
// Engine.Handle, the ticker that drives Engine.Tick, and the
// backoff-polling Conn that gives callers the net.Conn-shaped blocking
// Read/Write/Close surface the core's synchronous Handle/Send/Recv/Close
// deliberately do not provide. Like wire and isn, it is a one-directional
// consumer of package tcp.
package hostadapter

import "net/netip"

// Transport is the IP datagram collaborator the spec places outside the
// core's scope (§1): something that can hand the adapter raw segment bytes
// addressed to localAddr, and send bytes addressed to a peer. A
// net.PacketConn glued to a raw or TUN socket is the expected production
// implementation; tests substitute an in-memory pipe (see loopback.go).
type Transport interface {
	// ReadFrom blocks until a datagram arrives, writes its payload into
	// buf, and reports the peer address it came from.
	ReadFrom(buf []byte) (n int, src netip.Addr, err error)
	// WriteTo sends buf to dst.
	WriteTo(buf []byte, dst netip.Addr) (n int, err error)
}
