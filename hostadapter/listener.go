package hostadapter

import "github.com/palainp/utcp/tcp"

// Listener hands out Conns for peers that complete a passive-open
// handshake on its port, mirroring the teacher's Listener/Conn split
// (tcp/listener.go) over the Engine's port-set model of listening (§9,
// Design Notes) instead of the teacher's per-port *Handler slab.
type Listener struct {
	host  *Host
	port  uint16
	queue chan tcp.ConnID
}

// Accept blocks until a connection on this port establishes.
func (l *Listener) Accept() (*Conn, error) {
	id := <-l.queue
	return &Conn{host: l.host, id: id}, nil
}

// Close stops accepting new connections on this port. Connections already
// handed out by Accept are unaffected.
func (l *Listener) Close() error {
	l.host.engineMu.Lock()
	l.host.engine.Unlisten(l.port)
	l.host.engineMu.Unlock()

	l.host.mu.Lock()
	delete(l.host.accept, l.port)
	l.host.mu.Unlock()
	return nil
}
