package tcp

import (
	"log/slog"
	"net/netip"
)

// ConnID identifies a connection by its 4-tuple, mirroring the teacher's
// Listener/Conn demux keying (RemoteAddr+RemotePort alongside the local
// side). It is the key of Engine's connection map.
type ConnID struct {
	LocalAddr   netip.Addr
	LocalPort   uint16
	RemoteAddr  netip.Addr
	RemotePort  uint16
}

// OutSegment pairs a segment to transmit with the addresses it should
// travel between; the IP datagram transport (external collaborator) is
// responsible for actually putting it on the wire.
type OutSegment struct {
	SrcAddr netip.Addr
	DstAddr netip.Addr
	Seg     Segment
}

// EventKind distinguishes the three kinds of notable occurrence the
// Engine surfaces to its host adapter.
type EventKind uint8

const (
	EventEstablished EventKind = iota
	EventReceived
	EventDrop
)

// Event reports a state change a host adapter may need to wake a parked
// caller for.
type Event struct {
	Kind  EventKind
	ID    ConnID
	Cause DropCause // meaningful only when Kind == EventDrop.
}

// ConnConfig configures a single connection's buffering and negotiation
// policy, following the teacher's struct-literal configuration style
// (ConnConfig/SYNCookieConfig).
type ConnConfig struct {
	SndBufSize          int    // default 64 KiB if zero.
	RcvBufSize          int    // default 64 KiB if zero.
	AdvertisedMSS       uint16 // local MSS ceiling offered to the peer; default 1460 if zero.
	RequestWindowScale  bool   // whether to request window scaling on active opens.
	RcvWindowScaleShift uint8  // shift count (0-14) to advertise when requesting/honouring WS.
}

const (
	defaultBufSize = 64 * 1024
	defaultLocalMSS = 1460
)

func (c ConnConfig) withDefaults() ConnConfig {
	if c.SndBufSize == 0 {
		c.SndBufSize = defaultBufSize
	}
	if c.RcvBufSize == 0 {
		c.RcvBufSize = defaultBufSize
	}
	if c.AdvertisedMSS == 0 {
		c.AdvertisedMSS = defaultLocalMSS
	}
	return c
}

// EngineConfig configures an Engine at construction time.
type EngineConfig struct {
	HostID string          // used for logging/diagnostic context only.
	RNG    func(n int) []byte
	Logger *slog.Logger
	// DefaultConnConfig is applied to connections opened without an
	// explicit ConnConfig (passive opens, and active opens via Connect
	// when the caller passes a zero-value ConnConfig).
	DefaultConnConfig ConnConfig
}

// connectionState wraps a controlBlock with the buffering and half-close
// bookkeeping the spec's data model lists alongside it: cantsndmore,
// cantrcvmore, buffer sizes, sndq/rcvq.
type connectionState struct {
	id ConnID
	cb controlBlock

	cantSndMore bool
	cantRcvMore bool

	sndBufSize int
	rcvBufSize int

	sndq []byte // bytes from snd.UNA onward: unacked and unsent tail.
	rcvq []byte // bytes delivered in-order, awaiting Recv.
}

func (cs *connectionState) recomputeRcvWindow() {
	free := cs.rcvBufSize - len(cs.rcvq)
	if free < 0 {
		free = 0
	}
	cs.cb.rcv.WND = Size(free)
}

// Engine is the top-level, multi-connection protocol state: RNG, listener
// port set, and the connection-id -> connection-state map (spec.md §3,
// "Engine state"). It generalizes the teacher's single-Listener/Handler
// pairing into the multi-connection surface spec.md requires.
type Engine struct {
	logger
	hostID string
	rng    func(n int) []byte

	defaultConnConfig ConnConfig

	listeners map[uint16]struct{}
	conns     map[ConnID]*connectionState

	nextEphemeral uint16
}

const (
	ephemeralLo = 49152
	ephemeralHi = 65535
)

// NewEngine constructs an empty Engine, corresponding to spec.md's
// `empty(host_id, rng)` constructor.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		hostID:            cfg.HostID,
		rng:               cfg.RNG,
		defaultConnConfig: cfg.DefaultConnConfig.withDefaults(),
		listeners:         make(map[uint16]struct{}),
		conns:             make(map[ConnID]*connectionState),
		nextEphemeral:     ephemeralLo,
	}
	e.logger = logger{log: cfg.Logger}
	return e
}

func (e *Engine) allocEphemeralPort(localAddr netip.Addr, remoteAddr netip.Addr, remotePort uint16) (uint16, error) {
	for i := 0; i < ephemeralHi-ephemeralLo+1; i++ {
		port := e.nextEphemeral
		e.nextEphemeral++
		if e.nextEphemeral > ephemeralHi {
			e.nextEphemeral = ephemeralLo
		}
		id := ConnID{LocalAddr: localAddr, LocalPort: port, RemoteAddr: remoteAddr, RemotePort: remotePort}
		if _, taken := e.conns[id]; !taken {
			return port, nil
		}
	}
	return 0, errPortsExhausted
}

// Exists reports whether id names a connection still tracked by the
// Engine, letting a host adapter distinguish a completed handshake from a
// reset one after both wake the same event channel.
func (e *Engine) Exists(id ConnID) bool {
	_, ok := e.conns[id]
	return ok
}

func (e *Engine) genISN() Value {
	if e.rng == nil {
		return 0
	}
	b := e.rng(4)
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return Value(v)
}

// connDropped removes a connection from the map and reports an event,
// logging the cause.
func (e *Engine) connDropped(id ConnID, cause DropCause) Event {
	delete(e.conns, id)
	e.debug("conn dropped", slog.String("id", id.String()), slog.String("cause", cause.String()))
	return Event{Kind: EventDrop, ID: id, Cause: cause}
}

func (id ConnID) String() string {
	return id.LocalAddr.String() + ":" + portString(id.LocalPort) + "->" + id.RemoteAddr.String() + ":" + portString(id.RemotePort)
}

func portString(p uint16) string {
	return appendUintString(p)
}

func appendUintString(p uint16) string {
	b := appendUint(nil, uint64(p))
	return string(b)
}
