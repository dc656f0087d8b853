package tcp

import (
	"net/netip"
	"time"
)

// Listen adds port to the listener set (§4.7). Listening is a port-number
// set at the Engine level, not a connection state (§9 Design Notes).
func (e *Engine) Listen(port uint16) error {
	if port == 0 {
		return errZeroPort
	}
	e.listeners[port] = struct{}{}
	return nil
}

// Unlisten removes port from the listener set.
func (e *Engine) Unlisten(port uint16) {
	delete(e.listeners, port)
}

// Connect performs an active open: allocate a local port if needed, create
// a SYN_SENT connection, arm the connection-establishment and retransmit
// timers, and emit the initial SYN.
func (e *Engine) Connect(now time.Time, localAddr, remoteAddr netip.Addr, remotePort uint16, cfg ConnConfig) (ConnID, []OutSegment, error) {
	if remotePort == 0 {
		return ConnID{}, nil, errZeroPort
	}
	if cfg == (ConnConfig{}) {
		cfg = e.defaultConnConfig
	}
	cfg = cfg.withDefaults()

	localPort, err := e.allocEphemeralPort(localAddr, remoteAddr, remotePort)
	if err != nil {
		return ConnID{}, nil, err
	}
	id := ConnID{LocalAddr: localAddr, LocalPort: localPort, RemoteAddr: remoteAddr, RemotePort: remotePort}

	cs := &connectionState{id: id, sndBufSize: cfg.SndBufSize, rcvBufSize: cfg.RcvBufSize}
	cb := &cs.cb
	cb.log = e.log

	iss := e.genISN()
	cb.resetSnd(iss, 0)
	cb.resetRcv(Size(cfg.RcvBufSize), 0)

	cb.maxseg = defaultRemoteMSS // renegotiated from the peer's SYN+ACK once it arrives.
	cb.advmss = cfg.AdvertisedMSS
	cb.requestRScale = cfg.RequestWindowScale
	if cfg.RequestWindowScale {
		cb.rcvScale = cfg.RcvWindowScaleShift
	}
	cb.snd.CWND, cb.snd.SSTHRESH = initialCongestionState(cb.maxseg, cfg.SndBufSize)
	cb.state = StateSynSent

	syn := makeSyn(cb)
	syn.SrcPort, syn.DstPort = localPort, remotePort
	cb.snd.NXT = cb.snd.NXT.Incr()
	cb.snd.MAX = cb.snd.NXT

	cb.startRexmt(now, rexmtModeSyn)
	cb.ttConnEst.set(struct{}{}, now, connEstTimeout)

	e.conns[id] = cs
	return id, []OutSegment{{SrcAddr: localAddr, DstAddr: remoteAddr, Seg: syn}}, nil
}

// Send appends bytes to the connection's send queue, up to the space
// remaining in its send buffer, and runs the output path. It returns the
// number of bytes actually accepted; the caller is responsible for
// retrying any remainder later.
func (e *Engine) Send(now time.Time, id ConnID, data []byte) ([]OutSegment, int, error) {
	cs, ok := e.conns[id]
	if !ok {
		return nil, 0, errConnNotExist
	}
	if cs.cantSndMore {
		return nil, 0, errConnectionClosing
	}
	room := cs.sndBufSize - len(cs.sndq)
	if room <= 0 {
		return nil, 0, nil
	}
	n := len(data)
	if n > room {
		n = room
	}
	cs.sndq = append(cs.sndq, data[:n]...)
	return e.runOutput(now, cs), n, nil
}

// recvLowWaterFraction triggers a window-update ACK once the receive
// queue has been drained below this fraction of its buffer, per §4.7
// ("may emit window-update ACKs when rcvq is drained below 1/2 bufsize").
const recvLowWaterFraction = 2

// Recv drains any bytes delivered in-order and not yet consumed. If none
// are available and the connection can no longer receive, it reports EOF.
// Otherwise the caller should park and retry.
func (e *Engine) Recv(now time.Time, id ConnID) (data []byte, eof bool, outs []OutSegment, err error) {
	cs, ok := e.conns[id]
	if !ok {
		return nil, false, nil, errConnNotExist
	}
	if len(cs.rcvq) == 0 {
		if cs.cantRcvMore {
			return nil, true, nil, nil
		}
		return nil, false, nil, nil
	}

	wasBelowHalf := len(cs.rcvq) >= cs.rcvBufSize/recvLowWaterFraction
	data = cs.rcvq
	cs.rcvq = nil
	cs.recomputeRcvWindow()
	if wasBelowHalf {
		cs.cb.shouldAckNow = true
	}
	return data, false, e.runOutput(now, cs), nil
}

// Close begins an active close: marks the connection as unable to send
// any more data and applies the ESTABLISHED/CLOSE_WAIT/SYN_RECEIVED ->
// FIN_WAIT_1/LAST_ACK/FIN_WAIT_1 transitions of §4.7. The output path
// emits the FIN once the send queue has drained.
func (e *Engine) Close(now time.Time, id ConnID) ([]OutSegment, error) {
	cs, ok := e.conns[id]
	if !ok {
		return nil, errConnNotExist
	}
	if cs.cantSndMore {
		return nil, nil
	}
	cs.cantSndMore = true
	switch cs.cb.state {
	case StateEstablished, StateSynRcvd:
		cs.cb.state = StateFinWait1
	case StateCloseWait:
		cs.cb.state = StateLastAck
	}
	return e.runOutput(now, cs), nil
}
