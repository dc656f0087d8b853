package tcp

import "errors"

var (
	errConnNotExist      = errors.New("tcp: connection does not exist")
	errConnectionClosing = errors.New("tcp: connection closing, no further sends accepted")
	errZeroPort          = errors.New("tcp: zero port")
	errPortsExhausted    = errors.New("tcp: no local ports available")
)

// DropCause enumerates why the Engine removed a connection from its map
// (a reset, a completed FIN handshake, or an expired timer), surfaced to
// the host adapter via Event.
type DropCause uint8

const (
	_ DropCause = iota
	CauseRST
	CauseFINHandshake
	CauseRetransmissionExceeded
	CauseTimer2MSL
	CauseTimerConnEstablished
	CauseTimerFinWait2
)

func (c DropCause) String() string {
	switch c {
	case CauseRST:
		return "reset-received"
	case CauseFINHandshake:
		return "fin-handshake-complete"
	case CauseRetransmissionExceeded:
		return "retransmission-exceeded"
	case CauseTimer2MSL:
		return "timer-2msl"
	case CauseTimerConnEstablished:
		return "timer-connection-established"
	case CauseTimerFinWait2:
		return "timer-fin-wait-2"
	default:
		return "unknown"
	}
}
