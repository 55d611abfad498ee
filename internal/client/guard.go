package client

import (
	"errors"
	"sync/atomic"
)

var (
	ErrConnectInFlight    = errors.New("connect already in progress")
	ErrDisconnectInFlight = errors.New("disconnect already in progress")
	ErrNotPrivileged      = errors.New("caller lacks the privileged role")
)

type opState int32

const (
	opIdle opState = iota
	opConnecting
	opDisconnecting
)

// opGuard is a single-slot guard over connect/disconnect. Overlapping calls
// are rejected explicitly instead of relying on the host UI disabling
// controls while an operation is in flight.
type opGuard struct {
	state atomic.Int32
}

func (g *opGuard) begin(s opState) bool {
	return g.state.CompareAndSwap(int32(opIdle), int32(s))
}

func (g *opGuard) end() {
	g.state.Store(int32(opIdle))
}
