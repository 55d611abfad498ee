package host

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/silentmark/fvtt-module-avclient-livekit/internal/domain"
)

// RelayHub fans socket messages out between in-process endpoints,
// standing in for the host's pub/sub socket. Senders never receive their
// own messages; targeting is resolved at delivery time.
type RelayHub struct {
	mu        sync.RWMutex
	endpoints map[domain.UserID]*RelayEndpoint
}

func NewRelayHub() *RelayHub {
	return &RelayHub{endpoints: make(map[domain.UserID]*RelayEndpoint)}
}

// Endpoint returns (creating once) the relay endpoint for the given user.
func (h *RelayHub) Endpoint(id domain.UserID) *RelayEndpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep, ok := h.endpoints[id]; ok {
		return ep
	}
	ep := &RelayEndpoint{hub: h, id: id}
	h.endpoints[id] = ep
	return ep
}

func (h *RelayHub) deliver(msg domain.SocketMessage, from domain.UserID, recipients []domain.UserID) {
	h.mu.RLock()
	targets := make([]*RelayEndpoint, 0, len(h.endpoints))
	if len(recipients) == 0 {
		for id, ep := range h.endpoints {
			if id != from {
				targets = append(targets, ep)
			}
		}
	} else {
		for _, id := range recipients {
			if id == from {
				continue
			}
			if ep, ok := h.endpoints[id]; ok {
				targets = append(targets, ep)
			}
		}
	}
	h.mu.RUnlock()

	for _, ep := range targets {
		ep.dispatch(msg, from)
	}
}

// RelayEndpoint is one user's view of the hub, implementing
// core.SocketRelay.
type RelayEndpoint struct {
	hub *RelayHub
	id  domain.UserID

	mu      sync.RWMutex
	handler func(msg domain.SocketMessage, from domain.UserID)
}

func (e *RelayEndpoint) Emit(msg domain.SocketMessage, recipients ...domain.UserID) error {
	log.Debug().Str("module", "relay").
		Str("action", string(msg.Action)).
		Str("from", string(e.id)).
		Int("recipients", len(recipients)).
		Msg("emit")
	e.hub.deliver(msg, e.id, recipients)
	return nil
}

func (e *RelayEndpoint) OnMessage(fn func(msg domain.SocketMessage, from domain.UserID)) {
	e.mu.Lock()
	e.handler = fn
	e.mu.Unlock()
}

func (e *RelayEndpoint) dispatch(msg domain.SocketMessage, from domain.UserID) {
	e.mu.RLock()
	fn := e.handler
	e.mu.RUnlock()
	if fn != nil {
		fn(msg, from)
	}
}
