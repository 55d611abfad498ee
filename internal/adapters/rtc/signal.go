package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	signalWriteTimeout = 5 * time.Second
	signalSendBuffer   = 32
)

// ErrBackpressure is returned when the outbound signal buffer is full.
// The connection is considered stalled at that point.
var ErrBackpressure = errors.New("signal send buffer full")

// signalMessage is the json envelope on the signaling websocket. Fields
// beyond Type are populated per message kind.
type signalMessage struct {
	Type string `json:"type"`

	Token         string `json:"token,omitempty"`
	AutoSubscribe bool   `json:"autoSubscribe,omitempty"`

	SDP string `json:"sdp,omitempty"`

	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`

	Identity string `json:"identity,omitempty"`
	Metadata string `json:"metadata,omitempty"`

	SID         string          `json:"sid,omitempty"`
	Kind        string          `json:"kind,omitempty"`
	Source      string          `json:"source,omitempty"`
	Muted       bool            `json:"muted,omitempty"`
	Quality     string          `json:"quality,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Participant *participantDTO `json:"participant,omitempty"`

	Participants []participantDTO `json:"participants,omitempty"`
	Tracks       []trackDTO       `json:"tracks,omitempty"`
}

type participantDTO struct {
	Identity string     `json:"identity"`
	Metadata string     `json:"metadata,omitempty"`
	Tracks   []trackDTO `json:"tracks,omitempty"`
}

type trackDTO struct {
	SID    string `json:"sid"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
	Muted  bool   `json:"muted,omitempty"`
}

// signalClient is the client side of the signaling websocket: one read
// pump dispatching into a handler, one write pump draining a bounded
// buffer. Closing is idempotent.
type signalClient struct {
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	cancel context.CancelFunc

	onMessage func(msg signalMessage)
	onClosed  func(err error)
}

func dialSignal(ctx context.Context, url string, onMessage func(signalMessage), onClosed func(error)) (*signalClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &signalClient{
		conn:      conn,
		send:      make(chan []byte, signalSendBuffer),
		cancel:    cancel,
		onMessage: onMessage,
		onClosed:  onClosed,
	}
	go c.writePump(ctx)
	go c.readPump(ctx)
	return c, nil
}

func (c *signalClient) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(signalWriteTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("set write deadline failed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("write failed")
				return
			}
		}
	}
}

func (c *signalClient) readPump(ctx context.Context) {
	defer c.closeWith(nil)
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Str("module", "signal").Msg("read ended")
				c.closeWith(err)
			}
			return
		}
		var msg signalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("unparseable signal message, dropping")
			continue
		}
		c.onMessage(msg)
	}
}

func (c *signalClient) sendMessage(msg signalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal signal message: %w", err)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *signalClient) closeWith(err error) {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		if c.onClosed != nil {
			c.onClosed(err)
		}
	})
}

func (c *signalClient) close() {
	c.closeWith(nil)
}
