package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/status"
	"go.uber.org/zap"
)

// graphql-transport-ws frame types.
const (
	frameConnectionInit = "connection_init"
	frameConnectionAck  = "connection_ack"
	frameSubscribe      = "subscribe"
	frameNext           = "next"
	frameError          = "error"
	frameComplete       = "complete"
	framePing           = "ping"
	framePong           = "pong"
)

// Operation IDs for the three long-lived subscriptions. The server scopes
// all of them to the authenticated user.
const (
	opMessages = "messages"
	opTyping   = "typing"
	opPresence = "presence"
)

var subscriptions = map[string]string{
	opMessages: `subscription { messageReceived { ` + messageFields + ` } }`,
	opTyping:   `subscription { typingChanged { chatId user { id name avatarUrl } isTyping } }`,
	opPresence: `subscription { presenceChanged { userId isOnline lastSeen } }`,
}

const (
	handshakeTimeout = 15 * time.Second
	ackTimeout       = 10 * time.Second
	minBackoff       = time.Second
	maxBackoff       = 30 * time.Second
)

type frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Stream maintains the websocket subscription connection to the gateway.
// Parsed events are published on the bus under the "gw." prefix; invalid
// payloads are dropped here with a logged validation error. The stream owns
// reconnection with capped backoff; consumers tolerate duplicate delivery
// after a resubscribe because ingestion is idempotent.
type Stream struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewStream creates a stream for the given websocket URL. logger may be nil.
func NewStream(url, token string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{url: url, token: token, bus: b, machine: machine, logger: logger}
}

// Start runs the connect/consume loop in the background.
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop tears the stream down and stops reconnecting.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Stream) run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		_ = s.machine.Transition(status.Connecting)

		err := s.session(ctx, &backoff)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("gateway stream disconnected", zap.Error(err))
		_ = s.machine.Transition(status.Reconnecting)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// session runs one connection: handshake, subscribe, then consume frames
// until the socket dies or ctx is cancelled.
func (s *Stream) session(ctx context.Context, backoff *time.Duration) error {
	dialer := websocket.Dialer{
		Subprotocols:     []string{"graphql-transport-ws"},
		HandshakeTimeout: handshakeTimeout,
	}
	header := http.Header{"Authorization": []string{"Bearer " + s.token}}

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Unblock the read loop when the context goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	init, _ := json.Marshal(map[string]string{"authToken": s.token})
	if err := conn.WriteJSON(frame{Type: frameConnectionInit, Payload: init}); err != nil {
		return fmt.Errorf("connection_init: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	var ack frame
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("await ack: %w", err)
	}
	if ack.Type != frameConnectionAck {
		return fmt.Errorf("await ack: unexpected frame %q", ack.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	for id, query := range subscriptions {
		payload, _ := json.Marshal(gqlRequest{Query: query})
		if err := conn.WriteJSON(frame{ID: id, Type: frameSubscribe, Payload: payload}); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
	}

	*backoff = minBackoff
	_ = s.machine.Transition(status.Ready)
	s.logger.Info("gateway stream connected")

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch f.Type {
		case framePing:
			_ = conn.WriteJSON(frame{Type: framePong})
		case frameNext:
			s.handleNext(f.ID, f.Payload)
		case frameError:
			// A failed operation is reported, not fatal: the other
			// subscriptions keep flowing.
			s.logger.Error("subscription error",
				zap.String("op", f.ID), zap.ByteString("payload", f.Payload))
		case frameComplete:
			s.logger.Warn("subscription completed by server", zap.String("op", f.ID))
		}
	}
}

// handleNext routes one "next" frame to the matching parser and publishes
// the result. Split out from the socket loop so routing is testable without
// a connection.
func (s *Stream) handleNext(opID string, payload json.RawMessage) {
	var env struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		s.logger.Warn("dropping undecodable frame", zap.String("op", opID), zap.Error(err))
		return
	}

	switch opID {
	case opMessages:
		msg, err := ParseMessage(env.Data["messageReceived"])
		if err != nil {
			s.logger.Warn("dropping invalid message event", zap.Error(err))
			return
		}
		s.bus.Publish(bus.Event{Kind: bus.KindGatewayMessage, At: time.Now(), Payload: msg})
	case opTyping:
		evt, err := ParseTyping(env.Data["typingChanged"])
		if err != nil {
			s.logger.Warn("dropping invalid typing event", zap.Error(err))
			return
		}
		s.bus.Publish(bus.Event{Kind: bus.KindGatewayTyping, At: time.Now(), Payload: evt})
	case opPresence:
		p, err := ParsePresence(env.Data["presenceChanged"])
		if err != nil {
			s.logger.Warn("dropping invalid presence event", zap.Error(err))
			return
		}
		s.bus.Publish(bus.Event{Kind: bus.KindGatewayPresence, At: time.Now(), Payload: p})
	default:
		s.logger.Warn("frame for unknown operation", zap.String("op", opID))
	}
}
