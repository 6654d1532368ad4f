package controller

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Bounds each outbound write so a wedged controller connection fails
// the session into the reconnect loop instead of blocking it.
const wsWriteTimeout = 10 * time.Second

// envelope is the wire format on the websocket event channel: a named
// event with a JSON object payload.
type envelope struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// WebSocketTransport speaks the controller's event channel over a
// persistent websocket connection.
type WebSocketTransport struct {
	RequestEvent     string
	AnswerEvent      string
	HandshakeTimeout time.Duration
}

func NewWebSocketTransport(requestEvent, answerEvent string, handshakeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		RequestEvent:     requestEvent,
		AnswerEvent:      answerEvent,
		HandshakeTimeout: handshakeTimeout,
	}
}

func (t *WebSocketTransport) Dial(ctx context.Context, url string) (Session, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial controller %s: %w", url, err)
	}

	sess := &wsSession{
		conn:         conn,
		requestEvent: t.RequestEvent,
		answerEvent:  t.AnswerEvent,
		requests:     make(chan Request, 1),
		closed:       make(chan struct{}),
	}
	go sess.readPump()

	return sess, nil
}

type wsSession struct {
	conn         *websocket.Conn
	requestEvent string
	answerEvent  string

	requests chan Request
	closed   chan struct{}

	// Gorilla connections allow one concurrent writer.
	writeMu sync.Mutex

	closeOnce sync.Once
}

// readPump decodes inbound envelopes until the connection dies.
// Events other than the count request are ignored.
func (s *wsSession) readPump() {
	defer s.closeOnce.Do(func() { close(s.closed) })

	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			log.Debug().Err(err).Msg("Controller websocket read ended")
			return
		}

		if env.Event != s.requestEvent {
			log.Debug().Str("event", env.Event).Msg("Ignoring unknown controller event")
			continue
		}

		payload := env.Data
		if payload == nil {
			payload = map[string]interface{}{}
		}

		select {
		case s.requests <- Request{Payload: payload}:
		case <-s.closed:
			return
		}
	}
}

func (s *wsSession) Requests() <-chan Request {
	return s.requests
}

func (s *wsSession) Answer(req Request, results []int) error {
	data := make(map[string]interface{}, len(req.Payload)+1)
	for k, v := range req.Payload {
		data[k] = v
	}
	data["results"] = results

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("set answer write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(envelope{Event: s.answerEvent, Data: data}); err != nil {
		return fmt.Errorf("write count answer: %w", err)
	}
	return nil
}

func (s *wsSession) Closed() <-chan struct{} {
	return s.closed
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.conn.Close()
}
