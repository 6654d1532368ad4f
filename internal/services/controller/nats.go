package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSTransport carries the controller event channel over NATS
// subjects instead of a websocket. The request event name doubles as
// the inbound subject, the answer event name as the outbound subject;
// a request's reply inbox wins over the fixed answer subject when set.
//
// The client's own reconnect machinery is disabled: the connection
// manager's state machine owns retry policy.
type NATSTransport struct {
	Name           string
	RequestSubject string
	AnswerSubject  string
	ConnectTimeout time.Duration
}

func NewNATSTransport(name, requestSubject, answerSubject string, connectTimeout time.Duration) *NATSTransport {
	return &NATSTransport{
		Name:           name,
		RequestSubject: requestSubject,
		AnswerSubject:  answerSubject,
		ConnectTimeout: connectTimeout,
	}
}

func (t *NATSTransport) Dial(ctx context.Context, url string) (Session, error) {
	sess := &natsSession{
		answerSubject: t.AnswerSubject,
		requests:      make(chan Request, 1),
		closed:        make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name(t.Name),
		nats.Timeout(t.ConnectTimeout),
		nats.RetryOnFailedConnect(false),
		nats.MaxReconnects(0),
		nats.ClosedHandler(func(*nats.Conn) {
			sess.markClosed()
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}
	sess.conn = conn

	sub, err := conn.Subscribe(t.RequestSubject, sess.onRequest)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", t.RequestSubject, err)
	}
	sess.sub = sub

	log.Info().Str("url", url).Str("subject", t.RequestSubject).Msg("NATS event channel established")
	return sess, nil
}

type natsSession struct {
	conn          *nats.Conn
	sub           *nats.Subscription
	answerSubject string

	requests chan Request
	closed   chan struct{}

	closeOnce sync.Once
}

func (s *natsSession) onRequest(msg *nats.Msg) {
	payload := map[string]interface{}{}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("Malformed count request payload, echoing empty correlation")
			payload = map[string]interface{}{}
		}
	}

	select {
	case s.requests <- Request{Payload: payload, Reply: msg.Reply}:
	case <-s.closed:
	}
}

func (s *natsSession) Requests() <-chan Request {
	return s.requests
}

func (s *natsSession) Answer(req Request, results []int) error {
	data := make(map[string]interface{}, len(req.Payload)+1)
	for k, v := range req.Payload {
		data[k] = v
	}
	data["results"] = results

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal count answer: %w", err)
	}

	subject := s.answerSubject
	if req.Reply != "" {
		subject = req.Reply
	}
	if err := s.conn.Publish(subject, raw); err != nil {
		return fmt.Errorf("publish count answer to %s: %w", subject, err)
	}
	return nil
}

func (s *natsSession) Closed() <-chan struct{} {
	return s.closed
}

func (s *natsSession) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *natsSession) Close() error {
	s.markClosed()
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if !s.conn.IsClosed() {
		s.conn.Close()
	}
	return nil
}
