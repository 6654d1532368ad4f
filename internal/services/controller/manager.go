// Package controller owns the lifecycle of the event channel to the
// remote controller: connect, serve inbound count requests, detect
// disconnection, retry with a fixed delay forever.
package controller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"occupancy-worker-go/internal/metrics"
	"occupancy-worker-go/internal/models"
)

// State is the externally observable lifecycle of the remote link.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// Counter produces zone counts on demand and never fails.
type Counter interface {
	CountNow(ctx context.Context) models.ZoneCounts
}

// Options configures a Manager.
type Options struct {
	URL           string
	RetryInterval time.Duration
	// Alphabet fixes the order of the results array in answers.
	Alphabet []string
}

// Manager drives the connection state machine:
//
//	Disconnected -> Connecting -> Connected -> Disconnected
//
// with a Waiting sub-state between attempts. Requests are served one
// at a time; the handler blocks until counts are ready.
type Manager struct {
	opts      Options
	transport Transport
	counter   Counter
	metrics   *metrics.Metrics

	state atomic.Int32

	// Consecutive connection failures in the current losing streak.
	// Only the first failure of a streak is logged verbosely.
	failStreak int
}

func NewManager(opts Options, transport Transport, counter Counter, m *metrics.Metrics) *Manager {
	if m == nil {
		// Unexported registry, so an unwatched instance is harmless.
		m = metrics.New()
	}
	return &Manager{
		opts:      opts,
		transport: transport,
		counter:   counter,
		metrics:   m,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		log.Debug().
			Str("from", old.String()).
			Str("to", s.String()).
			Msg("Connection state changed")
	}
	m.metrics.ConnectionState.Set(float64(s))
}

// Run connects and serves until the context is cancelled. It never
// returns on connectivity errors; they feed the fixed-delay retry
// loop.
func (m *Manager) Run(ctx context.Context) {
	defer m.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return
		}

		m.setState(StateConnecting)
		m.metrics.ConnectAttempts.Inc()

		sess, err := m.transport.Dial(ctx, m.opts.URL)
		if err != nil {
			m.connectFailed(err)
			m.setState(StateWaiting)
			select {
			case <-time.After(m.opts.RetryInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		if m.failStreak > 0 {
			log.Info().
				Int("failed_attempts", m.failStreak).
				Str("url", m.opts.URL).
				Msg("Reconnected to controller")
		} else {
			log.Info().Str("url", m.opts.URL).Msg("Connected to controller")
		}
		m.failStreak = 0
		m.setState(StateConnected)

		m.serve(ctx, sess)

		// Force residual client state down before the next attempt.
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("Session close after disconnect")
		}
		m.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("url", m.opts.URL).Msg("Disconnected from controller")

		m.setState(StateWaiting)
		select {
		case <-time.After(m.opts.RetryInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) serve(ctx context.Context, sess Session) {
	for {
		select {
		case req, ok := <-sess.Requests():
			if !ok {
				return
			}
			m.handleRequest(ctx, sess, req)
		case <-sess.Closed():
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleRequest answers one count request. The counting pipeline never
// fails by contract, but a stalled request on the remote side is worse
// than a wrong zero, so a defensive recover still emits an all-zero
// answer if it somehow does.
func (m *Manager) handleRequest(ctx context.Context, sess Session, req Request) {
	log.Info().Interface("payload", req.Payload).Msg("Count request received")

	counts := func() (counts models.ZoneCounts) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Counting pipeline panicked, answering zeros")
				counts = models.ZeroCounts(m.opts.Alphabet)
			}
		}()
		return m.counter.CountNow(ctx)
	}()

	results := counts.Ordered(m.opts.Alphabet)

	if err := sess.Answer(req, results); err != nil {
		log.Error().Err(err).Ints("results", results).Msg("Failed to emit count answer")
		return
	}
	m.metrics.AnswersEmitted.Inc()
	log.Info().Ints("results", results).Msg("Count answer emitted")
}

func (m *Manager) connectFailed(err error) {
	m.failStreak++
	m.metrics.ConnectFailures.Inc()
	if m.failStreak == 1 {
		log.Warn().Err(err).Str("url", m.opts.URL).Msg("Failed to connect to controller, retrying")
	} else {
		// Quiet during extended outages; the streak surfaced once.
		log.Debug().Err(err).Int("attempt", m.failStreak).Msg("Controller still unreachable")
	}
}
