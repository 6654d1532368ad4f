package controller

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"occupancy-worker-go/internal/models"
)

type emittedAnswer struct {
	payload map[string]interface{}
	results []int
}

type fakeSession struct {
	requests chan Request
	closed   chan struct{}
	answers  chan emittedAnswer

	closeOnce  sync.Once
	closeCalls atomic.Int32
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		requests: make(chan Request, 1),
		closed:   make(chan struct{}),
		answers:  make(chan emittedAnswer, 4),
	}
}

func (s *fakeSession) Requests() <-chan Request { return s.requests }

func (s *fakeSession) Answer(req Request, results []int) error {
	s.answers <- emittedAnswer{payload: req.Payload, results: results}
	return nil
}

func (s *fakeSession) Closed() <-chan struct{} { return s.closed }

func (s *fakeSession) Close() error {
	s.closeCalls.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) dropConnection() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// fakeTransport fails the first failuresBeforeSuccess dials, then
// hands out fake sessions.
type fakeTransport struct {
	mu                    sync.Mutex
	dials                 int
	failuresBeforeSuccess int
	sessions              chan *fakeSession
}

func newFakeTransport(failures int) *fakeTransport {
	return &fakeTransport{
		failuresBeforeSuccess: failures,
		sessions:              make(chan *fakeSession, 4),
	}
}

func (t *fakeTransport) Dial(ctx context.Context, url string) (Session, error) {
	t.mu.Lock()
	t.dials++
	dial := t.dials
	t.mu.Unlock()

	if dial <= t.failuresBeforeSuccess {
		return nil, errors.New("connection refused")
	}
	sess := newFakeSession()
	t.sessions <- sess
	return sess, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

type fakeCounter struct {
	counts models.ZoneCounts
	panics bool
	calls  atomic.Int32
}

func (c *fakeCounter) CountNow(ctx context.Context) models.ZoneCounts {
	c.calls.Add(1)
	if c.panics {
		panic("counting blew up")
	}
	return c.counts
}

func testOptions() Options {
	return Options{
		URL:           "fake://controller",
		RetryInterval: 10 * time.Millisecond,
		Alphabet:      []string{"A", "B", "C"},
	}
}

func startManager(t *testing.T, transport Transport, counter Counter) (*Manager, context.CancelFunc) {
	t.Helper()
	m := NewManager(testOptions(), transport, counter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("manager did not stop after cancel")
		}
	})
	return m, cancel
}

func waitForSession(t *testing.T, transport *fakeTransport) *fakeSession {
	t.Helper()
	select {
	case sess := <-transport.sessions:
		return sess
	case <-time.After(2 * time.Second):
		t.Fatal("manager never established a session")
		return nil
	}
}

func TestManagerConnectsAfterNFailures(t *testing.T) {
	const failures = 3
	transport := newFakeTransport(failures)
	m, _ := startManager(t, transport, &fakeCounter{counts: models.ZoneCounts{}})

	waitForSession(t, transport)

	if got := transport.dialCount(); got != failures+1 {
		t.Fatalf("dial attempts = %d, want %d", got, failures+1)
	}

	deadline := time.After(2 * time.Second)
	for m.State() != StateConnected {
		select {
		case <-deadline:
			t.Fatalf("state = %v, want connected", m.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestManagerRetriesWithFixedDelay(t *testing.T) {
	const failures = 4
	transport := newFakeTransport(failures)
	start := time.Now()
	startManager(t, transport, &fakeCounter{counts: models.ZoneCounts{}})

	waitForSession(t, transport)

	// Four failures mean four fixed waits before the fifth attempt.
	elapsed := time.Since(start)
	wantMin := 4 * 10 * time.Millisecond
	if elapsed < wantMin {
		t.Fatalf("connected after %v, want at least %v of fixed-delay waits", elapsed, wantMin)
	}
}

func TestManagerAnswersWithEchoedPayload(t *testing.T) {
	transport := newFakeTransport(0)
	counter := &fakeCounter{counts: models.ZoneCounts{"A": 1, "B": 2}}
	startManager(t, transport, counter)

	sess := waitForSession(t, transport)
	sess.requests <- Request{Payload: map[string]interface{}{"id": "req-7", "origin": "panel"}}

	select {
	case ans := <-sess.answers:
		if !reflect.DeepEqual(ans.results, []int{1, 2, 0}) {
			t.Fatalf("results = %v, want [1 2 0]", ans.results)
		}
		if ans.payload["id"] != "req-7" || ans.payload["origin"] != "panel" {
			t.Fatalf("correlation payload not echoed: %v", ans.payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no answer emitted")
	}

	if counter.calls.Load() != 1 {
		t.Fatalf("counter invoked %d times, want 1", counter.calls.Load())
	}
}

func TestManagerAnswersZerosWhenPipelinePanics(t *testing.T) {
	transport := newFakeTransport(0)
	startManager(t, transport, &fakeCounter{panics: true})

	sess := waitForSession(t, transport)
	sess.requests <- Request{Payload: map[string]interface{}{"id": "req-1"}}

	select {
	case ans := <-sess.answers:
		if !reflect.DeepEqual(ans.results, []int{0, 0, 0}) {
			t.Fatalf("results = %v, want all zeros", ans.results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panicking pipeline left the request unanswered")
	}
}

func TestManagerReconnectsAfterDisconnect(t *testing.T) {
	transport := newFakeTransport(0)
	startManager(t, transport, &fakeCounter{counts: models.ZoneCounts{}})

	first := waitForSession(t, transport)
	first.dropConnection()

	second := waitForSession(t, transport)
	if second == first {
		t.Fatal("expected a fresh session after disconnect")
	}

	// Residual state is torn down before the next attempt.
	if first.closeCalls.Load() == 0 {
		t.Fatal("dead session was not closed before reconnecting")
	}
}

func TestManagerStopsOnCancel(t *testing.T) {
	transport := newFakeTransport(0)
	m, cancel := startManager(t, transport, &fakeCounter{counts: models.ZoneCounts{}})

	waitForSession(t, transport)
	cancel()

	deadline := time.After(2 * time.Second)
	for m.State() != StateDisconnected {
		select {
		case <-deadline:
			t.Fatalf("state = %v after cancel, want disconnected", m.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestManagerLogsOnlyFirstFailureOfStreak(t *testing.T) {
	var buf bytes.Buffer
	oldLogger := log.Logger
	oldLevel := zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	defer func() {
		log.Logger = oldLogger
		zerolog.SetGlobalLevel(oldLevel)
	}()

	const failures = 5
	transport := newFakeTransport(failures)
	startManager(t, transport, &fakeCounter{counts: models.ZoneCounts{}})
	waitForSession(t, transport)

	verbose := strings.Count(buf.String(), "Failed to connect to controller")
	if verbose != 1 {
		t.Fatalf("verbose failure logs = %d across %d failures, want 1", verbose, failures)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateWaiting:      "waiting",
		State(99):         "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
