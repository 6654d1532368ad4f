package controller

import "context"

// Request is one inbound count request. The payload is an opaque
// correlation object: it is echoed back verbatim in the answer with a
// results array attached so the controller can match answers to
// requests.
type Request struct {
	Payload map[string]interface{}

	// Reply is a transport-specific reply address. Empty for stream
	// transports that answer on a fixed event.
	Reply string
}

// Session is one established connection to the remote controller.
type Session interface {
	// Requests delivers inbound count requests until the session dies.
	Requests() <-chan Request

	// Answer emits a count answer carrying the request's correlation
	// payload plus the ordered results array.
	Answer(req Request, results []int) error

	// Closed is closed when the remote side disconnects or a network
	// error kills the session.
	Closed() <-chan struct{}

	// Close tears the session down. Idempotent, so the manager can
	// always call it before the next connection attempt.
	Close() error
}

// Transport dials the remote controller. The connection manager is
// written against this interface so its state machine is testable with
// a fake transport, away from real network I/O.
type Transport interface {
	Dial(ctx context.Context, url string) (Session, error)
}
