package client

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/msgpack-rpc/go-msgpack-rpc/logging"
	"github.com/msgpack-rpc/go-msgpack-rpc/metrics"
)

// DialFunc establishes the network connection used by Connect.
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// DefaultDialFunc dials a TCP connection, the reference transport.
func DefaultDialFunc(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}

// Option tweaks Client construction.
type Option func(*options)

type options struct {
	Dial       DialFunc
	TLSConfig  *tls.Config
	LogFunc    logging.Func
	Metrics    *metrics.Metrics
	Dispatcher Dispatcher
}

func defaultOptions() *options {
	return &options{
		Dial:    DefaultDialFunc,
		LogFunc: logging.Discard,
	}
}

// WithDialFunc sets a custom dial function for creating the client network
// connection.
func WithDialFunc(dial DialFunc) Option {
	return func(o *options) { o.Dial = dial }
}

// WithTLSConfig wraps the dialed connection in a TLS client handshake using
// cfg. TLS policy (which cert, which CA pool) is entirely the caller's
// concern; the library only offers the knob.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.TLSConfig = cfg }
}

// WithLogFunc sets a custom logging function. The default discards.
func WithLogFunc(log logging.Func) Option {
	return func(o *options) { o.LogFunc = log }
}

// WithMetrics attaches a Prometheus-backed metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.Metrics = m }
}

// WithDispatcher installs the bidirectional dispatch capability: requests
// and notifications the peer sends back over this same connection are
// delivered to it. Without this option, incoming requests get an
// "unexpected request" error response and notifications are dropped.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) { o.Dispatcher = d }
}

// WithRetryDial wraps dial (or the default dial function, if WithDialFunc
// was not also given) with exponential-backoff retry, so Connect keeps
// trying a server that isn't listening yet instead of failing on the first
// attempt. factor is the initial backoff, cap bounds how long any single
// wait grows to, and limit caps the number of attempts (0 means retry until
// the context given to Connect is done).
func WithRetryDial(factor, cap time.Duration, limit uint) Option {
	return func(o *options) {
		inner := o.Dial
		o.Dial = retryingDial(inner, factor, cap, limit)
	}
}
