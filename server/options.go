package server

import (
	"crypto/tls"

	"github.com/msgpack-rpc/go-msgpack-rpc/client"
	"github.com/msgpack-rpc/go-msgpack-rpc/logging"
	"github.com/msgpack-rpc/go-msgpack-rpc/metrics"
)

// Option tweaks Server construction.
type Option func(*options)

type options struct {
	Dispatcher            client.Dispatcher
	LogFunc               logging.Func
	Metrics               *metrics.Metrics
	TLSConfig             *tls.Config
	MaxConcurrentDispatch int
}

func defaultOptions() *options {
	return &options{
		LogFunc: logging.Discard,
	}
}

// WithDispatcher installs the Dispatcher every accepted connection serves.
func WithDispatcher(d client.Dispatcher) Option {
	return func(o *options) { o.Dispatcher = d }
}

// WithLogFunc sets a custom logging function. The default discards.
func WithLogFunc(log logging.Func) Option {
	return func(o *options) { o.LogFunc = log }
}

// WithMetrics attaches a Prometheus-backed metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.Metrics = m }
}

// WithTLSConfig wraps the listener in a TLS server handshake using cfg.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.TLSConfig = cfg }
}

// WithMaxConcurrentDispatch bounds how many request and notification
// handlers may execute at once across the whole server. Acceptance and per-connection goroutine
// spawn are unaffected; handlers beyond the bound queue for a free slot.
// Zero (the default) means unbounded.
func WithMaxConcurrentDispatch(n int) Option {
	return func(o *options) { o.MaxConcurrentDispatch = n }
}
