// Package server implements the accept/dispatch half of msgpack-RPC: bind a
// listener, and for every accepted connection run the same reader/dispatch
// loop the client package uses, with the server's Dispatcher installed.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/msgpack-rpc/go-msgpack-rpc/client"
	"github.com/msgpack-rpc/go-msgpack-rpc/logging"
	"github.com/msgpack-rpc/go-msgpack-rpc/message"
	"github.com/msgpack-rpc/go-msgpack-rpc/metrics"
	"golang.org/x/sync/semaphore"
)

// Server accepts connections and serves a Dispatcher over each one.
//
// A Server does not implement its own protocol handling: each accepted
// net.Conn is wrapped as a *client.Client configured with the server's
// Dispatcher (client.WithDispatcher), and that same *client.Client is the
// "peer" handle the Dispatcher receives, so a handler can call back the
// connection that made the request without the server needing a second,
// duplicate implementation of the read/dispatch loop.
type Server struct {
	listener   net.Listener
	dispatcher client.Dispatcher
	log        logging.Func
	metrics    *metrics.Metrics
	sem        *semaphore.Weighted

	mu       sync.Mutex
	conns    map[*client.Client]struct{}
	closing  bool
	acceptWg sync.WaitGroup
}

// Bind creates a listener on address and returns a Server ready to Serve.
// The network is whatever net.Listen("tcp", address) accepts; address may
// be "host:port" or, for an ephemeral test listener, "127.0.0.1:0".
func Bind(address string, opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("bind: %w", err)
	}

	if o.TLSConfig != nil {
		ln = tls.NewListener(ln, o.TLSConfig)
	}

	s := &Server{
		listener:   ln,
		dispatcher: o.Dispatcher,
		log:        o.LogFunc,
		metrics:    o.Metrics,
		conns:      make(map[*client.Client]struct{}),
	}
	if o.MaxConcurrentDispatch > 0 {
		s.sem = semaphore.NewWeighted(int64(o.MaxConcurrentDispatch))
	}

	return s, nil
}

// LocalAddr returns the address the Server is listening on.
func (s *Server) LocalAddr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled or the listener is
// closed, blocking the caller. Each accepted connection gets its own
// *client.Client, wrapping the server's Dispatcher with a concurrency gate
// if one was configured via WithMaxConcurrentDispatch.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	dispatcher := s.dispatcher
	if s.sem != nil {
		dispatcher = gatedDispatcher{inner: dispatcher, sem: s.sem}
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.acceptWg.Wait()
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.log(logging.Debug, "accepted connection from %s", conn.RemoteAddr())

		peer := client.NewFromConn(conn,
			client.WithLogFunc(s.log),
			client.WithDispatcher(dispatcher),
			client.WithMetrics(s.metrics),
		)

		s.mu.Lock()
		s.conns[peer] = struct{}{}
		s.mu.Unlock()

		s.acceptWg.Add(1)
		go s.waitForClose(peer)
	}
}

// waitForClose removes peer from the live-connection set once its reader
// loop exits on its own (transport closed from either side); it does not
// force the connection closed itself. peer's own Client.readLoop already
// records ConnectionClosed via the metrics it was constructed with.
func (s *Server) waitForClose(peer *client.Client) {
	defer s.acceptWg.Done()
	<-peer.Done()
	s.mu.Lock()
	delete(s.conns, peer)
	s.mu.Unlock()
}

// Close stops accepting new connections and closes every live connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conns := make([]*client.Client, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	err := s.listener.Close()
	for _, c := range conns {
		c.Close()
	}
	return err
}

// gatedDispatcher bounds the number of concurrently executing request
// handlers across the whole server, independent of how many connections or
// requests are in flight. Acceptance is never gated, only execution: the
// spec's "fresh task per request" rule is unchanged, this only bounds how
// many of those tasks may run at once.
type gatedDispatcher struct {
	inner client.Dispatcher
	sem   *semaphore.Weighted
}

func (g gatedDispatcher) HandleRequest(peer *client.Client, method string, params []message.Value) message.Outcome {
	if err := g.sem.Acquire(context.Background(), 1); err != nil {
		return message.ErrOutcome(message.String(fmt.Sprintf("server busy: %v", err)))
	}
	defer g.sem.Release(1)
	if g.inner == nil {
		return message.ErrOutcome(message.String("unexpected request"))
	}
	return g.inner.HandleRequest(peer, method, params)
}

func (g gatedDispatcher) HandleNotification(peer *client.Client, method string, params []message.Value) {
	if err := g.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer g.sem.Release(1)
	if g.inner == nil {
		return
	}
	g.inner.HandleNotification(peer, method, params)
}
