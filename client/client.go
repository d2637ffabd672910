package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/msgpack-rpc/go-msgpack-rpc/internal/pending"
	"github.com/msgpack-rpc/go-msgpack-rpc/logging"
	"github.com/msgpack-rpc/go-msgpack-rpc/message"
	"github.com/msgpack-rpc/go-msgpack-rpc/metrics"
)

// Client owns one connection's worth of msgpack-RPC state: the pending
// table, the writer lock, and the reader goroutine that demultiplexes
// Response messages to pending calls and dispatches inbound Request/
// Notification messages (§4.4, §4.5 of the spec).
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	pending *pending.Table

	log        logging.Func
	metrics    *metrics.Metrics
	dispatcher Dispatcher

	closeOnce  sync.Once
	readerDone chan struct{}
}

// Connect establishes the transport and starts the reader goroutine. It
// fails with whatever error the dial function returns.
func Connect(ctx context.Context, address string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	conn, err := o.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if o.TLSConfig != nil {
		tlsConn := tls.Client(conn, o.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
	}

	return newClient(conn, o), nil
}

// NewFromConn wraps an already-established connection. The server package
// uses this to give each accepted connection client-shaped call semantics,
// and to construct the peer handle passed to its dispatcher: the same
// *Client returned here is what a Dispatcher sees as its peer argument.
func NewFromConn(conn net.Conn, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newClient(conn, o)
}

func newClient(conn net.Conn, o *options) *Client {
	log := o.LogFunc
	c := &Client{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		pending:    pending.New(func(format string, args ...any) { log(logging.Warn, format, args...) }),
		log:        log,
		metrics:    o.Metrics,
		dispatcher: o.Dispatcher,
		readerDone: make(chan struct{}),
	}
	if c.metrics != nil {
		c.metrics.ConnectionOpened()
	}
	go c.readLoop()
	return c
}

// Call sends a Request and blocks until the matching Response arrives, the
// connection fails, or ctx is canceled. The returned Outcome's error side is
// the peer's reported RpcError; a non-nil error return means the call never
// completed (transport failure or context cancellation).
func (c *Client) Call(ctx context.Context, method string, params []message.Value) (message.Outcome, error) {
	id, slot, err := c.pending.Allocate()
	if err != nil {
		return message.Outcome{}, err
	}

	var done func(string)
	if c.metrics != nil {
		done = c.metrics.CallStarted(method)
	}

	req := message.NewRequest(message.Request{ID: id, Method: method, Params: params})
	if err := c.writeMessage(req); err != nil {
		c.Close()
		if done != nil {
			done("err")
		}
		return message.Outcome{}, err
	}

	select {
	case delivery := <-slot.Chan():
		if done != nil {
			done(outcomeLabel(delivery))
		}
		if delivery.Err != nil {
			return message.Outcome{}, delivery.Err
		}
		return delivery.Outcome, nil
	case <-ctx.Done():
		if done != nil {
			done("canceled")
		}
		return message.Outcome{}, ctx.Err()
	}
}

// AsyncCall sends a Request and returns the pending Slot immediately,
// without waiting for a response. The caller reads slot.Wait() or
// slot.Chan() later. Multiple outstanding AsyncCall slots may complete in
// any order; a slow call never blocks a fast one.
func (c *Client) AsyncCall(method string, params []message.Value) (*pending.Slot, error) {
	id, slot, err := c.pending.Allocate()
	if err != nil {
		return nil, err
	}

	var done func(string)
	if c.metrics != nil {
		done = c.metrics.CallStarted(method)
	}

	req := message.NewRequest(message.Request{ID: id, Method: method, Params: params})
	if err := c.writeMessage(req); err != nil {
		c.Close()
		if done != nil {
			done("err")
		}
		return nil, err
	}

	if done != nil {
		go func() {
			done(outcomeLabel(slot.Wait()))
		}()
	}

	return slot, nil
}

func outcomeLabel(d pending.Delivery) string {
	switch {
	case d.Err != nil:
		return "closed"
	case d.Outcome.IsOk():
		return "ok"
	default:
		return "err"
	}
}

// Notify encodes a Notification and hands it to the transport. It returns
// as soon as the bytes are written; there is no correlation and no reply.
func (c *Client) Notify(method string, params []message.Value) error {
	n := message.NewNotification(message.Notification{Method: method, Params: params})
	return c.writeMessage(n)
}

// Close stops the reader, closes the transport, and fails every outstanding
// slot with pending.ErrClosed. It blocks until the reader goroutine exits.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	<-c.readerDone
	return err
}

func (c *Client) writeMessage(m message.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return message.Encode(c.conn, m)
}

// readLoop continuously decodes messages until the connection fails, then
// fails every outstanding call and returns.
func (c *Client) readLoop() {
	defer close(c.readerDone)
	defer func() {
		c.pending.FailAll(pending.ErrClosed)
		if c.metrics != nil {
			c.metrics.ConnectionClosed()
		}
	}()

	for {
		msg, err := message.Decode(c.reader)
		if err != nil {
			c.log(logging.Debug, "read loop stopping: %v", err)
			c.conn.Close()
			return
		}

		switch msg.Kind() {
		case message.KindResponseMsg:
			resp, _ := msg.AsResponse()
			c.pending.Resolve(resp.ID, resp.Outcome)

		case message.KindRequestMsg:
			req, _ := msg.AsRequest()
			go c.handleRequest(req)

		case message.KindNotificationMsg:
			note, _ := msg.AsNotification()
			go c.handleNotification(note)
		}
	}
}

// handleRequest runs on its own goroutine so a slow handler never stalls
// the read loop. A panic in the dispatcher is converted to an "internal
// error" response rather than taking the process down.
func (c *Client) handleRequest(req message.Request) {
	var done func(string)
	if c.metrics != nil {
		done = c.metrics.CallStarted(req.Method)
	}

	outcome := c.dispatch(req)
	if done != nil {
		done(outcomeLabel(pending.Delivery{Outcome: outcome}))
	}

	resp := message.NewResponse(message.Response{ID: req.ID, Outcome: outcome})
	if err := c.writeMessage(resp); err != nil {
		c.log(logging.Warn, "failed to write response for request %d: %v", req.ID, err)
	}
}

func (c *Client) dispatch(req message.Request) (outcome message.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = message.ErrOutcome(message.String(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	if c.dispatcher == nil {
		return unexpectedRequestOutcome()
	}
	return c.dispatcher.HandleRequest(c, req.Method, req.Params)
}

func (c *Client) handleNotification(note message.Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.log(logging.Warn, "notification handler for %q panicked: %v", note.Method, r)
		}
	}()

	if c.dispatcher == nil {
		return
	}
	c.dispatcher.HandleNotification(c, note.Method, note.Params)
}

// Done returns a channel that is closed once the reader loop has exited,
// whether because Close was called or the transport failed on its own. The
// server package uses this to notice a connection going away without
// forcing it closed itself.
func (c *Client) Done() <-chan struct{} {
	return c.readerDone
}

// LocalAddr returns the connection's local network address.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the connection's remote network address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
