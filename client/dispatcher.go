package client

import "github.com/msgpack-rpc/go-msgpack-rpc/message"

// Dispatcher is the capability a Client consults when the peer it is
// talking to sends a Request or Notification back over the same
// connection (the "bidirectional" mode described by the spec). peer is a
// handle back onto the connection the message arrived on, so a dispatcher
// can itself call the requester.
//
// The default, zero-value behavior when no Dispatcher is installed: a
// Request gets an "unexpected request" error response so the peer's
// pending slot is never leaked, and a Notification is silently dropped.
type Dispatcher interface {
	// HandleRequest answers a remote procedure call. It may block
	// arbitrarily long; the Client runs it on its own goroutine so a
	// slow handler never stalls the read loop.
	HandleRequest(peer *Client, method string, params []message.Value) message.Outcome

	// HandleNotification responds to a one-way call. No reply is sent.
	HandleNotification(peer *Client, method string, params []message.Value)
}

// NotificationHandlerFunc adapts a plain function to a Dispatcher that only
// cares about notifications; any incoming Request still gets the default
// "unexpected request" error response.
type NotificationHandlerFunc func(method string, params []message.Value)

// HandleRequest implements Dispatcher by rejecting all requests.
func (f NotificationHandlerFunc) HandleRequest(*Client, string, []message.Value) message.Outcome {
	return unexpectedRequestOutcome()
}

// HandleNotification implements Dispatcher by invoking f.
func (f NotificationHandlerFunc) HandleNotification(_ *Client, method string, params []message.Value) {
	f(method, params)
}

func unexpectedRequestOutcome() message.Outcome {
	return message.ErrOutcome(message.String("unexpected request"))
}
