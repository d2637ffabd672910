// Package shell implements an interactive msgpack-RPC call prompt: read a
// method and arguments, send the call, print the outcome.
package shell

import "github.com/msgpack-rpc/go-msgpack-rpc/client"

// Option that can be used to tweak shell parameters.
type Option func(*options)

// WithDialFunc sets a custom dial function for connecting to the server.
func WithDialFunc(dial client.DialFunc) Option {
	return func(options *options) {
		options.Dial = dial
	}
}

// WithFormat specifies how call outcomes are printed.
func WithFormat(format string) Option {
	return func(options *options) {
		options.Format = format
	}
}

// WithPrompt sets the liner prompt string. The default is "msgpack-rpc> ".
func WithPrompt(prompt string) Option {
	return func(options *options) {
		options.Prompt = prompt
	}
}

type options struct {
	Dial   client.DialFunc
	Format string
	Prompt string
}

// Create a shell options object with sane defaults.
func defaultOptions() *options {
	return &options{
		Dial:   client.DefaultDialFunc,
		Format: FormatValue,
		Prompt: "msgpack-rpc> ",
	}
}

// Output formats accepted by WithFormat.
const (
	FormatValue = "value"
	FormatRaw   = "raw"
)
