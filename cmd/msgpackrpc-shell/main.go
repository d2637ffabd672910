// Command msgpackrpc-shell is an interactive msgpack-RPC call prompt: each
// line typed is "method [args...]", sent as a Call, with the outcome
// printed back.
package main

import (
	"context"
	"os"
	"time"

	"github.com/msgpack-rpc/go-msgpack-rpc/internal/shell"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	var addr string
	var format string
	var connectTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "msgpackrpc-shell",
		Short: "Interactive msgpack-RPC call prompt",
		Long: `Connects to a msgpack-RPC server and reads "method [args...]" lines from
stdin, sending each as a call and printing the outcome.

Complete documentation is available at https://github.com/msgpack-rpc/go-msgpack-rpc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()

			sh, err := shell.Connect(ctx, addr, shell.WithFormat(format))
			if err != nil {
				return errors.Wrap(err, "connect")
			}
			defer sh.Close()

			return sh.Run(os.Stdout)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&addr, "address", "a", "127.0.0.1:4000", "server address")
	flags.StringVarP(&format, "format", "f", shell.FormatValue, "output format: value or raw")
	flags.DurationVar(&connectTimeout, "connect-timeout", 5*time.Second, "connect timeout")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
