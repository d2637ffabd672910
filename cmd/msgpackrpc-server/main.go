// Command msgpackrpc-server runs a demo msgpack-RPC server exposing an
// "echo" and a "sleep" method, with Prometheus metrics over HTTP.
//
// Complete documentation is available at
// https://github.com/msgpack-rpc/go-msgpack-rpc
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/msgpack-rpc/go-msgpack-rpc/client"
	"github.com/msgpack-rpc/go-msgpack-rpc/logging"
	"github.com/msgpack-rpc/go-msgpack-rpc/message"
	"github.com/msgpack-rpc/go-msgpack-rpc/metrics"
	"github.com/msgpack-rpc/go-msgpack-rpc/server"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// fileConfig is the shape of the YAML file --config points at. Any flag the
// caller set explicitly on the command line wins over the file; the file
// only fills in flags not set on the command line, replacing their defaults.
type fileConfig struct {
	Listen        string `yaml:"listen"`
	Metrics       string `yaml:"metrics"`
	Verbose       bool   `yaml:"verbose"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

func loadFileConfig(path string, cmd *cobra.Command, addr, metricsAddr *string, verbose *bool, maxConcurrent *int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return errors.Wrap(err, "parse config file")
	}

	flags := cmd.Flags()
	if !flags.Changed("listen") && cfg.Listen != "" {
		*addr = cfg.Listen
	}
	if !flags.Changed("metrics") && cfg.Metrics != "" {
		*metricsAddr = cfg.Metrics
	}
	if !flags.Changed("verbose") && cfg.Verbose {
		*verbose = cfg.Verbose
	}
	if !flags.Changed("max-concurrent") && cfg.MaxConcurrent > 0 {
		*maxConcurrent = cfg.MaxConcurrent
	}
	return nil
}

func main() {
	var addr string
	var metricsAddr string
	var verbose bool
	var crt string
	var key string
	var maxConcurrent int
	var configPath string

	cmd := &cobra.Command{
		Use:   "msgpackrpc-server",
		Short: "Demo msgpack-RPC server",
		Long: `This demo shows how to run a msgpack-RPC server.

Complete documentation is available at https://github.com/msgpack-rpc/go-msgpack-rpc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := loadFileConfig(configPath, cmd, &addr, &metricsAddr, &verbose, &maxConcurrent); err != nil {
					return err
				}
			}

			logFunc := func(l logging.Level, format string, a ...any) {
				if !verbose {
					return
				}
				log.Printf(fmt.Sprintf("%s: %s: %s\n", addr, l.String(), format), a...)
			}

			opts := []server.Option{
				server.WithDispatcher(demoDispatcher{}),
				server.WithLogFunc(logFunc),
				server.WithMetrics(metrics.New(nil)),
			}
			if maxConcurrent > 0 {
				opts = append(opts, server.WithMaxConcurrentDispatch(maxConcurrent))
			}

			if (crt != "" && key == "") || (key != "" && crt == "") {
				return fmt.Errorf("both TLS certificate and key must be given")
			}
			if crt != "" {
				cert, err := tls.LoadX509KeyPair(crt, key)
				if err != nil {
					return errors.Wrap(err, "load TLS keypair")
				}
				data, err := os.ReadFile(crt)
				if err != nil {
					return errors.Wrap(err, "read TLS cert")
				}
				pool := x509.NewCertPool()
				if !pool.AppendCertsFromPEM(data) {
					return fmt.Errorf("bad certificate")
				}
				opts = append(opts, server.WithTLSConfig(&tls.Config{
					Certificates: []tls.Certificate{cert},
					ClientCAs:    pool,
				}))
			}

			srv, err := server.Bind(addr, opts...)
			if err != nil {
				return errors.Wrap(err, "bind")
			}

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				go http.ListenAndServe(metricsAddr, mux)
			}

			ctx, cancel := context.WithCancel(context.Background())

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.Serve(ctx) }()

			ch := make(chan os.Signal, 32)
			signal.Notify(ch, unix.SIGINT, unix.SIGQUIT, unix.SIGTERM)

			select {
			case <-ch:
				cancel()
				return <-serveErr
			case err := <-serveErr:
				return err
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&addr, "listen", "l", "127.0.0.1:4000", "address to listen for RPC connections on")
	flags.StringVarP(&metricsAddr, "metrics", "m", "", "address to expose Prometheus metrics on (empty disables)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	flags.StringVarP(&crt, "cert", "c", "", "public TLS cert")
	flags.StringVarP(&key, "key", "k", "", "private TLS key")
	flags.IntVar(&maxConcurrent, "max-concurrent", 0, "bound concurrently executing handlers (0 = unbounded)")
	flags.StringVar(&configPath, "config", "", "YAML config file (listen, metrics, verbose, max_concurrent); flags set on the command line take precedence")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// demoDispatcher answers "echo" by returning its first argument, and
// "sleep" by blocking for the given number of milliseconds; anything else
// gets a "no such method: <name>" error outcome.
type demoDispatcher struct{}

func (demoDispatcher) HandleRequest(peer *client.Client, method string, params []message.Value) message.Outcome {
	switch method {
	case "echo":
		if len(params) == 0 {
			return message.Ok(message.Nil())
		}
		return message.Ok(params[0])
	case "sleep":
		ms := int64(0)
		if len(params) > 0 {
			if n, ok := params[0].Int(); ok {
				ms = n
			}
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return message.Ok(message.Nil())
	default:
		return message.ErrOutcome(message.String("no such method: " + method))
	}
}

func (demoDispatcher) HandleNotification(peer *client.Client, method string, params []message.Value) {}
