// Command msgpackrpc-call makes a single msgpack-RPC call against a server
// and prints the outcome.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/msgpack-rpc/go-msgpack-rpc/client"
	"github.com/msgpack-rpc/go-msgpack-rpc/message"
	"github.com/msgpack-rpc/go-msgpack-rpc/peerstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// defaultPeersFile is where remembered peer addresses live absent
// --peers-file; a flat file in the user's home directory, so no directory
// needs to be created before the first --remember.
func defaultPeersFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".msgpackrpc-peers.yaml"
	}
	return filepath.Join(home, ".msgpackrpc-peers.yaml")
}

// fileConfig is the shape of the YAML file --config points at. A flag the
// caller set explicitly on the command line wins over the file. Timeout is a
// duration string (e.g. "5s") rather than time.Duration directly, since
// time.Duration has no YAML unmarshaler of its own.
type fileConfig struct {
	Address string `yaml:"address"`
	Timeout string `yaml:"timeout"`
}

func loadFileConfig(path string, cmd *cobra.Command, addr *string, timeout *time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return errors.Wrap(err, "parse config file")
	}

	flags := cmd.Flags()
	if !flags.Changed("address") && cfg.Address != "" {
		*addr = cfg.Address
	}
	if !flags.Changed("timeout") && cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return errors.Wrap(err, "parse config timeout")
		}
		*timeout = d
	}
	return nil
}

func main() {
	var addr string
	var peerName string
	var peersFile string
	var remember string
	var timeout time.Duration
	var notify bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "msgpackrpc-call <method> [params...]",
		Short: "Make a single msgpack-RPC call",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := loadFileConfig(configPath, cmd, &addr, &timeout); err != nil {
					return err
				}
			}

			method := args[0]
			params := make([]message.Value, len(args)-1)
			for i, a := range args[1:] {
				params[i] = parseArg(a)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			store, err := peerstore.Open(peersFile)
			if err != nil {
				return errors.Wrap(err, "open peers file")
			}

			if peerName != "" {
				peers, err := store.Get(ctx)
				if err != nil {
					return errors.Wrap(err, "read peers file")
				}
				found := false
				for _, p := range peers {
					if p.Name == peerName {
						addr = p.Address
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("no remembered peer named %q in %s", peerName, peersFile)
				}
			}

			cli, err := client.Connect(ctx, addr)
			if err != nil {
				return errors.Wrap(err, "connect")
			}
			defer cli.Close()

			if remember != "" {
				if err := rememberPeer(ctx, store, remember, addr); err != nil {
					return errors.Wrap(err, "remember peer")
				}
			}

			if notify {
				if err := cli.Notify(method, params); err != nil {
					return errors.Wrap(err, "notify")
				}
				return nil
			}

			outcome, err := cli.Call(ctx, method, params)
			if err != nil {
				return errors.Wrap(err, "call")
			}

			if outcome.IsOk() {
				result, _ := outcome.Result()
				fmt.Printf("ok: %s\n", result.String())
				return nil
			}

			errValue, _ := outcome.Error()
			fmt.Printf("err: %s\n", errValue.String())
			os.Exit(1)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&addr, "address", "a", "127.0.0.1:4000", "server address")
	flags.StringVar(&peerName, "peer", "", "dial a remembered peer by name instead of --address")
	flags.StringVar(&peersFile, "peers-file", defaultPeersFile(), "YAML file of remembered peer addresses")
	flags.StringVar(&remember, "remember", "", "save --address under this name in the peers file once connected")
	flags.DurationVarP(&timeout, "timeout", "t", 5*time.Second, "call timeout")
	flags.BoolVarP(&notify, "notify", "n", false, "send a notification instead of a call")
	flags.StringVar(&configPath, "config", "", "YAML config file (address, timeout); flags set on the command line take precedence")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// rememberPeer upserts name -> address into store by name, preserving the
// position and the rest of the list if name is already present.
func rememberPeer(ctx context.Context, store *peerstore.Store, name, address string) error {
	peers, err := store.Get(ctx)
	if err != nil {
		return err
	}

	for i, p := range peers {
		if p.Name == name {
			peers[i].Address = address
			return store.Set(ctx, peers)
		}
	}

	peers = append(peers, peerstore.Peer{Name: name, Address: address})
	return store.Set(ctx, peers)
}

// parseArg interprets a command-line argument as the most specific
// msgpack-rpc value it looks like: "nil", a bool, an integer, a float, and
// finally a plain string.
func parseArg(a string) message.Value {
	switch a {
	case "nil", "null":
		return message.Nil()
	case "true":
		return message.Bool(true)
	case "false":
		return message.Bool(false)
	}
	if n, err := strconv.ParseInt(a, 10, 64); err == nil {
		return message.Int(n)
	}
	if f, err := strconv.ParseFloat(a, 64); err == nil {
		return message.Float(f)
	}
	return message.String(a)
}
