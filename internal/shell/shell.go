package shell

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/msgpack-rpc/go-msgpack-rpc/client"
	"github.com/msgpack-rpc/go-msgpack-rpc/message"
	"github.com/peterh/liner"
)

// Shell is an interactive msgpack-RPC call prompt over a single connection.
type Shell struct {
	cli    *client.Client
	format string
	prompt string
}

// Connect dials address and returns a Shell ready to Run.
func Connect(ctx context.Context, address string, opts ...Option) (*Shell, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cli, err := client.Connect(ctx, address, client.WithDialFunc(o.Dial))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &Shell{cli: cli, format: o.Format, prompt: o.Prompt}, nil
}

// Close closes the underlying connection.
func (s *Shell) Close() error {
	return s.cli.Close()
}

// Run reads method calls from stdin until EOF or "exit"/"quit", printing
// each outcome to out.
func (s *Shell) Run(out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(s.prompt)
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "exit" || input == "quit" {
			return nil
		}

		fields := strings.Fields(input)
		method := fields[0]
		params := make([]message.Value, len(fields)-1)
		for i, f := range fields[1:] {
			params[i] = parseField(f)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		outcome, err := s.cli.Call(ctx, method, params)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		s.printOutcome(out, outcome)
	}
}

func (s *Shell) printOutcome(out io.Writer, outcome message.Outcome) {
	if outcome.IsOk() {
		v, _ := outcome.Result()
		if s.format == FormatRaw {
			fmt.Fprintf(out, "%#v\n", v)
			return
		}
		fmt.Fprintf(out, "=> %s\n", v.String())
		return
	}

	v, _ := outcome.Error()
	fmt.Fprintf(out, "!! %s\n", v.String())
}

func parseField(f string) message.Value {
	switch f {
	case "nil", "null":
		return message.Nil()
	case "true":
		return message.Bool(true)
	case "false":
		return message.Bool(false)
	}
	if n, err := strconv.ParseInt(f, 10, 64); err == nil {
		return message.Int(n)
	}
	if v, err := strconv.ParseFloat(f, 64); err == nil {
		return message.Float(v)
	}
	return message.String(f)
}
