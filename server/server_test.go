package server_test

import (
	"context"
	"net"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msgpack-rpc/go-msgpack-rpc/client"
	"github.com/msgpack-rpc/go-msgpack-rpc/message"
	"github.com/msgpack-rpc/go-msgpack-rpc/metrics"
	"github.com/msgpack-rpc/go-msgpack-rpc/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func assertEqual(t *testing.T, expected, actual any) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatal(expected, actual)
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

type echoDispatcher struct {
	inFlight int32
	maxSeen  int32
}

func (d *echoDispatcher) HandleRequest(peer *client.Client, method string, params []message.Value) message.Outcome {
	n := atomic.AddInt32(&d.inFlight, 1)
	defer atomic.AddInt32(&d.inFlight, -1)
	for {
		max := atomic.LoadInt32(&d.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&d.maxSeen, max, n) {
			break
		}
	}

	switch method {
	case "sleep":
		time.Sleep(50 * time.Millisecond)
		return message.Ok(message.Nil())
	case "echo":
		if len(params) == 0 {
			return message.Ok(message.Nil())
		}
		return message.Ok(params[0])
	default:
		return message.ErrOutcome(message.String("no such method: " + method))
	}
}

func (d *echoDispatcher) HandleNotification(peer *client.Client, method string, params []message.Value) {}

func startServer(t *testing.T, opts ...server.Option) (addr string, stop func()) {
	t.Helper()

	srv, err := server.Bind("127.0.0.1:0", opts...)
	requireNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)

	return srv.LocalAddr().String(), func() {
		cancel()
		srv.Close()
	}
}

func TestServeEchoesRequests(t *testing.T) {
	addr, stop := startServer(t, server.WithDispatcher(&echoDispatcher{}))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cli, err := client.Connect(ctx, addr)
	requireNoError(t, err)
	defer cli.Close()

	outcome, err := cli.Call(ctx, "echo", []message.Value{message.Int(7)})
	requireNoError(t, err)
	if !outcome.IsOk() {
		t.Fatal("expected ok outcome")
	}
	result, _ := outcome.Result()
	n, _ := result.Int()
	assertEqual(t, int64(7), n)
}

func TestServeRejectsUnknownMethod(t *testing.T) {
	addr, stop := startServer(t, server.WithDispatcher(&echoDispatcher{}))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cli, err := client.Connect(ctx, addr)
	requireNoError(t, err)
	defer cli.Close()

	outcome, err := cli.Call(ctx, "nope", nil)
	requireNoError(t, err)
	if outcome.IsOk() {
		t.Fatal("expected error outcome")
	}
}

func TestServeHandlesMultipleConnectionsConcurrently(t *testing.T) {
	addr, stop := startServer(t, server.WithDispatcher(&echoDispatcher{}))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 5
	clients := make([]*client.Client, n)
	for i := range clients {
		cli, err := client.Connect(ctx, addr)
		requireNoError(t, err)
		clients[i] = cli
		defer cli.Close()
	}

	done := make(chan struct{}, n)
	start := time.Now()
	for _, cli := range clients {
		cli := cli
		go func() {
			_, err := cli.Call(ctx, "sleep", nil)
			requireNoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	elapsed := time.Since(start)
	if elapsed > 200*time.Millisecond {
		t.Fatalf("expected concurrent sleeps to overlap, took %v", elapsed)
	}
}

func TestServeMaxConcurrentDispatchBoundsInFlight(t *testing.T) {
	dispatcher := &echoDispatcher{}
	addr, stop := startServer(t, server.WithDispatcher(dispatcher), server.WithMaxConcurrentDispatch(2))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	const n = 5
	clients := make([]*client.Client, n)
	for i := range clients {
		cli, err := client.Connect(ctx, addr)
		requireNoError(t, err)
		clients[i] = cli
		defer cli.Close()
	}

	done := make(chan struct{}, n)
	for _, cli := range clients {
		cli := cli
		go func() {
			cli.Call(ctx, "sleep", nil)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&dispatcher.maxSeen); got > 2 {
		t.Fatalf("max concurrent handlers = %d, want <= 2", got)
	}
}

func TestServeRecordsDispatchMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	addr, stop := startServer(t, server.WithDispatcher(&echoDispatcher{}), server.WithMetrics(m))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cli, err := client.Connect(ctx, addr)
	requireNoError(t, err)
	defer cli.Close()

	before := testutil.ToFloat64(m.CallsTotal.WithLabelValues("echo", "ok"))

	outcome, err := cli.Call(ctx, "echo", []message.Value{message.Int(1)})
	requireNoError(t, err)
	if !outcome.IsOk() {
		t.Fatal("expected ok outcome")
	}

	after := testutil.ToFloat64(m.CallsTotal.WithLabelValues("echo", "ok"))
	if after != before+1 {
		t.Fatalf("server-side calls_total{method=echo,outcome=ok} = %v, want %v", after, before+1)
	}
	if n := testutil.CollectAndCount(m.CallDuration); n == 0 {
		t.Fatal("expected the dispatch path to observe call duration")
	}
}

func TestServeClosesConnectionOnMalformedFrame(t *testing.T) {
	addr, stop := startServer(t, server.WithDispatcher(&echoDispatcher{}))
	defer stop()

	conn, err := net.Dial("tcp", addr)
	requireNoError(t, err)
	defer conn.Close()

	// 0xc1 is msgpack's "never used" format byte: guaranteed malformed.
	_, err = conn.Write([]byte{0xc1})
	requireNoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected connection to be closed after malformed frame")
	}
}
