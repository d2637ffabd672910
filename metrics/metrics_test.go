package metrics_test

import (
	"testing"
	"time"

	"github.com/msgpack-rpc/go-msgpack-rpc/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsANoOp(t *testing.T) {
	var m *metrics.Metrics

	done := m.CallStarted("whatever")
	done("ok")
	m.ConnectionOpened()
	m.ConnectionClosed()
}

func TestCompletedCallIncrementsCounterAndObservesLatency(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	before := testutil.ToFloat64(m.CallsTotal.WithLabelValues("echo", "ok"))

	done := m.CallStarted("echo")
	time.Sleep(time.Millisecond)
	done("ok")

	after := testutil.ToFloat64(m.CallsTotal.WithLabelValues("echo", "ok"))
	if after != before+1 {
		t.Fatalf("calls_total{method=echo,outcome=ok} = %v, want %v", after, before+1)
	}

	if n := testutil.CollectAndCount(m.CallDuration); n == 0 {
		t.Fatal("expected at least one observation in the call duration histogram")
	}
}

func TestCallsInFlightTracksStartAndFinish(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	before := testutil.ToFloat64(m.CallsInFlight)
	done := m.CallStarted("sleep")
	if got := testutil.ToFloat64(m.CallsInFlight); got != before+1 {
		t.Fatalf("calls_in_flight = %v, want %v", got, before+1)
	}
	done("ok")
	if got := testutil.ToFloat64(m.CallsInFlight); got != before {
		t.Fatalf("calls_in_flight = %v, want %v", got, before)
	}
}

func TestConnectionGaugeTracksOpenAndClose(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	before := testutil.ToFloat64(m.Connections)
	m.ConnectionOpened()
	if got := testutil.ToFloat64(m.Connections); got != before+1 {
		t.Fatalf("connections = %v, want %v", got, before+1)
	}
	m.ConnectionClosed()
	if got := testutil.ToFloat64(m.Connections); got != before {
		t.Fatalf("connections = %v, want %v", got, before)
	}
}

func TestNewIsIdempotentAcrossRegisterers(t *testing.T) {
	a := metrics.New(prometheus.NewRegistry())
	b := metrics.New(prometheus.NewRegistry())
	if a != b {
		t.Fatal("New should return the same singleton on repeated calls, ignoring the later registerer")
	}
}
