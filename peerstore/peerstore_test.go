package peerstore_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/msgpack-rpc/go-msgpack-rpc/peerstore"
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

func TestOpenMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")

	store, err := peerstore.Open(path)
	requireNoError(t, err)

	peers, err := store.Get(context.Background())
	requireNoError(t, err)
	assertEqual(t, 0, len(peers))
}

func TestSetThenGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")

	store, err := peerstore.Open(path)
	requireNoError(t, err)

	want := []peerstore.Peer{
		{Name: "primary", Address: "10.0.0.1:4000"},
		{Name: "secondary", Address: "10.0.0.2:4000"},
	}
	requireNoError(t, store.Set(context.Background(), want))

	got, err := store.Get(context.Background())
	requireNoError(t, err)
	assertEqual(t, want, got)

	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestSetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")

	store, err := peerstore.Open(path)
	requireNoError(t, err)

	want := []peerstore.Peer{{Name: "only", Address: "127.0.0.1:9999"}}
	requireNoError(t, store.Set(context.Background(), want))

	reopened, err := peerstore.Open(path)
	requireNoError(t, err)

	got, err := reopened.Get(context.Background())
	requireNoError(t, err)
	assertEqual(t, want, got)
}
