// Package peerstore persists a list of candidate server addresses for CLI
// tooling to dial. It is deliberately outside the protocol library itself:
// msgpack-RPC has no notion of a peer directory, only a stream to dial
// (spec.md's non-goals exclude service discovery). This is operator
// convenience for cmd/, grounded on the teacher's YamlNodeStore.
package peerstore

import (
	"context"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/renameio"
)

// Peer is one candidate server address with an operator-assigned label.
type Peer struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Store persists a list of Peers in a YAML file, atomically.
type Store struct {
	path  string
	peers []Peer
	mu    sync.RWMutex
}

// Open loads a Store backed by the given YAML file. A missing file is
// treated as an empty store.
func Open(path string) (*Store, error) {
	peers := []Peer{}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &peers); err != nil {
			return nil, err
		}
	}

	return &Store{path: path, peers: peers}, nil
}

// Get returns the current peers.
func (s *Store) Get(ctx context.Context) ([]Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Peer, len(s.peers))
	copy(out, s.peers)
	return out, nil
}

// Set replaces the stored peers and persists them with a rename-into-place
// write, so a crash mid-write never leaves a truncated file behind.
func (s *Store) Set(ctx context.Context, peers []Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(peers)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}

	s.peers = peers
	return nil
}
