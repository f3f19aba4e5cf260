// Package checkpoint resolves checkpoint keys to parameter mappings.
//
// A Registry maps keys to locations, a Fetcher turns locations into local
// files (downloading and caching remote ones), and StateDict turns a decoded
// file into name-to-tensor pairs. Store chains the three.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/born-ml/cifar/internal/loader"
	"github.com/born-ml/cifar/internal/tensor"
)

// Store loads checkpoints by key.
type Store struct {
	Registry *Registry
	Fetcher  *Fetcher
}

// NewStore returns a Store configured from the environment.
func NewStore() (*Store, error) {
	registry, err := DefaultRegistry()
	if err != nil {
		return nil, err
	}
	return &Store{Registry: registry, Fetcher: NewFetcher()}, nil
}

// Fetch resolves key and returns the local path of its file.
func (s *Store) Fetch(ctx context.Context, key string) (string, error) {
	location, err := s.Registry.Lookup(key)
	if err != nil {
		return "", err
	}
	return s.Fetcher.Fetch(ctx, location)
}

// Load resolves, fetches and decodes the checkpoint for key.
func (s *Store) Load(ctx context.Context, key string) (map[string]*tensor.RawTensor, error) {
	path, err := s.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	obj, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", key, err)
	}

	state, err := StateDict(key, obj)
	if err != nil {
		return nil, err
	}

	slog.Debug("decoded checkpoint", "key", key, "path", path, "tensors", len(state))
	return state, nil
}
