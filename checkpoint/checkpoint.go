// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint resolves checkpoint keys to parameter mappings.
//
// Keys are looked up in a Registry, fetched (and cached) by a Fetcher, and
// decoded into state dicts. Store chains the three and satisfies
// models.CheckpointSource.
//
// Environment:
//   - BORN_HOME: cache root (default: user cache dir + "/born")
//   - BORN_CHECKPOINTS: YAML file of extra key: location entries
//   - BORN_OFFLINE: never download, only use cached files
//   - BORN_DOWNLOAD_TIMEOUT: per-download timeout
//
// Example:
//
//	store, err := checkpoint.NewStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store.Registry.Register("cifar10_mine", "/data/cifar10_mine.pt")
//	net, err := models.CIFAR10(ctx, models.CIFAR10Config{
//	    Channels: 128, Pretrained: true, Checkpoints: store,
//	}, backend)
package checkpoint

import (
	"github.com/born-ml/cifar/internal/checkpoint"
	"github.com/born-ml/cifar/internal/tensor"
)

// Store loads checkpoints by key.
type Store = checkpoint.Store

// Registry maps checkpoint keys to file paths or URLs.
type Registry = checkpoint.Registry

// Fetcher turns checkpoint locations into local files.
type Fetcher = checkpoint.Fetcher

// LookupError reports a key with no registered location.
type LookupError = checkpoint.LookupError

// TypeAssertionError reports a checkpoint that is not a name-to-tensor mapping.
type TypeAssertionError = checkpoint.TypeAssertionError

// Sentinel errors, matched with errors.Is.
var (
	ErrUnknownKey = checkpoint.ErrUnknownKey
	ErrNotMapping = checkpoint.ErrNotMapping
	ErrOffline    = checkpoint.ErrOffline
)

// NewStore returns a Store configured from the environment.
func NewStore() (*Store, error) {
	return checkpoint.NewStore()
}

// NewRegistry returns a registry holding the built-in keys.
func NewRegistry() *Registry {
	return checkpoint.NewRegistry()
}

// DefaultRegistry returns the built-in keys merged with BORN_CHECKPOINTS.
func DefaultRegistry() (*Registry, error) {
	return checkpoint.DefaultRegistry()
}

// NewFetcher returns a Fetcher configured from the environment.
func NewFetcher() *Fetcher {
	return checkpoint.NewFetcher()
}

// StateDict converts a decoded checkpoint object into a state dict.
//
// A top-level "state_dict" entry is unwrapped. Anything that is not a
// mapping from names to tensors yields a *TypeAssertionError.
func StateDict(name string, obj any) (map[string]*tensor.RawTensor, error) {
	return checkpoint.StateDict(name, obj)
}
