package checkpoint

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/cifar/internal/envconfig"
)

// Built-in locations. Every other key must be registered.
var builtin = map[string]string{
	"cifar10":  "http://ml.cs.tsinghua.edu.cn/~chenxi/pytorch-models/cifar10-d875770b.pth",
	"cifar100": "http://ml.cs.tsinghua.edu.cn/~chenxi/pytorch-models/cifar100-3a55a987.pth",
}

// Registry maps checkpoint keys to locations. A location is an http(s)
// URL or a local file path. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	locations map[string]string
}

// NewRegistry returns a registry holding the built-in locations.
func NewRegistry() *Registry {
	r := &Registry{locations: make(map[string]string, len(builtin))}
	for k, v := range builtin {
		r.locations[k] = v
	}
	return r
}

// DefaultRegistry returns the built-in registry merged with the file named
// by BORN_CHECKPOINTS, if set.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if path := envconfig.CheckpointsFile(); path != "" {
		if err := r.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces the location for key.
func (r *Registry) Register(key, location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[key] = location
}

// Lookup returns the location for key, or a *LookupError.
func (r *Registry) Lookup(key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	location, ok := r.locations[key]
	if !ok {
		return "", &LookupError{Key: key}
	}
	return location, nil
}

// Keys returns all registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.locations))
	for k := range r.locations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadFile merges a YAML file of "key: location" entries. Relative local
// paths are resolved against the file's directory.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-supplied config path
	if err != nil {
		return fmt.Errorf("read checkpoint registry: %w", err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse checkpoint registry %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for key, location := range entries {
		if location == "" {
			return fmt.Errorf("parse checkpoint registry %s: empty location for %q", path, key)
		}
		if !isRemote(location) && !filepath.IsAbs(location) {
			location = filepath.Join(dir, location)
		}
		r.Register(key, location)
	}

	slog.Debug("loaded checkpoint registry", "path", path, "entries", len(entries))
	return nil
}

// isRemote reports whether location is an http(s) URL.
func isRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
