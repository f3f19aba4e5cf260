// Package envconfig reads born-cifar settings from the environment.
//
// Every accessor reads the environment on each call, so tests can use
// t.Setenv without reloading anything.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Home returns the cache root.
// Configurable via BORN_HOME, default $XDG_CACHE_HOME/born or ~/.cache/born.
func Home() string {
	if s := Var("BORN_HOME"); s != "" {
		return s
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			panic(fmt.Errorf("no cache directory: %w", err))
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "born")
}

// Checkpoints returns the directory downloaded checkpoints are cached in.
func Checkpoints() string {
	return filepath.Join(Home(), "checkpoints")
}

// DownloadTimeout returns the overall time allowed for one checkpoint download.
// Configurable via BORN_DOWNLOAD_TIMEOUT as a duration ("90s") or whole
// seconds. Zero or negative disables the timeout. Default: 10 minutes.
func DownloadTimeout() (timeout time.Duration) {
	timeout = 10 * time.Minute
	if s := Var("BORN_DOWNLOAD_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			timeout = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			timeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("invalid environment variable, using default", "key", "BORN_DOWNLOAD_TIMEOUT", "value", s, "default", timeout)
		}
	}

	if timeout < 0 {
		return 0
	}
	return timeout
}

// LogLevel returns the log level.
// Configurable via BORN_DEBUG: 0/false = INFO (default), 1/true = DEBUG,
// 2 = TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("BORN_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

var (
	// Offline disables network access. Cache misses become errors.
	Offline = Bool("BORN_OFFLINE")
	// CheckpointsFile names a YAML file of extra key: location entries.
	CheckpointsFile = String("BORN_CHECKPOINTS")
)

// Bool returns a reader for a boolean variable. Unparseable non-empty
// values count as true.
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// String returns a reader for a string variable.
func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

// EnvVar describes one setting for display.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every setting with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BORN_HOME":             {"BORN_HOME", Home(), "Cache root (default ~/.cache/born)"},
		"BORN_DEBUG":            {"BORN_DEBUG", LogLevel(), "Show additional debug information (e.g. BORN_DEBUG=1)"},
		"BORN_OFFLINE":          {"BORN_OFFLINE", Offline(), "Never download; use cached checkpoints only"},
		"BORN_DOWNLOAD_TIMEOUT": {"BORN_DOWNLOAD_TIMEOUT", DownloadTimeout(), "Time allowed for one checkpoint download (default \"10m\")"},
		"BORN_CHECKPOINTS":      {"BORN_CHECKPOINTS", CheckpointsFile(), "YAML file of extra checkpoint locations"},
	}
}

// Values returns every setting formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Var returns an environment variable stripped of surrounding spaces and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
