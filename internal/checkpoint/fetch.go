package checkpoint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/born-ml/cifar/internal/envconfig"
	"github.com/born-ml/cifar/internal/loader"
)

// Fetcher resolves checkpoint locations to local files, downloading remote
// ones into a cache directory.
type Fetcher struct {
	Client   *http.Client
	CacheDir string
	// Offline makes a cache miss an error wrapping ErrOffline.
	Offline bool
	// CheckHash verifies downloads whose file name carries a SHA-256
	// prefix, as in "cifar10-d875770b.pth".
	CheckHash bool
	// Progress, if set, is called as bytes arrive. total is -1 when the
	// server does not send a length.
	Progress func(location string, completed, total int64)
}

// NewFetcher returns a Fetcher configured from the environment.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: envconfig.DownloadTimeout()},
		CacheDir:  envconfig.Checkpoints(),
		Offline:   envconfig.Offline(),
		CheckHash: true,
	}
}

// Fetch returns a local path holding the checkpoint at location.
//
// Local paths are returned as is once they are known to exist. Remote files
// are cached as <CacheDir>/<basename of URL path> and reused on later calls.
// Downloads land in a partial file that is renamed into place only after it
// is complete and verified.
func (f *Fetcher) Fetch(ctx context.Context, location string) (string, error) {
	if !isRemote(location) {
		return localPath(location)
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse checkpoint location: %w", err)
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return "", fmt.Errorf("checkpoint location %s has no file name", location)
	}
	cached := filepath.Join(f.CacheDir, base)

	if _, err := os.Stat(cached); err == nil {
		slog.Debug("checkpoint cache hit", "location", location, "path", cached)
		return cached, nil
	}

	if f.Offline {
		return "", fmt.Errorf("%w: %s", ErrOffline, location)
	}

	if err := f.download(ctx, location, cached); err != nil {
		return "", err
	}
	return cached, nil
}

func (f *Fetcher) download(ctx context.Context, location, dest string) error {
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return fmt.Errorf("make checkpoint directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	slog.Debug("downloading checkpoint", "location", location)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("download %s: server responded with %s: %s", location, resp.Status, body)
	}

	out, err := os.CreateTemp(f.CacheDir, filepath.Base(dest)+"-partial-*")
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	partial := out.Name()
	defer os.Remove(partial) // no-op after a successful rename

	var w io.Writer = out
	if f.Progress != nil {
		w = &progressWriter{w: out, location: location, total: resp.ContentLength, fn: f.Progress}
	}

	n, err := io.Copy(w, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", location, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("download %s: got %d bytes, want %d: %w", location, n, resp.ContentLength, io.ErrUnexpectedEOF)
	}

	if f.CheckHash {
		if prefix, ok := loader.HashPrefix(dest); ok {
			if err := loader.VerifyHashPrefix(partial, prefix); err != nil {
				return fmt.Errorf("download %s: %w", location, err)
			}
		}
	}

	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}

	slog.Debug("checkpoint downloaded", "location", location, "path", dest, "bytes", n)
	return nil
}

// localPath accepts plain paths and file:// URLs.
func localPath(location string) (string, error) {
	if u, err := url.Parse(location); err == nil && u.Scheme == "file" {
		location = u.Path
	}

	info, err := os.Stat(location)
	if err != nil {
		return "", fmt.Errorf("checkpoint %s: %w", location, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("checkpoint %s is a directory", location)
	}
	return location, nil
}

type progressWriter struct {
	w         io.Writer
	location  string
	completed int64
	total     int64
	fn        func(string, int64, int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.completed += int64(n)
	p.fn(p.location, p.completed, p.total)
	return n, err
}
