package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ComputeChecksumReader computes the SHA-256 checksum of everything read from r.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// hashPrefixPattern matches model-zoo file names such as
// "cifar10-d875770b.pth": a stem, a dash, a hex digest prefix and an extension.
var hashPrefixPattern = regexp.MustCompile(`-([a-f0-9]+)\.[^.]+$`)

// HashPrefix extracts the digest prefix embedded in a model-zoo file name.
// The boolean is false when the name carries none.
func HashPrefix(name string) (string, bool) {
	m := hashPrefixPattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// VerifyHashPrefix checks that the SHA-256 of the file at path starts with
// prefix. It returns an error wrapping ErrChecksumMismatch otherwise.
func VerifyHashPrefix(path, prefix string) error {
	f, err := os.Open(path) //nolint:gosec // G304: checkpoint paths come from the registry
	if err != nil {
		return err
	}
	defer f.Close()

	sum, err := ComputeChecksumReader(f)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}

	digest := hex.EncodeToString(sum[:])
	if !strings.HasPrefix(digest, strings.ToLower(prefix)) {
		return &ValidationError{
			Details: fmt.Sprintf("%s: sha256 %s does not start with %s", filepath.Base(path), digest, prefix),
			Err:     ErrChecksumMismatch,
		}
	}
	return nil
}
