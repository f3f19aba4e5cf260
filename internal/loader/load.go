package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a checkpoint file format.
type Format int

// Supported checkpoint formats.
const (
	FormatUnknown Format = iota
	FormatTorch
	FormatSafeTensors
)

// String returns a human-readable format name.
func (f Format) String() string {
	switch f {
	case FormatTorch:
		return "torch"
	case FormatSafeTensors:
		return "safetensors"
	default:
		return "unknown"
	}
}

var (
	zipMagic    = []byte("PK\x03\x04")
	pickleProto = byte(0x80)
)

// DetectFormat inspects the first bytes of the file at path.
//
// torch.save writes either a zip archive or, for older files, a bare pickle
// stream starting with the PROTO opcode. SafeTensors starts with a
// little-endian header length followed by '{'.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path) //nolint:gosec // G304: checkpoint paths come from the registry
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, 9)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return FormatUnknown, fmt.Errorf("read %s: %w", path, err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, zipMagic), len(head) > 0 && head[0] == pickleProto:
		return FormatTorch, nil
	case len(head) == 9 && head[8] == '{':
		return FormatSafeTensors, nil
	case strings.EqualFold(filepath.Ext(path), ".safetensors"):
		return FormatSafeTensors, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

// Load decodes the checkpoint at path.
//
// Torch files yield the unpickled object (see LoadTorch). SafeTensors files
// yield a map[string]*tensor.RawTensor.
func Load(path string) (any, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatTorch:
		return LoadTorch(path)
	case FormatSafeTensors:
		return ReadSafeTensors(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}
