package loader

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/cifar/internal/tensor"
)

// WriteOptions controls how WriteSafeTensors encodes float32 tensors.
type WriteOptions struct {
	// Float32As stores float32 tensors as F16 or BF16 instead of F32.
	// Empty means F32.
	Float32As SafeTensorsDType
	Metadata  map[string]string
}

// WriteSafeTensors writes a state dict to path in SafeTensors format.
//
// Tensors are written in alphabetical order by name.
func WriteSafeTensors(path string, stateDict map[string]*tensor.RawTensor, opts WriteOptions) error {
	f, err := os.Create(path) //nolint:gosec // G304: caller-chosen output path
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := EncodeSafeTensors(w, stateDict, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// EncodeSafeTensors writes a state dict to w in SafeTensors format.
func EncodeSafeTensors(w io.Writer, stateDict map[string]*tensor.RawTensor, opts WriteOptions) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(opts.Metadata) > 0 {
		header["__metadata__"] = opts.Metadata
	}

	payloads := make([][]byte, len(names))
	var offset int64
	for i, name := range names {
		raw := stateDict[name]
		dtype, payload, err := encodeTensor(raw, opts.Float32As)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		payloads[i] = payload

		shape := raw.Shape()
		if shape == nil {
			shape = tensor.Shape{}
		}
		header[name] = SafeTensorInfo{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + int64(len(payload))},
		}
		offset += int64(len(payload))
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, payload := range payloads {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", names[i], err)
		}
	}
	return nil
}

func encodeTensor(raw *tensor.RawTensor, float32As SafeTensorsDType) (SafeTensorsDType, []byte, error) {
	switch raw.DType() {
	case tensor.Float32:
		switch float32As {
		case "", SafeTensorsF32:
			return SafeTensorsF32, raw.Data(), nil
		case SafeTensorsF16:
			src := raw.AsFloat32()
			out := make([]byte, 2*len(src))
			for i, v := range src {
				binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
			}
			return SafeTensorsF16, out, nil
		case SafeTensorsBF16:
			return SafeTensorsBF16, bfloat16.EncodeFloat32(raw.AsFloat32()), nil
		default:
			return "", nil, fmt.Errorf("%w: cannot store float32 as %s", ErrUnsupportedDType, float32As)
		}
	case tensor.Float64:
		return SafeTensorsF64, raw.Data(), nil
	case tensor.Int32:
		return SafeTensorsI32, raw.Data(), nil
	case tensor.Int64:
		return SafeTensorsI64, raw.Data(), nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, raw.DType())
	}
}
