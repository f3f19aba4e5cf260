// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package loader_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/cifar/loader"
	"github.com/born-ml/cifar/tensor"
)

// TestWriteRead verifies a state dict survives a SafeTensors round trip
// through the public API.
func TestWriteRead(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	copy(raw.AsFloat32(), []float32{1, -2, 0.5, 4})

	path := filepath.Join(t.TempDir(), "w.safetensors")
	err = loader.WriteSafeTensors(path, map[string]*tensor.RawTensor{"0.weight": raw}, loader.WriteOptions{Float32As: loader.F16})
	if err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	format, err := loader.DetectFormat(path)
	if err != nil || format != loader.FormatSafeTensors {
		t.Fatalf("DetectFormat() = %v, %v, want safetensors", format, err)
	}

	got, err := loader.ReadSafeTensors(path)
	if err != nil {
		t.Fatalf("ReadSafeTensors failed: %v", err)
	}
	// Values are exactly representable in F16
	data := got["0.weight"].AsFloat32()
	for i, want := range []float32{1, -2, 0.5, 4} {
		if data[i] != want {
			t.Errorf("data[%d] = %v, want %v", i, data[i], want)
		}
	}
}

// TestLoadUnknownFormat verifies files of no known format are rejected.
func TestLoadUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.bin")
	if err := os.WriteFile(path, []byte("not a checkpoint at all"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := loader.Load(path); !errors.Is(err, loader.ErrUnsupportedFormat) {
		t.Errorf("Load() error = %v, want ErrUnsupportedFormat", err)
	}
}
