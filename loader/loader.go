// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader reads and writes checkpoint weight files.
//
// This package wraps internal loader implementations and exports a clean public API
// for PyTorch pickles (torch.save) and SafeTensors files.
//
// Example usage:
//
//	import "github.com/born-ml/cifar/loader"
//
//	stateDict, err := loader.ReadSafeTensors("cifar10.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := net.LoadStateDict(stateDict); err != nil {
//	    log.Fatal(err)
//	}
package loader

import (
	"github.com/born-ml/cifar/internal/loader"
	"github.com/born-ml/cifar/internal/tensor"
)

// Format identifies a checkpoint file format.
type Format = loader.Format

// Supported checkpoint formats.
const (
	FormatUnknown     Format = loader.FormatUnknown
	FormatTorch       Format = loader.FormatTorch
	FormatSafeTensors Format = loader.FormatSafeTensors
)

// SafeTensorsDType is a dtype tag from a SafeTensors header.
type SafeTensorsDType = loader.SafeTensorsDType

// SafeTensors dtypes.
const (
	F16  SafeTensorsDType = loader.SafeTensorsF16
	BF16 SafeTensorsDType = loader.SafeTensorsBF16
	F32  SafeTensorsDType = loader.SafeTensorsF32
	F64  SafeTensorsDType = loader.SafeTensorsF64
	I32  SafeTensorsDType = loader.SafeTensorsI32
	I64  SafeTensorsDType = loader.SafeTensorsI64
)

// WriteOptions controls WriteSafeTensors.
type WriteOptions = loader.WriteOptions

// ValidationError reports a malformed tensor entry.
type ValidationError = loader.ValidationError

// Object is a pickled instance of a class outside torch's tensor types,
// such as a module saved with torch.save(model).
type Object = loader.Object

// Errors returned while reading checkpoints.
var (
	ErrUnsupportedFormat = loader.ErrUnsupportedFormat
	ErrUnsupportedDType  = loader.ErrUnsupportedDType
	ErrChecksumMismatch  = loader.ErrChecksumMismatch
)

// DetectFormat inspects the leading bytes of the file at path.
func DetectFormat(path string) (Format, error) {
	return loader.DetectFormat(path)
}

// Load decodes the file at path in whichever format it is in.
//
// SafeTensors files decode to map[string]*tensor.RawTensor. PyTorch files
// decode to the unpickled object graph, with unknown classes as *Object.
func Load(path string) (any, error) {
	return loader.Load(path)
}

// ReadSafeTensors reads every tensor of a SafeTensors file.
func ReadSafeTensors(path string) (map[string]*tensor.RawTensor, error) {
	return loader.ReadSafeTensors(path)
}

// WriteSafeTensors writes stateDict to path in SafeTensors format.
//
// Example:
//
//	err := loader.WriteSafeTensors("net.safetensors", net.StateDict(), loader.WriteOptions{
//	    Metadata: map[string]string{"arch": "cifar10"},
//	})
func WriteSafeTensors(path string, stateDict map[string]*tensor.RawTensor, opts WriteOptions) error {
	return loader.WriteSafeTensors(path, stateDict, opts)
}
