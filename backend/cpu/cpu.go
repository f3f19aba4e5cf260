// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/cifar/internal/backend/cpu"
	"github.com/born-ml/cifar/tensor"
)

// Backend represents the CPU backend implementation.
//
// Matrix products and im2col convolutions run on gonum's BLAS.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	import (
//	    "github.com/born-ml/cifar/backend/cpu"
//	    "github.com/born-ml/cifar/models"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    net, err := models.CIFAR10(ctx, models.CIFAR10Config{Channels: 128}, backend)
//	}
func New() *Backend {
	return internalcpu.New()
}
