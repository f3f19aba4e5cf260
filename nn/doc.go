// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network layers the CIFAR models are built from.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, MaxPool2D, BatchNorm2D, Linear, Dropout
//   - Activations: ReLU
//   - Utilities: Sequential, Module interface, Parameter
//   - State: LoadStateDict, StateMismatchError
//
// # Basic Usage
//
//	backend := cpu.New()
//	features := nn.NewSequential[*cpu.Backend](
//	    nn.NewConv2D(3, 64, 3, 3, 1, 0, true, backend),
//	    nn.NewReLU[*cpu.Backend](),
//	    nn.NewMaxPool2D(2, 2, backend),
//	)
//
// # State Dicts
//
// StateDict keys follow PyTorch ("0.weight", "1.running_mean", ...), so
// weights exported from an equivalent torch.nn.Sequential load by name.
// LoadStateDict is all-or-nothing.
package nn
