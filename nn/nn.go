// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/cifar/internal/nn"
	"github.com/born-ml/cifar/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Trainable is implemented by modules with a training mode.
type Trainable = nn.Trainable

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// SetTraining switches m into training or evaluation mode when it has one.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	nn.SetTraining(m, training)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with PyTorch's default initialization.
//
// Example:
//
//	backend := cpu.New()
//	layer := nn.NewLinear(3200, 256, backend)
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a new 2D convolutional layer.
//
// Example:
//
//	backend := cpu.New()
//	conv := nn.NewConv2D(3, 64, 3, 3, 1, 0, true, backend)  // in_channels=3, out_channels=64, kernel=3x3, stride=1, padding=0, useBias=true
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
}

// MaxPool2D represents a 2D max pooling layer.
type MaxPool2D[B tensor.Backend] = nn.MaxPool2D[B]

// NewMaxPool2D creates a new 2D max pooling layer.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride int, backend B) *MaxPool2D[B] {
	return nn.NewMaxPool2D(kernelSize, stride, backend)
}

// BatchNorm2D normalizes each channel of an NCHW input.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// NewBatchNorm2D creates a BatchNorm2D layer. With affine false it has no
// learnable scale or shift.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, affine bool, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(numFeatures, affine, backend)
}

// Dropout randomly zeroes elements in training mode.
type Dropout[B tensor.Backend] = nn.Dropout[B]

// NewDropout creates a Dropout layer with drop probability p.
func NewDropout[B tensor.Backend](p float64) *Dropout[B] {
	return nn.NewDropout[B](p)
}

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a new ReLU activation layer.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Containers

// Sequential applies modules in order.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a container from the given modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// State loading

// ErrStateMismatch is wrapped by every *StateMismatchError.
var ErrStateMismatch = nn.ErrStateMismatch

// StateMismatchError lists every way a state dict disagrees with a module.
type StateMismatchError = nn.StateMismatchError

// ShapeMismatch describes one key whose shape or dtype disagrees.
type ShapeMismatch = nn.ShapeMismatch

// LoadStateDict copies stateDict into m. Either every tensor is copied or,
// on any mismatch, nothing is and a *StateMismatchError is returned.
func LoadStateDict[B tensor.Backend](m Module[B], stateDict map[string]*tensor.RawTensor) error {
	return nn.LoadStateDict(m, stateDict)
}
