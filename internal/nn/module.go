// Package nn implements the neural network modules used by the CIFAR
// classifiers.
//
// This package provides the building blocks for the feature and classifier
// stages:
//   - Module interface: Base interface for all NN components
//   - Parameter: Named learnable tensors
//   - Conv2D, MaxPool2D, BatchNorm2D: Convolutional feature layers
//   - Linear, Dropout, ReLU: Classifier layers
//   - Sequential: Container for stacking layers
//   - LoadStateDict: All-or-nothing state dict loading
//
// Module state is exposed as a flat name -> tensor mapping whose keys follow
// PyTorch's naming ("weight", "bias", "running_mean", "0.weight", ...), so
// checkpoints exported from PyTorch load by exact name match.
package nn

import (
	"github.com/born-ml/cifar/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all learnable parameters
//   - StateDict: Return parameters and buffers by name
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 16, 3, 3, 1, 1, true, backend),
//	    nn.NewReLU[Backend](),
//	    nn.NewMaxPool2D(2, 2, backend),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	//
	// The input tensor should have the appropriate shape for this module.
	// For example, Linear expects [batch_size, in_features].
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all learnable parameters of this module.
	//
	// Returns an empty slice for modules without parameters
	// (e.g., activation functions).
	Parameters() []*Parameter[B]

	// StateDict returns the module's parameters and buffers keyed by name.
	//
	// The returned tensors are the module's live storage: writing into them
	// changes the module. Use LoadStateDict to replace state safely.
	StateDict() map[string]*tensor.RawTensor
}

// Trainable is implemented by modules whose forward pass differs between
// training and evaluation (BatchNorm2D, Dropout, containers).
type Trainable interface {
	SetTraining(training bool)
}

// SetTraining switches m into training or evaluation mode when it has one.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	if t, ok := m.(Trainable); ok {
		t.SetTraining(training)
	}
}

// stateless provides Parameters and StateDict for modules that hold no
// tensors (ReLU, MaxPool2D, Dropout).
type stateless[B tensor.Backend] struct{}

// Parameters returns nil.
func (stateless[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (stateless[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}
