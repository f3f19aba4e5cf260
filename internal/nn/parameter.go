package nn

import (
	"github.com/born-ml/cifar/internal/tensor"
)

// Parameter is a named learnable tensor owned by a module.
//
// The name is the parameter's key in the owning module's state dict
// ("weight", "bias"). Containers add their own prefixes.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter wraps an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the state dict key.
func (p *Parameter[B]) Name() string { return p.name }

// Tensor returns the parameter tensor. Loading a state dict writes into its
// storage in place, so the pointer stays valid.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] { return p.tensor }

// Shape returns the parameter shape.
func (p *Parameter[B]) Shape() tensor.Shape { return p.tensor.Shape() }

// NumElements returns the number of scalars in the parameter.
func (p *Parameter[B]) NumElements() int { return p.tensor.NumElements() }
