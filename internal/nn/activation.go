package nn

import (
	"github.com/born-ml/cifar/internal/tensor"
)

// ReLU applies max(0, x) element-wise. It has no state.
type ReLU[B tensor.Backend] struct {
	stateless[B]
}

// NewReLU creates a ReLU module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward runs the backend's ReLU kernel.
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	return tensor.New[float32, B](backend.ReLU(input.Raw()), backend)
}

func (r *ReLU[B]) String() string {
	return "ReLU()"
}
