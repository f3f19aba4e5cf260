package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/cifar/internal/tensor"
)

// Dropout randomly zeroes elements during training.
//
// In training mode each element is kept with probability 1-p and scaled by
// 1/(1-p). In evaluation mode (the default) Forward is the identity.
type Dropout[B tensor.Backend] struct {
	stateless[B]

	p        float64
	training bool
}

// NewDropout creates a Dropout module with drop probability p.
//
// Panics unless 0 <= p < 1.
func NewDropout[B tensor.Backend](p float64) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{p: p}
}

// Forward applies dropout in training mode and returns input unchanged otherwise.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	mask := tensor.Zeros[float32](input.Shape(), input.Backend())
	scale := float32(1 / (1 - d.p))
	data := mask.Data()
	for i := range data {
		if rand.Float64() >= d.p { //nolint:gosec // G404: dropout mask, not security-critical
			data[i] = scale
		}
	}

	return input.Mul(mask)
}

// SetTraining switches between training and evaluation mode.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// P returns the drop probability.
func (d *Dropout[B]) P() float64 {
	return d.p
}

// String returns a string representation of the module.
func (d *Dropout[B]) String() string {
	return fmt.Sprintf("Dropout(p=%v)", d.p)
}
