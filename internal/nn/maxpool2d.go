package nn

import (
	"fmt"

	"github.com/born-ml/cifar/internal/tensor"
)

// MaxPool2D takes the maximum over kernelSize x kernelSize windows of each
// channel. Rows and columns that do not fill a window are dropped, as in
// PyTorch's default floor mode.
//
// Example:
//
//	pool := nn.NewMaxPool2D(2, 2, backend)
//	output := pool.Forward(input) // [N, C, 32, 32] -> [N, C, 16, 16]
type MaxPool2D[B tensor.Backend] struct {
	stateless[B]

	kernelSize int
	stride     int
	backend    B
}

// NewMaxPool2D creates a pooling layer. It panics on a non-positive kernel
// size or stride.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride int, backend B) *MaxPool2D[B] {
	switch {
	case kernelSize <= 0:
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	case stride <= 0:
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	return &MaxPool2D[B]{kernelSize: kernelSize, stride: stride, backend: backend}
}

// Forward pools input [N, C, H, W].
func (m *MaxPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return tensor.New[float32, B](m.backend.MaxPool2D(input.Raw(), m.kernelSize, m.stride), m.backend)
}

// KernelSize returns the pooling window size.
func (m *MaxPool2D[B]) KernelSize() int { return m.kernelSize }

// Stride returns the stride.
func (m *MaxPool2D[B]) Stride() int { return m.stride }

// ComputeOutputSize returns [out_h, out_w] for an inputH x inputW map.
func (m *MaxPool2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	return [2]int{
		(inputH-m.kernelSize)/m.stride + 1,
		(inputW-m.kernelSize)/m.stride + 1,
	}
}

func (m *MaxPool2D[B]) String() string {
	return fmt.Sprintf("MaxPool2D(kernel_size=%d, stride=%d)", m.kernelSize, m.stride)
}
