package tensor

import "fmt"

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{2, 4, 8, 8}, backend)
//	b := tensor.Ones[float32](Shape{1, 4, 1, 1}, backend)
//	c := a.Add(b) // Shape: [2, 4, 8, 8]
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.Mul(t.raw, other.raw), t.backend)
}

// MatMul performs matrix multiplication: (M, K) @ (K, N) → (M, N).
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](t.backend.MatMul(t.raw, other.raw), t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
//
// A single dimension may be -1; it is inferred from the element count.
//
// Example:
//
//	features := x.Reshape(batch, -1) // [N, C, H, W] -> [N, C*H*W]
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	shape := inferShape(Shape(newShape), t.NumElements())
	return New[T, B](t.backend.Reshape(t.raw, shape), t.backend)
}

// Flatten collapses every dimension from startDim onward into one.
//
// Example:
//
//	x := tensor.Zeros[float32](Shape{8, 128, 5, 5}, backend)
//	x.Flatten(1) // Shape: [8, 3200]
func (t *Tensor[T, B]) Flatten(startDim int) *Tensor[T, B] {
	shape := t.Shape()
	if startDim < 0 || startDim >= len(shape) {
		panic(fmt.Sprintf("flatten: start dim %d out of range for %dD tensor", startDim, len(shape)))
	}
	newShape := append(shape[:startDim:startDim], -1)
	return t.Reshape(newShape...)
}

// Transpose permutes the tensor's dimensions.
//
// If axes is empty, reverses all dimensions (for 2D, this is standard transpose).
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	return New[T, B](t.backend.Transpose(t.raw, axes...), t.backend)
}

// T is a shortcut for 2D transpose.
// Panics if the tensor is not 2D.
func (t *Tensor[T, B]) T() *Tensor[T, B] {
	if len(t.Shape()) != 2 {
		panic("T() only works for 2D tensors")
	}
	return t.Transpose(1, 0)
}

// inferShape resolves a single -1 dimension against the element count.
func inferShape(shape Shape, numElements int) Shape {
	inferred := -1
	known := 1
	for i, dim := range shape {
		if dim == -1 {
			if inferred >= 0 {
				panic(fmt.Sprintf("reshape: only one dimension can be -1, got %v", shape))
			}
			inferred = i
			continue
		}
		known *= dim
	}
	if inferred < 0 {
		return shape
	}
	if known <= 0 || numElements%known != 0 {
		panic(fmt.Sprintf("reshape: cannot infer dimension of %v for %d elements", shape, numElements))
	}
	out := shape.Clone()
	out[inferred] = numElements / known
	return out
}
