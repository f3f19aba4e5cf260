package tensor

import "fmt"

// Tensor is a RawTensor viewed as elements of type T, with the backend B
// that runs operations on it.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](Shape{8, 3, 32, 32}, backend)
//	logits := net.Forward(x) // [8, 10]
type Tensor[T DType, B Backend] struct {
	raw     *RawTensor
	backend B
}

// New wraps raw. The caller guarantees raw holds elements of type T.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return &Tensor[T, B]{raw: raw, backend: b}
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	if n := shape.NumElements(); n != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, n, len(data))
	}

	raw, err := NewRaw(shape, dataTypeOf[T](), b.Device())
	if err != nil {
		return nil, err
	}
	t := New[T, B](raw, b)
	copy(t.Data(), data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor[T, B]) Shape() Shape { return t.raw.Shape() }

// DType returns the tensor's data type.
func (t *Tensor[T, B]) DType() DataType { return t.raw.DType() }

// Device returns the tensor's compute device.
func (t *Tensor[T, B]) Device() Device { return t.raw.Device() }

// NumElements returns the total number of elements.
func (t *Tensor[T, B]) NumElements() int { return t.raw.NumElements() }

// Raw returns the underlying storage. Modules expose it through StateDict.
func (t *Tensor[T, B]) Raw() *RawTensor { return t.raw }

// Backend returns the computation backend.
func (t *Tensor[T, B]) Backend() B { return t.backend }

// Data returns the elements in row-major order. The slice aliases the
// tensor's storage.
func (t *Tensor[T, B]) Data() []T {
	var data any
	switch t.raw.DType() {
	case Float32:
		data = t.raw.AsFloat32()
	case Float64:
		data = t.raw.AsFloat64()
	case Int32:
		data = t.raw.AsInt32()
	case Int64:
		data = t.raw.AsInt64()
	}
	s, ok := data.([]T)
	if !ok {
		panic(fmt.Sprintf("tensor holds %s, not %T", t.raw.DType(), *new(T)))
	}
	return s
}

// At returns the element at the given indices. It panics when an index is
// out of range.
//
// Example:
//
//	score := logits.At(0, 3) // sample 0, class 3
func (t *Tensor[T, B]) At(indices ...int) T {
	shape := t.Shape()
	if len(indices) != len(shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(shape), len(indices)))
	}

	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, shape[i]))
		}
		offset = offset*shape[i] + idx
	}
	return t.Data()[offset]
}

// ArgMax returns, for each row of a 2D tensor, the column of its largest
// element. Ties go to the lowest column. For class scores [N, classes] this
// is the predicted class of each sample.
func (t *Tensor[T, B]) ArgMax() []int {
	shape := t.Shape()
	if len(shape) != 2 || shape[1] == 0 {
		panic(fmt.Sprintf("argmax: expected 2D tensor with columns, got shape %v", shape))
	}

	rows, cols := shape[0], shape[1]
	data := t.Data()
	out := make([]int, rows)
	for r := range rows {
		row := data[r*cols : (r+1)*cols]
		best := 0
		for c, v := range row[1:] {
			if v > row[best] {
				best = c + 1
			}
		}
		out[r] = best
	}
	return out
}

// String describes the tensor without its data.
func (t *Tensor[T, B]) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", t.raw.DType(), t.raw.Shape(), t.raw.Device())
}

// Clone returns a tensor with its own copy of the storage.
func (t *Tensor[T, B]) Clone() *Tensor[T, B] {
	return New[T, B](t.raw.Clone(), t.backend)
}
