package loader

import (
	"fmt"
	"io"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/born-ml/cifar/internal/tensor"
)

// LoadTorch decodes a file written by torch.save.
//
// The result is the unpickled object as gopickle represents it: usually a
// *types.OrderedDict or *types.Dict whose values are *pytorch.Tensor. A
// whole pickled module, or any other instance of a class outside torch's
// tensor machinery, comes back as an *Object.
func LoadTorch(path string) (any, error) {
	obj, err := pytorch.LoadWithUnpickler(path, func(r io.Reader) pickle.Unpickler {
		u := pickle.NewUnpickler(r)
		u.FindClass = findTorchClass
		return u
	})
	if err != nil {
		return nil, fmt.Errorf("decode torch checkpoint %s: %w", path, err)
	}
	return obj, nil
}

// Object is an instance of a pickled Python class, such as an nn.Module
// saved with torch.save(model).
type Object struct {
	Module string
	Name   string
	Args   []any       // Constructor or reduce arguments
	Dict   *types.Dict // Instance __dict__, nil when never set
	State  any         // Non-dict state passed to __setstate__
}

var (
	_ types.PyStateSettable = (*Object)(nil)
	_ types.PyNewable       = (*objectClass)(nil)
	_ types.Callable        = (*objectClass)(nil)
	_ types.Callable        = rebuildParameter{}
	_ types.Callable        = setClass{}
)

// Attr returns the __dict__ entry named key.
func (o *Object) Attr(key string) (any, bool) {
	if o.Dict == nil {
		return nil, false
	}
	return o.Dict.Get(key)
}

// PySetState implements types.PyStateSettable.
func (o *Object) PySetState(state any) error {
	// (dict, slots) pairs come from classes with __slots__
	if tuple, ok := state.(*types.Tuple); ok && tuple.Len() == 2 {
		state = tuple.Get(0)
	}
	if dict, ok := state.(*types.Dict); ok {
		o.Dict = dict
		return nil
	}
	o.State = state
	return nil
}

// String returns the qualified class name.
func (o *Object) String() string {
	return o.Module + "." + o.Name
}

// objectClass stands in for a class or function the unpickler cannot
// resolve. Instantiating or calling it records the arguments.
type objectClass struct {
	module, name string
}

func (c *objectClass) PyNew(args ...any) (any, error) {
	return &Object{Module: c.module, Name: c.name, Args: args}, nil
}

func (c *objectClass) Call(args ...any) (any, error) {
	return c.PyNew(args...)
}

// rebuildParameter unwraps an nn.Parameter to its tensor.
type rebuildParameter struct{}

func (rebuildParameter) Call(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("rebuild parameter: no arguments")
	}
	return args[0], nil
}

// setClass builds a Python set from an optional iterable.
type setClass struct{}

func (setClass) Call(args ...any) (any, error) {
	if len(args) == 0 {
		return types.NewSet(), nil
	}
	if list, ok := args[0].(*types.List); ok {
		return types.NewSetFromSlice(*list), nil
	}
	return nil, fmt.Errorf("set: unsupported argument %T", args[0])
}

// findTorchClass resolves globals that gopickle's torch loader leaves
// unhandled.
func findTorchClass(module, name string) (any, error) {
	switch module + "." + name {
	case "torch._utils._rebuild_parameter", "torch._utils._rebuild_parameter_with_state":
		return rebuildParameter{}, nil
	case "builtins.set", "__builtin__.set":
		return setClass{}, nil
	default:
		return &objectClass{module: module, name: name}, nil
	}
}

// TorchTensor copies a pickled tensor into a contiguous RawTensor.
//
// Storage offset and strides are honored, so views and transposed tensors
// come out in row-major order. Half and bfloat16 storages are widened to
// float32.
func TorchTensor(t *pytorch.Tensor) (*tensor.RawTensor, error) {
	if t == nil || t.Source == nil {
		return nil, fmt.Errorf("%w: tensor without storage", ErrUnsupportedDType)
	}

	shape := tensor.Shape(append([]int(nil), t.Size...))
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	stride := t.Stride
	if len(stride) != len(shape) {
		stride = shape.ComputeStrides()
	}

	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		return gather(shape, stride, t.StorageOffset, s.Data, tensor.Float32, (*tensor.RawTensor).AsFloat32)
	case *pytorch.HalfStorage:
		return gather(shape, stride, t.StorageOffset, s.Data, tensor.Float32, (*tensor.RawTensor).AsFloat32)
	case *pytorch.BFloat16Storage:
		return gather(shape, stride, t.StorageOffset, s.Data, tensor.Float32, (*tensor.RawTensor).AsFloat32)
	case *pytorch.DoubleStorage:
		return gather(shape, stride, t.StorageOffset, s.Data, tensor.Float64, (*tensor.RawTensor).AsFloat64)
	case *pytorch.IntStorage:
		return gather(shape, stride, t.StorageOffset, s.Data, tensor.Int32, (*tensor.RawTensor).AsInt32)
	case *pytorch.LongStorage:
		return gather(shape, stride, t.StorageOffset, s.Data, tensor.Int64, (*tensor.RawTensor).AsInt64)
	default:
		return nil, fmt.Errorf("%w: storage %T", ErrUnsupportedDType, t.Source)
	}
}

// gather walks a strided view over src in row-major order.
func gather[T tensor.DType](
	shape tensor.Shape,
	stride []int,
	offset int,
	src []T,
	dtype tensor.DataType,
	view func(*tensor.RawTensor) []T,
) (*tensor.RawTensor, error) {
	// Highest storage index the view touches
	last := offset
	for i, dim := range shape {
		if stride[i] < 0 {
			return nil, &ValidationError{Details: fmt.Sprintf("negative stride %v", stride), Err: ErrNegativeOffset}
		}
		last += (dim - 1) * stride[i]
	}
	if offset < 0 || last >= len(src) {
		return nil, &ValidationError{
			Details: fmt.Sprintf("view offset %d size %v stride %v over %d elements", offset, []int(shape), stride, len(src)),
			Err:     ErrOutOfBounds,
		}
	}

	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	dst := view(raw)

	index := make([]int, len(shape))
	for i := range dst {
		pos := offset
		for d, idx := range index {
			pos += idx * stride[d]
		}
		dst[i] = src[pos]

		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}
	return raw, nil
}
