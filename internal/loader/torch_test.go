package loader

import (
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cifar/internal/tensor"
	"github.com/born-ml/cifar/internal/testutil"
)

func TestTorchTensor_Contiguous(t *testing.T) {
	pt := &pytorch.Tensor{
		Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4, 5, 6}},
		Size:   []int{2, 3},
		Stride: []int{3, 1},
	}

	raw, err := TorchTensor(pt)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, raw.DType())
	assert.True(t, raw.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, raw.AsFloat32())
}

func TestTorchTensor_StridedView(t *testing.T) {
	// Transposed view of a 2x3 storage, starting one element in
	storage := &pytorch.FloatStorage{Data: []float32{0, 1, 2, 3, 4, 5, 6}}
	pt := &pytorch.Tensor{
		Source:        storage,
		StorageOffset: 1,
		Size:          []int{3, 2},
		Stride:        []int{1, 3},
	}

	raw, err := TorchTensor(pt)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, raw.AsFloat32())

	// Copy, not alias
	raw.AsFloat32()[0] = 100
	assert.Equal(t, float32(1), storage.Data[1])
}

func TestTorchTensor_DTypes(t *testing.T) {
	long, err := TorchTensor(&pytorch.Tensor{
		Source: &pytorch.LongStorage{Data: []int64{7}},
		Size:   []int{},
		Stride: []int{},
	})
	require.NoError(t, err)
	assert.Equal(t, tensor.Int64, long.DType())
	assert.Equal(t, 0, len(long.Shape()))
	assert.Equal(t, []int64{7}, long.AsInt64())

	double, err := TorchTensor(&pytorch.Tensor{
		Source: &pytorch.DoubleStorage{Data: []float64{0.5, 1.5}},
		Size:   []int{2},
		Stride: []int{1},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, double.AsFloat64())

	half, err := TorchTensor(&pytorch.Tensor{
		Source: &pytorch.HalfStorage{Data: []float32{0.5, -1}},
		Size:   []int{2},
		Stride: []int{1},
	})
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, half.DType())
	assert.Equal(t, []float32{0.5, -1}, half.AsFloat32())

	_, err = TorchTensor(&pytorch.Tensor{
		Source: &pytorch.ByteStorage{Data: []uint8{1}},
		Size:   []int{1},
		Stride: []int{1},
	})
	assert.ErrorIs(t, err, ErrUnsupportedDType)
}

func TestTorchTensor_OutOfBounds(t *testing.T) {
	_, err := TorchTensor(&pytorch.Tensor{
		Source:        &pytorch.FloatStorage{Data: []float32{1, 2, 3}},
		StorageOffset: 2,
		Size:          []int{2},
		Stride:        []int{1},
	})
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = TorchTensor(&pytorch.Tensor{Size: []int{1}})
	assert.Error(t, err)
}

func TestLoadTorch_StateDictFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.pth")
	testutil.WriteTorch(t, path, testutil.OrderedDict{
		{Key: "0.weight", Value: testutil.Tensor{Float32: []float32{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}}},
		// Transposed 3x2 storage, one element in
		{Key: "0.bias", Value: testutil.Tensor{Float32: []float32{9, 1, 4, 2, 5, 3, 6}, Shape: []int{2, 3}, Stride: []int{1, 2}, Offset: 1}},
		{Key: "1.num_batches_tracked", Value: testutil.Tensor{Int64: []int64{5}, Shape: []int{}}},
	})

	format, err := DetectFormat(path)
	require.NoError(t, err)
	assert.Equal(t, FormatTorch, format)

	obj, err := Load(path)
	require.NoError(t, err)
	od, ok := obj.(*types.OrderedDict)
	require.True(t, ok, "got %T", obj)
	require.Equal(t, 3, od.Len())

	weight, err := TorchTensor(od.MustGet("0.weight").(*pytorch.Tensor))
	require.NoError(t, err)
	assert.True(t, weight.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, weight.AsFloat32())

	strided, err := TorchTensor(od.MustGet("0.bias").(*pytorch.Tensor))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, strided.AsFloat32())

	tracked, err := TorchTensor(od.MustGet("1.num_batches_tracked").(*pytorch.Tensor))
	require.NoError(t, err)
	assert.Equal(t, tensor.Int64, tracked.DType())
	assert.Empty(t, tracked.Shape())
	assert.Equal(t, []int64{5}, tracked.AsInt64())
}

func TestLoadTorch_ModuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.pth")
	testutil.WriteTorch(t, path, testutil.Module{
		Class: "models.CIFAR",
		Modules: testutil.OrderedDict{
			{Key: "classifier", Value: testutil.Module{
				Class: "torch.nn.modules.linear.Linear",
				Parameters: testutil.OrderedDict{
					{Key: "weight", Value: testutil.Parameter{Tensor: testutil.Tensor{Float32: []float32{1, 2}, Shape: []int{1, 2}}}},
					{Key: "bias", Value: nil},
				},
			}},
		},
	})

	obj, err := LoadTorch(path)
	require.NoError(t, err)
	model, ok := obj.(*Object)
	require.True(t, ok, "got %T", obj)
	assert.Equal(t, "models.CIFAR", model.String())

	training, ok := model.Attr("training")
	require.True(t, ok)
	assert.Equal(t, false, training)

	modules, ok := model.Attr("_modules")
	require.True(t, ok)
	classifier := modules.(*types.OrderedDict).MustGet("classifier").(*Object)
	assert.Equal(t, "torch.nn.modules.linear.Linear", classifier.String())

	params, ok := classifier.Attr("_parameters")
	require.True(t, ok)
	weight, ok := params.(*types.OrderedDict).MustGet("weight").(*pytorch.Tensor)
	require.True(t, ok, "parameters unwrap to their tensor")
	assert.Equal(t, []int{1, 2}, weight.Size)
	assert.Nil(t, params.(*types.OrderedDict).MustGet("bias"))
}
