package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cifar/internal/backend/cpu"
	"github.com/born-ml/cifar/internal/tensor"
)

func TestBatchNorm2D_Creation(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(4, false, backend)
	assert.Equal(t, 4, bn.NumFeatures())
	assert.False(t, bn.Training(), "layers start in evaluation mode")
	assert.Nil(t, bn.Parameters())
	assert.Equal(t, []float32{0, 0, 0, 0}, bn.RunningMean().Data())
	assert.Equal(t, []float32{1, 1, 1, 1}, bn.RunningVar().Data())
	assert.Equal(t, int64(0), bn.NumBatchesTracked())

	state := bn.StateDict()
	assert.Len(t, state, 3)
	require.Contains(t, state, "num_batches_tracked")
	assert.Equal(t, tensor.Int64, state["num_batches_tracked"].DType())
	assert.Empty(t, state["num_batches_tracked"].Shape())

	affine := NewBatchNorm2D(4, true, backend)
	assert.Len(t, affine.Parameters(), 2)
	assert.Len(t, affine.StateDict(), 5)

	assert.Panics(t, func() { NewBatchNorm2D(0, false, backend) })
}

func TestBatchNorm2D_EvalUsesRunningStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(2, false, backend)

	copy(bn.RunningMean().Data(), []float32{1, -2})
	copy(bn.RunningVar().Data(), []float32{4, 0.25})

	input, err := tensor.FromSlice([]float32{1, 3, 5, 7, -2, -1, 0, 1}, tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)

	output := bn.Forward(input)

	std0 := math.Sqrt(4 + DefaultBatchNormEps)
	std1 := math.Sqrt(0.25 + DefaultBatchNormEps)
	want := []float32{
		0, float32(2 / std0), float32(4 / std0), float32(6 / std0),
		0, float32(1 / std1), float32(2 / std1), float32(3 / std1),
	}
	assert.InDeltaSlice(t, want, output.Data(), 1e-5)

	// Evaluation never touches the buffers
	assert.Equal(t, []float32{1, -2}, bn.RunningMean().Data())
	assert.Equal(t, int64(0), bn.NumBatchesTracked())
}

func TestBatchNorm2D_TrainingUpdatesRunningStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(1, false, backend)
	bn.SetTraining(true)

	// Batch of 2 samples, 1 channel, 1x2 plane: values 1, 2, 3, 4
	input, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 1, 1, 2}, backend)
	require.NoError(t, err)

	output := bn.Forward(input)

	// Batch mean 2.5, biased variance 1.25
	std := math.Sqrt(1.25 + DefaultBatchNormEps)
	want := []float32{float32(-1.5 / std), float32(-0.5 / std), float32(0.5 / std), float32(1.5 / std)}
	assert.InDeltaSlice(t, want, output.Data(), 1e-5)

	// running_mean = 0.9*0 + 0.1*2.5; running_var = 0.9*1 + 0.1*(1.25*4/3)
	assert.InDelta(t, 0.25, bn.RunningMean().Data()[0], 1e-6)
	assert.InDelta(t, 0.9+0.1*(5.0/3.0), bn.RunningVar().Data()[0], 1e-6)
	assert.Equal(t, int64(1), bn.NumBatchesTracked())
}

func TestBatchNorm2D_Affine(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(1, true, backend)

	copy(bn.Parameters()[0].Tensor().Data(), []float32{2})
	copy(bn.Parameters()[1].Tensor().Data(), []float32{3})

	input, err := tensor.FromSlice([]float32{1, -1}, tensor.Shape{1, 1, 1, 2}, backend)
	require.NoError(t, err)

	output := bn.Forward(input)

	scale := 2 / math.Sqrt(1+DefaultBatchNormEps)
	assert.InDeltaSlice(t, []float32{float32(scale + 3), float32(-scale + 3)}, output.Data(), 1e-5)
}

func TestBatchNorm2D_WrongChannels(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(3, false, backend)

	assert.Panics(t, func() {
		bn.Forward(tensor.Zeros[float32](tensor.Shape{1, 2, 4, 4}, backend))
	})
}
