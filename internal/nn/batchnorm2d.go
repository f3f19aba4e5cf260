package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/cifar/internal/tensor"
)

// Default BatchNorm2D hyperparameters (PyTorch defaults).
const (
	DefaultBatchNormEps      = 1e-5
	DefaultBatchNormMomentum = 0.1
)

// BatchNorm2D normalizes each channel of a [N, C, H, W] input.
//
//	y = (x - mean[c]) / sqrt(var[c] + eps) * weight[c] + bias[c]
//
// In evaluation mode (the default) mean and var are the running statistics.
// In training mode they are the batch statistics over (N, H, W), and the
// running statistics are updated with momentum:
//
//	running = (1 - momentum) * running + momentum * batch
//
// where the batch variance fed into running_var is the unbiased estimate.
//
// With affine=false the layer has no weight or bias.
//
// State dict keys: "weight", "bias" (affine only), "running_mean",
// "running_var" and the int64 scalar "num_batches_tracked".
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	eps         float64
	momentum    float64
	affine      bool
	training    bool

	weight *Parameter[B] // [C] or nil
	bias   *Parameter[B] // [C] or nil

	runningMean       *tensor.Tensor[float32, B] // [C]
	runningVar        *tensor.Tensor[float32, B] // [C]
	numBatchesTracked *tensor.Tensor[int64, B]   // []

	backend B
}

// NewBatchNorm2D creates a BatchNorm2D over numFeatures channels with the
// default eps and momentum.
//
// Running mean starts at 0 and running variance at 1. Affine weight starts
// at 1 and bias at 0.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, affine bool, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid num_features %d", numFeatures))
	}

	bn := &BatchNorm2D[B]{
		numFeatures:       numFeatures,
		eps:               DefaultBatchNormEps,
		momentum:          DefaultBatchNormMomentum,
		affine:            affine,
		runningMean:       Zeros(tensor.Shape{numFeatures}, backend),
		runningVar:        Ones(tensor.Shape{numFeatures}, backend),
		numBatchesTracked: tensor.Zeros[int64](tensor.Shape{}, backend),
		backend:           backend,
	}
	if affine {
		bn.weight = NewParameter("weight", Ones(tensor.Shape{numFeatures}, backend))
		bn.bias = NewParameter("bias", Zeros(tensor.Shape{numFeatures}, backend))
	}
	return bn
}

// Forward normalizes input per channel.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	mean, variance := bn.runningMean.Data(), bn.runningVar.Data()
	if bn.training {
		mean, variance = bn.batchStatistics(input)
	}

	// Fold normalization and affine transform into y = x*scale + shift.
	scale := tensor.Zeros[float32](tensor.Shape{1, bn.numFeatures, 1, 1}, bn.backend)
	shift := tensor.Zeros[float32](tensor.Shape{1, bn.numFeatures, 1, 1}, bn.backend)
	scaleData, shiftData := scale.Data(), shift.Data()
	for c := 0; c < bn.numFeatures; c++ {
		s := 1 / math.Sqrt(float64(variance[c])+bn.eps)
		b := -float64(mean[c]) * s
		if bn.affine {
			w := float64(bn.weight.Tensor().Data()[c])
			s, b = s*w, b*w+float64(bn.bias.Tensor().Data()[c])
		}
		scaleData[c] = float32(s)
		shiftData[c] = float32(b)
	}

	return input.Mul(scale).Add(shift)
}

// batchStatistics returns the biased per-channel mean and variance of input
// and folds them into the running statistics.
func (bn *BatchNorm2D[B]) batchStatistics(input *tensor.Tensor[float32, B]) (mean, variance []float32) {
	shape := input.Shape()
	n, c, plane := shape[0], shape[1], shape[2]*shape[3]
	count := n * plane
	data := input.Data()

	mean = make([]float32, c)
	variance = make([]float32, c)
	runningMean, runningVar := bn.runningMean.Data(), bn.runningVar.Data()

	for ch := 0; ch < c; ch++ {
		var sum, sumSq float64
		for b := 0; b < n; b++ {
			for _, v := range data[(b*c+ch)*plane : (b*c+ch+1)*plane] {
				sum += float64(v)
				sumSq += float64(v) * float64(v)
			}
		}
		m := sum / float64(count)
		v := math.Max(sumSq/float64(count)-m*m, 0)
		mean[ch], variance[ch] = float32(m), float32(v)

		unbiased := v
		if count > 1 {
			unbiased = v * float64(count) / float64(count-1)
		}
		runningMean[ch] = float32((1-bn.momentum)*float64(runningMean[ch]) + bn.momentum*m)
		runningVar[ch] = float32((1-bn.momentum)*float64(runningVar[ch]) + bn.momentum*unbiased)
	}
	bn.numBatchesTracked.Data()[0]++

	return mean, variance
}

// SetTraining switches between batch statistics (training) and running
// statistics (evaluation).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training = training
}

// Training reports whether the layer is in training mode.
func (bn *BatchNorm2D[B]) Training() bool {
	return bn.training
}

// Parameters returns [weight, bias] for affine layers and nil otherwise.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	if !bn.affine {
		return nil
	}
	return []*Parameter[B]{bn.weight, bn.bias}
}

// StateDict returns parameters and running-statistics buffers.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	state := parameterState(bn.Parameters())
	state["running_mean"] = bn.runningMean.Raw()
	state["running_var"] = bn.runningVar.Raw()
	state[numBatchesTrackedKey] = bn.numBatchesTracked.Raw()
	return state
}

// RunningMean returns the running mean buffer.
func (bn *BatchNorm2D[B]) RunningMean() *tensor.Tensor[float32, B] {
	return bn.runningMean
}

// RunningVar returns the running variance buffer.
func (bn *BatchNorm2D[B]) RunningVar() *tensor.Tensor[float32, B] {
	return bn.runningVar
}

// NumBatchesTracked returns how many training batches updated the running statistics.
func (bn *BatchNorm2D[B]) NumBatchesTracked() int64 {
	return bn.numBatchesTracked.Data()[0]
}

// NumFeatures returns the number of channels.
func (bn *BatchNorm2D[B]) NumFeatures() int {
	return bn.numFeatures
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2D(%d, eps=%g, momentum=%g, affine=%v)",
		bn.numFeatures, bn.eps, bn.momentum, bn.affine)
}
