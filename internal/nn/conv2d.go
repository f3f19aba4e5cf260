package nn

import (
	"fmt"

	"github.com/born-ml/cifar/internal/tensor"
)

// Conv2D is a 2D convolution over NCHW input with a square stride and
// symmetric zero padding.
//
// Its state dict holds "weight" [out, in, kh, kw] and, unless built without
// bias, "bias" [out], the same as torch.nn.Conv2d.
//
// Example:
//
//	conv := nn.NewConv2D(3, 16, 3, 3, 1, 1, true, backend)
//	out := conv.Forward(x) // [8, 3, 32, 32] -> [8, 16, 32, 32]
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernel      [2]int
	stride      int
	padding     int

	weight *Parameter[B]
	bias   *Parameter[B] // nil without bias

	backend B
}

// NewConv2D creates a convolution with PyTorch's default initialization:
// weight and bias drawn from U(-1/sqrt(fan_in), 1/sqrt(fan_in)).
//
// It panics on non-positive channels, kernel or stride, or negative padding.
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	switch {
	case inChannels <= 0 || outChannels <= 0:
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	case kernelH <= 0 || kernelW <= 0:
		panic(fmt.Sprintf("conv2d: invalid kernel size h=%d, w=%d", kernelH, kernelW))
	case stride <= 0:
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	case padding < 0:
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}

	fanIn := inChannels * kernelH * kernelW
	c := &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernel:      [2]int{kernelH, kernelW},
		stride:      stride,
		padding:     padding,
		weight:      NewParameter("weight", KaimingUniform(fanIn, tensor.Shape{outChannels, inChannels, kernelH, kernelW}, backend)),
		backend:     backend,
	}
	if useBias {
		c.bias = NewParameter("bias", KaimingUniform(fanIn, tensor.Shape{outChannels}, backend))
	}
	return c
}

// Forward convolves input [N, in, H, W] into [N, out, H', W'].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", shape[1], c.inChannels))
	}

	out := tensor.New[float32, B](
		c.backend.Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding),
		c.backend,
	)
	if c.bias == nil {
		return out
	}
	return out.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns the weight followed by the bias, if any.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias == nil {
		return []*Parameter[B]{c.weight}
	}
	return []*Parameter[B]{c.weight, c.bias}
}

// StateDict returns "weight" and, when present, "bias".
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return parameterState(c.Parameters())
}

func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d), stride=%d, padding=%d, bias=%v)",
		c.inChannels, c.outChannels, c.kernel[0], c.kernel[1], c.stride, c.padding, c.bias != nil)
}

// Weight returns the weight parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] { return c.weight }

// Bias returns the bias parameter, or nil when the layer has none.
func (c *Conv2D[B]) Bias() *Parameter[B] { return c.bias }

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int { return c.inChannels }

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int { return c.outChannels }

// KernelSize returns the kernel size [height, width].
func (c *Conv2D[B]) KernelSize() [2]int { return c.kernel }

// Stride returns the stride.
func (c *Conv2D[B]) Stride() int { return c.stride }

// Padding returns the zero padding on each side.
func (c *Conv2D[B]) Padding() int { return c.padding }

// ComputeOutputSize returns [out_h, out_w] for an inputH x inputW map.
func (c *Conv2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	return [2]int{
		(inputH+2*c.padding-c.kernel[0])/c.stride + 1,
		(inputW+2*c.padding-c.kernel[1])/c.stride + 1,
	}
}

// parameterState keys each parameter's live storage by its name.
func parameterState[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}
