package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/cifar/internal/parallel"
	"github.com/born-ml/cifar/internal/tensor"
)

// maxpoolGrain is the minimum number of planes handed to one goroutine.
const maxpoolGrain = 16

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where (floor mode):
//
//	out_height = (height - kernelSize) / stride + 1
//	out_width = (width - kernelSize) / stride + 1
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %v", input.DType()))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}

	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}

	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1

	output, err := tensor.NewRaw(tensor.Shape{N, C, HOut, WOut}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("maxpool2d: failed to create output: %v", err))
	}

	inputData := input.AsFloat32()
	outputData := output.AsFloat32()

	// Planes are independent; each goroutine takes a contiguous run
	parallel.Range(N*C, parallel.DefaultConfig(maxpoolGrain), func(lo, hi int) {
		for plane := lo; plane < hi; plane++ {
			src := inputData[plane*H*W : (plane+1)*H*W]
			dst := outputData[plane*HOut*WOut : (plane+1)*HOut*WOut]

			for oh := 0; oh < HOut; oh++ {
				for ow := 0; ow < WOut; ow++ {
					best := float32(math.Inf(-1))
					for kh := 0; kh < kernelSize; kh++ {
						row := src[(oh*stride+kh)*W:]
						for kw := 0; kw < kernelSize; kw++ {
							if v := row[ow*stride+kw]; v > best {
								best = v
							}
						}
					}
					dst[oh*WOut+ow] = best
				}
			}
		}
	})

	return output
}
