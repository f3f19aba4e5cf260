package cpu

import (
	"fmt"

	"github.com/born-ml/cifar/internal/parallel"
	"github.com/born-ml/cifar/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// For each sample the input patches are unrolled into a column matrix
// [C_in*K_h*K_w, H_out*W_out]. The kernel, viewed as [C_out, C_in*K_h*K_w],
// is multiplied against it with one SGEMM, which writes the sample's
// [C_out, H_out*W_out] output plane directly in NCHW order.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if input.DType() != tensor.Float32 || kernel.DType() != tensor.Float32 {
		panic(fmt.Sprintf("conv2d: unsupported dtypes %s and %s", input.DType(), kernel.DType()))
	}

	N, CIn, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	COut, CInK, KH, KW := kernelShape[0], kernelShape[1], kernelShape[2], kernelShape[3]

	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1

	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", HOut, WOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, COut, HOut, WOut}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	inputData := input.AsFloat32()
	kernelData := kernel.AsFloat32()
	outputData := output.AsFloat32()

	colRows := CIn * KH * KW
	colCols := HOut * WOut

	// One column buffer per chunk of samples
	parallel.Range(N, parallel.DefaultConfig(1), func(lo, hi int) {
		col := make([]float32, colRows*colCols)
		for n := lo; n < hi; n++ {
			sample := inputData[n*CIn*H*W : (n+1)*CIn*H*W]
			im2col(col, sample, CIn, H, W, KH, KW, HOut, WOut, stride, padding)

			plane := outputData[n*COut*colCols : (n+1)*COut*colCols]
			sgemm(plane, kernelData, col, COut, colRows, colCols)
		}
	})

	return output
}

// im2col unrolls one [C, H, W] sample into col [C*KH*KW, HOut*WOut].
// Positions that fall into the zero padding are written as 0.
func im2col(col, img []float32, C, H, W, KH, KW, HOut, WOut, stride, padding int) {
	colCols := HOut * WOut
	for c := 0; c < C; c++ {
		for kh := 0; kh < KH; kh++ {
			for kw := 0; kw < KW; kw++ {
				row := col[((c*KH+kh)*KW+kw)*colCols:][:colCols]
				for oh := 0; oh < HOut; oh++ {
					h := oh*stride - padding + kh
					dst := row[oh*WOut : (oh+1)*WOut]
					if h < 0 || h >= H {
						clear(dst)
						continue
					}
					src := img[(c*H+h)*W : (c*H+h+1)*W]
					for ow := range dst {
						w := ow*stride - padding + kw
						if w < 0 || w >= W {
							dst[ow] = 0
						} else {
							dst[ow] = src[w]
						}
					}
				}
			}
		}
	}
}
