package cpu

import (
	"math/rand"
	"testing"

	"github.com/born-ml/cifar/internal/tensor"
)

func filledRaw(shape tensor.Shape, values ...float32) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(err)
	}
	copy(raw.AsFloat32(), values)
	return raw
}

// TestConv2D_HandComputed checks small cases worked out by hand.
func TestConv2D_HandComputed(t *testing.T) {
	ones := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}

	tests := []struct {
		name            string
		input, kernel   *tensor.RawTensor
		stride, padding int
		want            tensor.Shape
		values          []float32
	}{
		{
			// [[1,2,3],[4,5,6],[7,8,9]] * [[1,0],[0,1]]
			name:   "2x2 diagonal",
			input:  filledRaw(tensor.Shape{1, 1, 3, 3}, 1, 2, 3, 4, 5, 6, 7, 8, 9),
			kernel: filledRaw(tensor.Shape{1, 1, 2, 2}, 1, 0, 0, 1),
			stride: 1, want: tensor.Shape{1, 1, 2, 2},
			values: []float32{6, 8, 12, 14},
		},
		{
			// Padding 1 keeps 2x2; each window sums the whole input
			name:   "sum with padding",
			input:  filledRaw(tensor.Shape{1, 1, 2, 2}, 1, 2, 3, 4),
			kernel: filledRaw(tensor.Shape{1, 1, 3, 3}, ones(9)...),
			stride: 1, padding: 1, want: tensor.Shape{1, 1, 2, 2},
			values: []float32{10, 10, 10, 10},
		},
		{
			name:   "stride 2",
			input:  filledRaw(tensor.Shape{1, 1, 4, 4}, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16),
			kernel: filledRaw(tensor.Shape{1, 1, 1, 1}, 1),
			stride: 2, want: tensor.Shape{1, 1, 2, 2},
			values: []float32{1, 3, 9, 11},
		},
		{
			// Two input channels of 1s and 2s, output channels weight 1 and 2
			name:   "multi channel",
			input:  filledRaw(tensor.Shape{1, 2, 1, 1}, 1, 2),
			kernel: filledRaw(tensor.Shape{2, 2, 1, 1}, 1, 1, 2, 2),
			stride: 1, want: tensor.Shape{1, 2, 1, 1},
			values: []float32{3, 6},
		},
		{
			name:   "batch",
			input:  filledRaw(tensor.Shape{2, 1, 2, 2}, 1, 2, 3, 4, 5, 6, 7, 8),
			kernel: filledRaw(tensor.Shape{1, 1, 2, 2}, ones(4)...),
			stride: 1, want: tensor.Shape{2, 1, 1, 1},
			values: []float32{10, 26},
		},
	}

	backend := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := backend.Conv2D(tt.input, tt.kernel, tt.stride, tt.padding)
			if !out.Shape().Equal(tt.want) {
				t.Fatalf("shape = %v, want %v", out.Shape(), tt.want)
			}
			for i, v := range out.AsFloat32() {
				if v != tt.values[i] {
					t.Errorf("out[%d] = %v, want %v", i, v, tt.values[i])
				}
			}
		})
	}
}

// directConv2D is a reference convolution computed straight from the definition.
func directConv2D(in, k []float32, n, cIn, h, w, cOut, kh, kw, stride, padding int) []float32 {
	hOut := (h+2*padding-kh)/stride + 1
	wOut := (w+2*padding-kw)/stride + 1
	out := make([]float32, n*cOut*hOut*wOut)
	for b := 0; b < n; b++ {
		for co := 0; co < cOut; co++ {
			for oh := 0; oh < hOut; oh++ {
				for ow := 0; ow < wOut; ow++ {
					var sum float32
					for ci := 0; ci < cIn; ci++ {
						for i := 0; i < kh; i++ {
							for j := 0; j < kw; j++ {
								y, x := oh*stride-padding+i, ow*stride-padding+j
								if y < 0 || y >= h || x < 0 || x >= w {
									continue
								}
								sum += in[((b*cIn+ci)*h+y)*w+x] * k[((co*cIn+ci)*kh+i)*kw+j]
							}
						}
					}
					out[((b*cOut+co)*hOut+oh)*wOut+ow] = sum
				}
			}
		}
	}
	return out
}

// TestConv2D_MatchesDirect verifies the im2col path against the direct
// definition, including a batch large enough to run on several goroutines.
func TestConv2D_MatchesDirect(t *testing.T) {
	tests := []struct {
		n, cIn, h, w, cOut, k int
		stride, padding       int
	}{
		{2, 3, 6, 6, 4, 3, 1, 0},
		{2, 3, 6, 6, 4, 3, 1, 1},
		{2, 3, 6, 6, 4, 3, 2, 0},
		{2, 3, 6, 6, 4, 3, 2, 1},
		{8, 3, 32, 32, 8, 3, 1, 1},
		{8, 8, 8, 8, 16, 3, 1, 0},
	}

	backend := New()
	for _, tt := range tests {
		input := filledRaw(tensor.Shape{tt.n, tt.cIn, tt.h, tt.w})
		for i := range input.AsFloat32() {
			input.AsFloat32()[i] = rand.Float32()*2 - 1 //nolint:gosec // test data
		}
		kernel := filledRaw(tensor.Shape{tt.cOut, tt.cIn, tt.k, tt.k})
		for i := range kernel.AsFloat32() {
			kernel.AsFloat32()[i] = rand.Float32()*2 - 1 //nolint:gosec // test data
		}

		got := backend.Conv2D(input, kernel, tt.stride, tt.padding).AsFloat32()
		want := directConv2D(input.AsFloat32(), kernel.AsFloat32(),
			tt.n, tt.cIn, tt.h, tt.w, tt.cOut, tt.k, tt.k, tt.stride, tt.padding)

		if len(got) != len(want) {
			t.Fatalf("%+v: length %d, want %d", tt, len(got), len(want))
		}
		for i := range got {
			if diff := got[i] - want[i]; diff < -1e-3 || diff > 1e-3 {
				t.Fatalf("%+v: out[%d] = %.4f, want %.4f", tt, i, got[i], want[i])
			}
		}
	}
}

// TestConv2D_ChannelMismatchPanics tests input validation.
func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 3, 4, 4}, tensor.Float32, tensor.CPU)
	kernel, _ := tensor.NewRaw(tensor.Shape{2, 1, 3, 3}, tensor.Float32, tensor.CPU)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for channel mismatch")
		}
	}()
	backend.Conv2D(input, kernel, 1, 0)
}
