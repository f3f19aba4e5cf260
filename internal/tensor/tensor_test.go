package tensor_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/born-ml/cifar/internal/backend/cpu"
	"github.com/born-ml/cifar/internal/tensor"
)

// Test helpers

func assertEqualFloat32(t *testing.T, expected, actual float32, msg string) {
	t.Helper()
	if math.Abs(float64(expected-actual)) > 1e-6 {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

func assertEqualShape(t *testing.T, expected, actual tensor.Shape, msg string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Errorf("%s: expected shape %v, got %v", msg, expected, actual)
	}
}

func TestZerosOnesFull(t *testing.T) {
	backend := cpu.New()

	zeros := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
	assertEqualShape(t, tensor.Shape{2, 3}, zeros.Shape(), "Zeros shape")
	for i, v := range zeros.Data() {
		assertEqualFloat32(t, 0, v, fmt.Sprintf("Zeros[%d]", i))
	}

	ones := tensor.Ones[float32](tensor.Shape{4}, backend)
	for i, v := range ones.Data() {
		assertEqualFloat32(t, 1, v, fmt.Sprintf("Ones[%d]", i))
	}

	full := tensor.Full(tensor.Shape{2}, int64(7), backend)
	if full.DType() != tensor.Int64 || full.Data()[1] != 7 {
		t.Errorf("Full int64: dtype=%s data=%v", full.DType(), full.Data())
	}
}

func TestRandnStatistics(t *testing.T) {
	backend := cpu.New()
	x := tensor.Randn(tensor.Shape{10000}, backend)

	var sum, sumSq float64
	for _, v := range x.Data() {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	mean := sum / 10000
	variance := sumSq/10000 - mean*mean

	if math.Abs(mean) > 0.05 {
		t.Errorf("Randn mean = %.4f, want ~0", mean)
	}
	if math.Abs(variance-1) > 0.1 {
		t.Errorf("Randn variance = %.4f, want ~1", variance)
	}
}

func TestUniformBound(t *testing.T) {
	backend := cpu.New()
	x := tensor.Uniform(tensor.Shape{1000}, 0.25, backend)
	for i, v := range x.Data() {
		if v < -0.25 || v > 0.25 {
			t.Fatalf("Uniform[%d] = %v outside [-0.25, 0.25]", i, v)
		}
	}
}

func TestFromSlice(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	assertEqualFloat32(t, 6, x.At(1, 2), "At(1, 2)")

	if _, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2}, backend); err == nil {
		t.Error("FromSlice should reject length mismatch")
	}
}

func TestTensorArithmetic(t *testing.T) {
	backend := cpu.New()
	a, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	b, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2}, backend)

	sum := a.Add(b).Data()
	diff := b.Sub(a).Data()
	prod := a.Mul(b).Data()
	for i := range sum {
		assertEqualFloat32(t, a.Data()[i]+b.Data()[i], sum[i], fmt.Sprintf("Add[%d]", i))
		assertEqualFloat32(t, 4, diff[i], fmt.Sprintf("Sub[%d]", i))
		assertEqualFloat32(t, a.Data()[i]*b.Data()[i], prod[i], fmt.Sprintf("Mul[%d]", i))
	}
}

func TestTensorMatMul(t *testing.T) {
	backend := cpu.New()
	a, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	b, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2}, backend)

	got := a.MatMul(b).Data()
	expected := []float32{22, 28, 49, 64}
	for i := range expected {
		assertEqualFloat32(t, expected[i], got[i], fmt.Sprintf("MatMul[%d]", i))
	}
}

func TestTensorReshape(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros[float32](tensor.Shape{2, 3, 4}, backend)
	x.Data()[23] = 11

	reshaped := x.Reshape(6, -1)
	assertEqualShape(t, tensor.Shape{6, 4}, reshaped.Shape(), "Reshape shape")
	assertEqualFloat32(t, 11, reshaped.At(5, 3), "Reshape preserves data")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Reshape with two -1 dims should panic")
		}
	}()
	x.Reshape(-1, -1)
}

func TestTensorFlatten(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros[float32](tensor.Shape{2, 8, 3, 3}, backend)

	flat := x.Flatten(1)
	assertEqualShape(t, tensor.Shape{2, 72}, flat.Shape(), "Flatten(1)")

	// The source shape must not be mutated by Flatten
	assertEqualShape(t, tensor.Shape{2, 8, 3, 3}, x.Shape(), "source shape")
}

func TestTensorTranspose(t *testing.T) {
	backend := cpu.New()
	// [[1, 2, 3],
	//  [4, 5, 6]]
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)

	transposed := x.T()

	assertEqualShape(t, tensor.Shape{3, 2}, transposed.Shape(), "Transpose shape")

	// [[1, 4],
	//  [2, 5],
	//  [3, 6]]
	if transposed.At(0, 1) != 4 || transposed.At(1, 0) != 2 || transposed.At(2, 1) != 6 {
		t.Error("Transpose data incorrect")
	}
}

func TestTensorClone(t *testing.T) {
	backend := cpu.New()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)

	clone := x.Clone()
	clone.Data()[0] = 999

	assertEqualFloat32(t, 1, x.At(0, 0), "Clone must not share data")
}

// Broadcasting Tests

func TestBroadcastingAdd(t *testing.T) {
	backend := cpu.New()
	// (3, 1) + (3, 5) → (3, 5)
	a := tensor.Ones[float32](tensor.Shape{3, 1}, backend)
	b := tensor.Full(tensor.Shape{3, 5}, float32(2.0), backend)

	c := a.Add(b)

	assertEqualShape(t, tensor.Shape{3, 5}, c.Shape(), "Broadcasting shape")

	for i, v := range c.Data() {
		assertEqualFloat32(t, 3.0, v, fmt.Sprintf("Broadcasting[%d]", i))
	}
}

func TestArgMax(t *testing.T) {
	backend := cpu.New()
	logits, _ := tensor.FromSlice([]float32{
		0.1, 2, -1,
		5, 5, 1,
		-3, -2, -1,
	}, tensor.Shape{3, 3}, backend)

	got := logits.ArgMax()
	want := []int{1, 0, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ArgMax()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDataWrongType(t *testing.T) {
	backend := cpu.New()
	raw, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Int64, tensor.CPU)
	x := tensor.New[float32](raw, backend)

	defer func() {
		if recover() == nil {
			t.Error("Data() should panic when T does not match the dtype")
		}
	}()
	_ = x.Data()
}
