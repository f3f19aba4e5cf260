// Package tensor provides the core tensor types used by the CIFAR model zoo.
package tensor

// DType is a constraint for supported tensor element types.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// DataType is the runtime element type of a RawTensor.
type DataType int

// Supported data types. State dicts hold float32 parameters and int64
// BatchNorm step counters; the others appear in checkpoints.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
)

var dataTypes = [...]struct {
	name  string
	size  int
	float bool
}{
	Float32: {"float32", 4, true},
	Float64: {"float64", 8, true},
	Int32:   {"int32", 4, false},
	Int64:   {"int64", 8, false},
}

func (dt DataType) valid() bool {
	return dt >= 0 && int(dt) < len(dataTypes)
}

// Size returns the byte size of one element. It panics on an unknown type.
func (dt DataType) Size() int {
	if !dt.valid() {
		panic("unknown data type")
	}
	return dataTypes[dt].size
}

// String returns the lower-case Go name of the type.
func (dt DataType) String() string {
	if !dt.valid() {
		return "unknown"
	}
	return dataTypes[dt].name
}

// IsFloat reports whether the data type holds floating point values.
func (dt DataType) IsFloat() bool {
	return dt.valid() && dataTypes[dt].float
}

// dataTypeOf maps the element type T to its DataType.
func dataTypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	default:
		panic("unsupported type")
	}
}
