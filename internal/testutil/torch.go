// Package testutil writes checkpoint fixtures for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
)

// Tensor is a strided view over its own storage. Exactly one of Float32
// and Int64 holds the storage.
type Tensor struct {
	Float32 []float32
	Int64   []int64
	Shape   []int
	Stride  []int // Row-major when nil
	Offset  int
}

// Parameter is a tensor pickled the way nn.Parameter is.
type Parameter struct {
	Tensor Tensor
}

// Item is one key/value pair of a Dict or OrderedDict.
type Item struct {
	Key   string
	Value any
}

// OrderedDict pickles as collections.OrderedDict.
type OrderedDict []Item

// Dict pickles as a plain dict.
type Dict []Item

// Tuple pickles as a tuple.
type Tuple []any

// Module is an nn.Module instance as torch.save(model) pickles it.
type Module struct {
	Class         string // Qualified class, e.g. "torch.nn.modules.linear.Linear"
	Parameters    OrderedDict
	Buffers       OrderedDict
	Modules       OrderedDict
	NonPersistent []string
}

// Instance is an object of an arbitrary class with dict state.
type Instance struct {
	Class string
	Attrs Dict
}

// Pickle opcodes, protocol 2.
const (
	opMark       = '('
	opStop       = '.'
	opBinInt     = 'J'
	opBinFloat   = 'G'
	opBinUnicode = 'X'
	opNone       = 'N'
	opNewTrue    = 0x88
	opNewFalse   = 0x89
	opEmptyTuple = ')'
	opTuple      = 't'
	opEmptyList  = ']'
	opAppends    = 'e'
	opEmptyDict  = '}'
	opSetItems   = 'u'
	opGlobal     = 'c'
	opReduce     = 'R'
	opBuild      = 'b'
	opNewObj     = 0x81
	opBinPersID  = 'Q'
	opProto      = 0x80
)

// WriteTorch writes obj to path in the zip layout torch.save uses:
// archive/data.pkl holds the pickle and archive/data/<key> each storage.
func WriteTorch(t *testing.T, path string, obj any) {
	t.Helper()

	e := &torchEncoder{t: t}
	e.buf.Write([]byte{opProto, 2})
	e.encode(obj)
	e.buf.WriteByte(opStop)

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	write := func(name string, data []byte) {
		w, err := zw.Create("archive/" + name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	write("data.pkl", e.buf.Bytes())
	for i, storage := range e.storages {
		write("data/"+strconv.Itoa(i), storage)
	}
	write("version", []byte("3\n"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, archive.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

type torchEncoder struct {
	t        *testing.T
	buf      bytes.Buffer
	storages [][]byte
}

func (e *torchEncoder) encode(v any) {
	switch v := v.(type) {
	case nil:
		e.buf.WriteByte(opNone)
	case bool:
		if v {
			e.buf.WriteByte(opNewTrue)
		} else {
			e.buf.WriteByte(opNewFalse)
		}
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			e.t.Fatalf("testutil: int %d does not fit BININT", v)
		}
		e.buf.WriteByte(opBinInt)
		e.buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(int32(v))))
	case float64:
		e.buf.WriteByte(opBinFloat)
		e.buf.Write(binary.BigEndian.AppendUint64(nil, math.Float64bits(v)))
	case string:
		e.buf.WriteByte(opBinUnicode)
		e.buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(v))))
		e.buf.WriteString(v)
	case Tuple:
		e.tuple(v...)
	case Tensor:
		e.tensor(v)
	case Parameter:
		e.global("torch._utils._rebuild_parameter")
		e.tuple(v.Tensor, false, OrderedDict{})
		e.buf.WriteByte(opReduce)
	case OrderedDict:
		e.global("collections.OrderedDict")
		e.buf.WriteByte(opEmptyTuple)
		e.buf.WriteByte(opReduce)
		e.items(v)
	case Dict:
		e.buf.WriteByte(opEmptyDict)
		e.items(v)
	case Module:
		e.object(v.Class, Dict{
			{"training", false},
			{"_parameters", v.Parameters},
			{"_buffers", v.Buffers},
			{"_non_persistent_buffers_set", pySet(v.NonPersistent)},
			{"_modules", v.Modules},
		})
	case Instance:
		e.object(v.Class, v.Attrs)
	case pySet:
		// Protocol 2 pickles a set as set([...])
		e.global("__builtin__.set")
		e.buf.WriteByte(opMark)
		e.buf.WriteByte(opEmptyList)
		if len(v) > 0 {
			e.buf.WriteByte(opMark)
			for _, s := range v {
				e.encode(s)
			}
			e.buf.WriteByte(opAppends)
		}
		e.buf.WriteByte(opTuple)
		e.buf.WriteByte(opReduce)
	default:
		e.t.Fatalf("testutil: cannot pickle %T", v)
	}
}

type pySet []string

func (e *torchEncoder) global(qualified string) {
	i := strings.LastIndexByte(qualified, '.')
	e.buf.WriteByte(opGlobal)
	e.buf.WriteString(qualified[:i] + "\n" + qualified[i+1:] + "\n")
}

func (e *torchEncoder) tuple(items ...any) {
	if len(items) == 0 {
		e.buf.WriteByte(opEmptyTuple)
		return
	}
	e.buf.WriteByte(opMark)
	for _, item := range items {
		e.encode(item)
	}
	e.buf.WriteByte(opTuple)
}

func (e *torchEncoder) items(items []Item) {
	if len(items) == 0 {
		return
	}
	e.buf.WriteByte(opMark)
	for _, item := range items {
		e.encode(item.Key)
		e.encode(item.Value)
	}
	e.buf.WriteByte(opSetItems)
}

// object pickles an instance through NEWOBJ and BUILD, as copyreg does
// for protocol 2.
func (e *torchEncoder) object(class string, state Dict) {
	e.global(class)
	e.buf.WriteByte(opEmptyTuple)
	e.buf.WriteByte(opNewObj)
	e.encode(state)
	e.buf.WriteByte(opBuild)
}

func (e *torchEncoder) tensor(v Tensor) {
	var class string
	var data []byte
	var numel int
	switch {
	case v.Float32 != nil:
		class = "torch.FloatStorage"
		numel = len(v.Float32)
		for _, f := range v.Float32 {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
		}
	case v.Int64 != nil:
		class = "torch.LongStorage"
		numel = len(v.Int64)
		for _, n := range v.Int64 {
			data = binary.LittleEndian.AppendUint64(data, uint64(n))
		}
	default:
		e.t.Fatal("testutil: tensor without storage")
	}
	key := strconv.Itoa(len(e.storages))
	e.storages = append(e.storages, data)

	stride := v.Stride
	if stride == nil {
		stride = make([]int, len(v.Shape))
		step := 1
		for i := len(v.Shape) - 1; i >= 0; i-- {
			stride[i] = step
			step *= v.Shape[i]
		}
	}

	e.global("torch._utils._rebuild_tensor_v2")
	e.buf.WriteByte(opMark)

	// Persistent id: ('storage', storage class, key, location, numel)
	e.buf.WriteByte(opMark)
	e.encode("storage")
	e.global(class)
	e.encode(key)
	e.encode("cpu")
	e.encode(numel)
	e.buf.WriteByte(opTuple)
	e.buf.WriteByte(opBinPersID)

	e.encode(v.Offset)
	e.tuple(ints(v.Shape)...)
	e.tuple(ints(stride)...)
	e.encode(false)
	e.encode(OrderedDict{})
	e.buf.WriteByte(opTuple)
	e.buf.WriteByte(opReduce)
}

func ints(s []int) []any {
	out := make([]any, len(s))
	for i, n := range s {
		out[i] = n
	}
	return out
}
