package nn

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/cifar/internal/tensor"
)

// ErrStateMismatch is wrapped by every *StateMismatchError.
var ErrStateMismatch = errors.New("state dict does not match module")

// numBatchesTrackedKey names BatchNorm's step counter. Checkpoints written
// before the counter existed omit it, so it may be missing.
const numBatchesTrackedKey = "num_batches_tracked"

// ShapeMismatch records a key present on both sides with incompatible tensors.
type ShapeMismatch struct {
	Key       string
	Want      tensor.Shape
	Got       tensor.Shape
	WantDType tensor.DataType
	GotDType  tensor.DataType
}

func (m ShapeMismatch) String() string {
	if !m.Want.Equal(m.Got) {
		return fmt.Sprintf("%s: shape %v, checkpoint has %v", m.Key, m.Want, m.Got)
	}
	return fmt.Sprintf("%s: dtype %s, checkpoint has %s", m.Key, m.WantDType, m.GotDType)
}

// StateMismatchError reports why a state dict could not be applied.
//
// When it is returned no module state has been modified.
type StateMismatchError struct {
	Missing    []string        // keys the module needs but the state dict lacks
	Unexpected []string        // keys in the state dict the module does not have
	Mismatched []ShapeMismatch // keys on both sides with different shapes or dtypes
}

// Error implements error.
func (e *StateMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected keys: "+strings.Join(e.Unexpected, ", "))
	}
	for _, m := range e.Mismatched {
		parts = append(parts, m.String())
	}
	return fmt.Sprintf("%v: %s", ErrStateMismatch, strings.Join(parts, "; "))
}

// Unwrap returns ErrStateMismatch.
func (e *StateMismatchError) Unwrap() error {
	return ErrStateMismatch
}

// LoadStateDict copies stateDict into m.
//
// Keys must match m.StateDict() exactly and every tensor must have the same
// shape as its target. Floating tensors may differ in precision (float64 is
// narrowed to float32). A missing num_batches_tracked counter is accepted.
//
// Every entry is checked before anything is written, so on error m is left
// exactly as it was.
func LoadStateDict[B tensor.Backend](m Module[B], stateDict map[string]*tensor.RawTensor) error {
	target := m.StateDict()

	mismatch := &StateMismatchError{}
	for key, dst := range target {
		src, ok := stateDict[key]
		if !ok {
			if !isNumBatchesTracked(key) {
				mismatch.Missing = append(mismatch.Missing, key)
			}
			continue
		}
		if !src.Shape().Equal(dst.Shape()) || src.DType().IsFloat() != dst.DType().IsFloat() {
			mismatch.Mismatched = append(mismatch.Mismatched, ShapeMismatch{
				Key:       key,
				Want:      dst.Shape(),
				Got:       src.Shape(),
				WantDType: dst.DType(),
				GotDType:  src.DType(),
			})
		}
	}
	for key := range stateDict {
		if _, ok := target[key]; !ok {
			mismatch.Unexpected = append(mismatch.Unexpected, key)
		}
	}

	if len(mismatch.Missing)+len(mismatch.Unexpected)+len(mismatch.Mismatched) > 0 {
		sort.Strings(mismatch.Missing)
		sort.Strings(mismatch.Unexpected)
		sort.Slice(mismatch.Mismatched, func(i, j int) bool {
			return mismatch.Mismatched[i].Key < mismatch.Mismatched[j].Key
		})
		return mismatch
	}

	for key, dst := range target {
		src, ok := stateDict[key]
		if !ok {
			continue
		}
		if err := dst.CopyFrom(src); err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
	}

	return nil
}

func isNumBatchesTracked(key string) bool {
	return key == numBatchesTrackedKey || strings.HasSuffix(key, "."+numBatchesTrackedKey)
}
