// Package layercfg compiles compact layer-configuration lists into
// convolutional feature stages.
//
// A configuration is an ordered list of entries, each one of:
//
//	M       2x2 max pooling, stride 2
//	N       3x3 convolution to N channels, padding 1
//	(N,P)   3x3 convolution to N channels, padding P
//
// Every convolution is followed by an optional BatchNorm2D (affine=false)
// and a ReLU. Compilation starts from 3 input channels (RGB).
package layercfg

import (
	"errors"
	"fmt"
	"strings"
)

// InputChannels is the channel count the first convolution consumes.
const InputChannels = 3

// DefaultPadding is used by bare channel-count entries.
const DefaultPadding = 1

// Kind distinguishes pooling markers from convolutions.
type Kind int

// Entry kinds.
const (
	Pool Kind = iota
	Conv
)

// LayerSpec is one configuration entry.
type LayerSpec struct {
	Kind     Kind
	Channels int // Conv only
	Padding  int // Conv only
}

// M returns a pooling marker.
func M() LayerSpec {
	return LayerSpec{Kind: Pool}
}

// C returns a convolution to n channels with the default padding.
func C(n int) LayerSpec {
	return LayerSpec{Kind: Conv, Channels: n, Padding: DefaultPadding}
}

// CP returns a convolution to n channels with padding p.
func CP(n, p int) LayerSpec {
	return LayerSpec{Kind: Conv, Channels: n, Padding: p}
}

// String renders the entry in the compact text form.
func (l LayerSpec) String() string {
	switch {
	case l.Kind == Pool:
		return "M"
	case l.Padding == DefaultPadding:
		return fmt.Sprintf("%d", l.Channels)
	default:
		return fmt.Sprintf("(%d,%d)", l.Channels, l.Padding)
	}
}

// Config is an ordered list of layer entries.
type Config []LayerSpec

// String renders the configuration as space-separated entries, the form
// Parse accepts.
func (c Config) String() string {
	parts := make([]string, len(c))
	for i, l := range c {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}

// Pools returns the number of pooling markers.
func (c Config) Pools() int {
	n := 0
	for _, l := range c {
		if l.Kind == Pool {
			n++
		}
	}
	return n
}

// OutChannels returns the channel count after the last convolution, or
// InputChannels when there is none.
func (c Config) OutChannels() int {
	channels := InputChannels
	for _, l := range c {
		if l.Kind == Conv {
			channels = l.Channels
		}
	}
	return channels
}

// ErrInvalidSpec is wrapped by every *SpecError.
var ErrInvalidSpec = errors.New("invalid layer spec")

// SpecError reports a configuration entry that cannot be compiled.
type SpecError struct {
	Index  int
	Spec   LayerSpec
	Reason string
}

// Error implements error.
func (e *SpecError) Error() string {
	return fmt.Sprintf("%v at index %d (%s): %s", ErrInvalidSpec, e.Index, e.Spec, e.Reason)
}

// Unwrap returns ErrInvalidSpec.
func (e *SpecError) Unwrap() error {
	return ErrInvalidSpec
}

// Validate checks every entry without building anything.
func (c Config) Validate() error {
	for i, l := range c {
		switch l.Kind {
		case Pool:
		case Conv:
			if l.Channels <= 0 {
				return &SpecError{Index: i, Spec: l, Reason: "channel count must be positive"}
			}
			if l.Padding < 0 {
				return &SpecError{Index: i, Spec: l, Reason: "padding must not be negative"}
			}
		default:
			return &SpecError{Index: i, Spec: l, Reason: fmt.Sprintf("unknown kind %d", l.Kind)}
		}
	}
	return nil
}
