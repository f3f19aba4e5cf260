// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package models_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/born-ml/cifar/backend/cpu"
	"github.com/born-ml/cifar/checkpoint"
	"github.com/born-ml/cifar/internal/tensor"
	"github.com/born-ml/cifar/loader"
	"github.com/born-ml/cifar/models"
	"github.com/born-ml/cifar/nn"
)

// TestSelectKey verifies the public key selection.
func TestSelectKey(t *testing.T) {
	got, err := models.SelectKey(models.CIFAR10Config{AdvL2Eps: 0.03, YoshidaEps: 0.05})
	if err != nil || got != "cifar10_advl2_8" {
		t.Errorf("SelectKey() = %q, %v, want %q", got, err, "cifar10_advl2_8")
	}
	if got, err := models.SelectKey(models.CIFAR10Config{}); err != nil || got != models.CIFAR10Key {
		t.Errorf("SelectKey() = %q, %v, want %q", got, err, models.CIFAR10Key)
	}
	if _, err := models.SelectKey(models.CIFAR10Config{AdvL2Eps: math.Inf(1)}); !errors.Is(err, models.ErrInvalidEpsilon) {
		t.Errorf("SelectKey(+Inf) error = %v, want ErrInvalidEpsilon", err)
	}
	if _, err := models.SelectTinyKey(models.TinyConfig{Padding: 3}); !errors.Is(err, models.ErrInvalidPadding) {
		t.Errorf("SelectTinyKey() error = %v, want ErrInvalidPadding", err)
	}
}

// TestRoundTrip saves a network, registers the file and loads it back
// through a Store.
func TestRoundTrip(t *testing.T) {
	t.Setenv("BORN_HOME", t.TempDir())
	ctx := context.Background()
	backend := cpu.New()

	src, err := models.Carlini(ctx, models.CarliniConfig{}, backend)
	if err != nil {
		t.Fatalf("Carlini() failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "carlini.safetensors")
	if err := loader.WriteSafeTensors(path, src.StateDict(), loader.WriteOptions{}); err != nil {
		t.Fatalf("WriteSafeTensors() failed: %v", err)
	}

	store, err := checkpoint.NewStore()
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	store.Registry.Register(models.CarliniKey, path)

	dst, err := models.Carlini(ctx, models.CarliniConfig{Pretrained: true, Checkpoints: store}, backend)
	if err != nil {
		t.Fatalf("Carlini(pretrained) failed: %v", err)
	}

	want := src.StateDict()
	for key, raw := range dst.StateDict() {
		a, b := raw.AsFloat32(), want[key].AsFloat32()
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s[%d] = %v, want %v", key, i, a[i], b[i])
			}
		}
	}

	dst.SetTraining(false)
	logits := dst.Forward(tensor.Zeros[float32](tensor.Shape{2, 3, 32, 32}, backend))
	if !logits.Shape().Equal(tensor.Shape{2, 10}) {
		t.Errorf("Forward() shape = %v, want [2 10]", logits.Shape())
	}
}

// TestUnregisteredKey verifies pretrained loading of an unknown key fails
// with a LookupError.
func TestUnregisteredKey(t *testing.T) {
	t.Setenv("BORN_HOME", t.TempDir())
	store, err := checkpoint.NewStore()
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	net, err := models.CIFAR10Tiny(context.Background(), models.TinyConfig{
		Channels: 4, Padding: 0, TrainedAdv: true, Pretrained: true, Checkpoints: store,
	}, cpu.New())

	var lookupErr *checkpoint.LookupError
	if !errors.As(err, &lookupErr) || lookupErr.Key != models.TinyBAdvKey {
		t.Errorf("CIFAR10Tiny() error = %v, want LookupError for %q", err, models.TinyBAdvKey)
	}
	if net != nil {
		t.Error("CIFAR10Tiny() returned a network alongside an error")
	}
}

// TestStateMismatch verifies a checkpoint for a different width is rejected.
func TestStateMismatch(t *testing.T) {
	t.Setenv("BORN_HOME", t.TempDir())
	ctx := context.Background()
	backend := cpu.New()

	small, err := models.CIFAR100(ctx, models.CIFAR100Config{Channels: 2}, backend)
	if err != nil {
		t.Fatalf("CIFAR100() failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "cifar100.safetensors")
	if err := loader.WriteSafeTensors(path, small.StateDict(), loader.WriteOptions{}); err != nil {
		t.Fatalf("WriteSafeTensors() failed: %v", err)
	}

	store, err := checkpoint.NewStore()
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	store.Registry.Register(models.CIFAR100Key, path)

	_, err = models.CIFAR100(ctx, models.CIFAR100Config{Channels: 4, Pretrained: true, Checkpoints: store}, backend)
	if !errors.Is(err, nn.ErrStateMismatch) {
		t.Errorf("CIFAR100() error = %v, want ErrStateMismatch", err)
	}
}
