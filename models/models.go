// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package models builds the CIFAR classifiers and loads their pretrained weights.
//
// Four factories are provided:
//   - CIFAR10Tiny: small network without normalization
//   - CIFAR10: VGG-style network with batch normalization
//   - CIFAR100: same architecture with 100 classes
//   - Carlini: the fixed architecture of Carlini and Wagner
//
// Example:
//
//	backend := cpu.New()
//	net, err := models.CIFAR10(ctx, models.CIFAR10Config{
//	    Channels:   128,
//	    Pretrained: true,
//	    AdvL2Eps:   0.5,
//	}, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	net.SetTraining(false)
//	logits := net.Forward(images) // [batch, 10]
//
// With Pretrained set, the checkpoint key chosen by SelectKey is resolved
// through checkpoint.Store unless the config names another CheckpointSource.
// Loading is atomic: on any error no network is returned.
package models

import (
	"context"

	"github.com/born-ml/cifar/internal/models"
	"github.com/born-ml/cifar/internal/tensor"
)

// Network is a classifier made of a feature stage and a classifier stage.
type Network[B tensor.Backend] = models.Network[B]

// CheckpointSource loads a checkpoint's parameter mapping by key.
type CheckpointSource = models.CheckpointSource

// Configuration types.
type (
	TinyConfig     = models.TinyConfig
	CIFAR10Config  = models.CIFAR10Config
	CIFAR100Config = models.CIFAR100Config
	CarliniConfig  = models.CarliniConfig
)

// ErrInvalidPadding is returned for a tiny network padding other than 0 or 1.
var ErrInvalidPadding = models.ErrInvalidPadding

// ErrInvalidEpsilon is returned by SelectKey for an infinite or oversized
// epsilon.
var ErrInvalidEpsilon = models.ErrInvalidEpsilon

// Checkpoint keys without an epsilon suffix.
const (
	CIFAR10Key  = models.CIFAR10Key
	CIFAR100Key = models.CIFAR100Key
	CarliniKey  = models.CarliniKey
	TinyKey     = models.TinyKey
	TinyBKey    = models.TinyBKey
	TinyBAdvKey = models.TinyBAdvKey
	InfKey      = models.InfKey
	InfAdvKey   = models.InfAdvKey
)

// DefaultTinyConfig returns a TinyConfig with padding 1.
func DefaultTinyConfig(channels int) TinyConfig {
	return models.DefaultTinyConfig(channels)
}

// SelectKey returns the checkpoint key CIFAR10 loads for cfg.
//
// Precedence is AdvL2Eps, YoshidaEps, StaticEps, DynamicEps, LoadInf, then
// the default key.
func SelectKey(cfg CIFAR10Config) (string, error) {
	return models.SelectKey(cfg)
}

// SelectTinyKey returns the checkpoint key CIFAR10Tiny loads for cfg.
func SelectTinyKey(cfg TinyConfig) (string, error) {
	return models.SelectTinyKey(cfg)
}

// CIFAR10Tiny builds the small CIFAR-10 network.
func CIFAR10Tiny[B tensor.Backend](ctx context.Context, cfg TinyConfig, backend B) (*Network[B], error) {
	return models.CIFAR10Tiny(ctx, cfg, backend)
}

// CIFAR10 builds the CIFAR-10 network.
func CIFAR10[B tensor.Backend](ctx context.Context, cfg CIFAR10Config, backend B) (*Network[B], error) {
	return models.CIFAR10(ctx, cfg, backend)
}

// CIFAR100 builds the CIFAR-100 network.
func CIFAR100[B tensor.Backend](ctx context.Context, cfg CIFAR100Config, backend B) (*Network[B], error) {
	return models.CIFAR100(ctx, cfg, backend)
}

// Carlini builds the Carlini network.
func Carlini[B tensor.Backend](ctx context.Context, cfg CarliniConfig, backend B) (*Network[B], error) {
	return models.Carlini(ctx, cfg, backend)
}
