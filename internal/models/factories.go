package models

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/born-ml/cifar/internal/checkpoint"
	"github.com/born-ml/cifar/internal/layercfg"
	"github.com/born-ml/cifar/internal/nn"
	"github.com/born-ml/cifar/internal/tensor"
)

// CheckpointSource loads a checkpoint's parameter mapping by key.
// *checkpoint.Store is the standard implementation.
type CheckpointSource interface {
	Load(ctx context.Context, key string) (map[string]*tensor.RawTensor, error)
}

// CarliniFeatures is the channel count times spatial size leaving the
// Carlini feature stage for 32x32 inputs.
const CarliniFeatures = 128 * 5 * 5

// TinyConfig configures CIFAR10Tiny.
type TinyConfig struct {
	Channels   int  // Base channel count n
	Padding    int  // 1 or 0
	TrainedAdv bool // With Padding 0, load the adversarially trained weights
	Pretrained bool
	// Checkpoints supplies pretrained weights. Nil means checkpoint.NewStore().
	Checkpoints CheckpointSource
}

// DefaultTinyConfig returns a TinyConfig with padding 1.
func DefaultTinyConfig(channels int) TinyConfig {
	return TinyConfig{Channels: channels, Padding: 1}
}

// CIFAR10Config configures CIFAR10.
//
// Epsilons select adversarially trained checkpoint variants, see SelectKey.
type CIFAR10Config struct {
	Channels    int
	Pretrained  bool
	AdvL2Eps    float64
	YoshidaEps  float64
	StaticEps   float64
	DynamicEps  float64
	LoadInf     bool
	Checkpoints CheckpointSource
}

// CIFAR100Config configures CIFAR100.
type CIFAR100Config struct {
	Channels    int
	Pretrained  bool
	Checkpoints CheckpointSource
}

// CarliniConfig configures Carlini.
type CarliniConfig struct {
	Pretrained  bool
	Checkpoints CheckpointSource
}

// TinyLayers returns the CIFAR10Tiny feature configuration.
func TinyLayers(n, padding int) (layercfg.Config, int, error) {
	switch padding {
	case 1:
		cfg := layercfg.Config{
			layercfg.CP(n, 1), layercfg.M(),
			layercfg.CP(n, 1), layercfg.M(),
			layercfg.CP(2*n, 1), layercfg.M(),
			layercfg.CP(2*n, 0), layercfg.M(),
		}
		return cfg, 2 * n, nil
	case 0:
		cfg := layercfg.Config{
			layercfg.CP(n, 0), layercfg.CP(n, 0), layercfg.M(),
			layercfg.CP(2*n, 0), layercfg.M(),
			layercfg.CP(2*n, 0), layercfg.M(),
		}
		// 2x2 spatial positions survive
		return cfg, 4 * 2 * n, nil
	default:
		return nil, 0, fmt.Errorf("%w, got %d", ErrInvalidPadding, padding)
	}
}

// CIFARLayers returns the CIFAR10/CIFAR100 feature configuration.
func CIFARLayers(n int) layercfg.Config {
	return layercfg.Config{
		layercfg.C(n), layercfg.C(n), layercfg.M(),
		layercfg.C(2 * n), layercfg.C(2 * n), layercfg.M(),
		layercfg.C(4 * n), layercfg.C(4 * n), layercfg.M(),
		layercfg.CP(8*n, 0), layercfg.M(),
	}
}

// CarliniLayers returns the Carlini feature configuration.
func CarliniLayers() layercfg.Config {
	return layercfg.Config{
		layercfg.CP(64, 0), layercfg.CP(64, 0), layercfg.M(),
		layercfg.CP(128, 0), layercfg.CP(128, 0), layercfg.M(),
	}
}

// CIFAR10Tiny builds the small CIFAR-10 network without normalization.
func CIFAR10Tiny[B tensor.Backend](ctx context.Context, cfg TinyConfig, backend B) (*Network[B], error) {
	layers, flat, err := TinyLayers(cfg.Channels, cfg.Padding)
	if err != nil {
		return nil, err
	}

	features, _, err := layercfg.Compile(layers, false, backend)
	if err != nil {
		return nil, err
	}
	net := newNetwork("CIFAR", features, nn.NewSequential[B](nn.NewLinear(flat, 10, backend)), 10)

	if cfg.Pretrained {
		key, err := SelectTinyKey(cfg)
		if err != nil {
			return nil, err
		}
		if err := loadPretrained(ctx, net, cfg.Checkpoints, key); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// CIFAR10 builds the CIFAR-10 network with batch normalization.
func CIFAR10[B tensor.Backend](ctx context.Context, cfg CIFAR10Config, backend B) (*Network[B], error) {
	net, err := newCIFAR(cfg.Channels, 10, backend)
	if err != nil {
		return nil, err
	}

	if cfg.Pretrained {
		key, err := SelectKey(cfg)
		if err != nil {
			return nil, err
		}
		if err := loadPretrained(ctx, net, cfg.Checkpoints, key); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// CIFAR100 builds the CIFAR-100 network with batch normalization.
func CIFAR100[B tensor.Backend](ctx context.Context, cfg CIFAR100Config, backend B) (*Network[B], error) {
	net, err := newCIFAR(cfg.Channels, 100, backend)
	if err != nil {
		return nil, err
	}

	if cfg.Pretrained {
		if err := loadPretrained(ctx, net, cfg.Checkpoints, CIFAR100Key); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// Carlini builds the fixed Carlini architecture.
func Carlini[B tensor.Backend](ctx context.Context, cfg CarliniConfig, backend B) (*Network[B], error) {
	features, _, err := layercfg.Compile(CarliniLayers(), false, backend)
	if err != nil {
		return nil, err
	}

	classifier := nn.NewSequential[B](
		nn.NewLinear(CarliniFeatures, 256, backend),
		nn.NewReLU[B](),
		nn.NewDropout[B](0.5),
		nn.NewLinear(256, 256, backend),
		nn.NewReLU[B](),
		nn.NewLinear(256, 10, backend),
	)
	net := newNetwork("Carlini", features, classifier, 10)

	if cfg.Pretrained {
		if err := loadPretrained(ctx, net, cfg.Checkpoints, CarliniKey); err != nil {
			return nil, err
		}
	}
	return net, nil
}

func newCIFAR[B tensor.Backend](n, numClasses int, backend B) (*Network[B], error) {
	features, channels, err := layercfg.Compile(CIFARLayers(n), true, backend)
	if err != nil {
		return nil, err
	}
	// The last pool leaves a 1x1 map
	classifier := nn.NewSequential[B](nn.NewLinear(channels, numClasses, backend))
	return newNetwork("CIFAR", features, classifier, numClasses), nil
}

// loadPretrained fetches key from src and loads it into net atomically.
func loadPretrained[B tensor.Backend](ctx context.Context, net *Network[B], src CheckpointSource, key string) error {
	if src == nil {
		store, err := checkpoint.NewStore()
		if err != nil {
			return err
		}
		src = store
	}

	state, err := src.Load(ctx, key)
	if err != nil {
		return err
	}
	if err := net.LoadStateDict(state); err != nil {
		return fmt.Errorf("load checkpoint %s: %w", key, err)
	}

	slog.Debug("loaded pretrained weights", "network", net.Name(), "key", key, "tensors", len(state))
	return nil
}
