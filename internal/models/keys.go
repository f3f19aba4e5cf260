package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPadding is returned for a tiny network padding other than 0 or 1.
var ErrInvalidPadding = errors.New("tiny network padding must be 0 or 1")

// ErrInvalidEpsilon is returned for an epsilon that is infinite or too
// large to name a checkpoint level.
var ErrInvalidEpsilon = errors.New("invalid epsilon")

// Fixed checkpoint keys.
const (
	CIFAR10Key  = "cifar10"
	CIFAR100Key = "cifar100"
	CarliniKey  = "carlini"
	TinyKey     = "cifar10_tiny"
	TinyBKey    = "cifar10_tinyb"
	TinyBAdvKey = "cifar10_tinyb_adv"
	InfKey      = "cifar10_inf"
	InfAdvKey   = "cifar10_inf_adv"
)

// Key families suffixed with an epsilon level.
const (
	advL2Family   = "cifar10_advl2"
	yoshidaFamily = "cifar10_yoshida"
	staticFamily  = "cifar10_static"
	dynamicFamily = "cifar10_dynamic"

	// Epsilons are given on the [0, 1] pixel scale and named on [0, 255].
	pixelLevels = 255

	maxEpsLevel = math.MaxInt32
)

// SelectKey returns the checkpoint key CIFAR10 loads for cfg.
//
// The first positive epsilon in the order AdvL2, Yoshida, Static, Dynamic
// picks the family. The suffix is eps*255 rounded half to even. With
// no epsilon set, LoadInf selects the "inf" checkpoint, otherwise the
// default one. LoadInf together with AdvL2 selects "cifar10_inf_adv".
// An infinite epsilon, or one whose level overflows an int32, is an
// ErrInvalidEpsilon.
func SelectKey(cfg CIFAR10Config) (string, error) {
	switch {
	case cfg.AdvL2Eps > 0:
		if cfg.LoadInf {
			return InfAdvKey, nil
		}
		return epsKey(advL2Family, cfg.AdvL2Eps)
	case cfg.YoshidaEps > 0:
		return epsKey(yoshidaFamily, cfg.YoshidaEps)
	case cfg.StaticEps > 0:
		return epsKey(staticFamily, cfg.StaticEps)
	case cfg.DynamicEps > 0:
		return epsKey(dynamicFamily, cfg.DynamicEps)
	case cfg.LoadInf:
		return InfKey, nil
	default:
		return CIFAR10Key, nil
	}
}

func epsKey(family string, eps float64) (string, error) {
	level := math.RoundToEven(eps * pixelLevels)
	if math.IsInf(level, 0) || math.IsNaN(level) || level > maxEpsLevel {
		return "", fmt.Errorf("%w: %s epsilon %v", ErrInvalidEpsilon, family, eps)
	}
	return fmt.Sprintf("%s_%d", family, int(level)), nil
}

// SelectTinyKey returns the checkpoint key CIFAR10Tiny loads for cfg.
func SelectTinyKey(cfg TinyConfig) (string, error) {
	switch cfg.Padding {
	case 1:
		return TinyKey, nil
	case 0:
		if cfg.TrainedAdv {
			return TinyBAdvKey, nil
		}
		return TinyBKey, nil
	default:
		return "", fmt.Errorf("%w, got %d", ErrInvalidPadding, cfg.Padding)
	}
}
