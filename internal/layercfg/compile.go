package layercfg

import (
	"github.com/born-ml/cifar/internal/nn"
	"github.com/born-ml/cifar/internal/tensor"
)

// Compile builds the feature stage described by cfg.
//
// It returns the Sequential and the channel count of its output. Layer
// indices inside the Sequential follow the expansion order (conv, [norm],
// relu, pool), which is what pretrained state dict keys are numbered by.
//
// Invalid entries are reported as *SpecError before any layer is built.
func Compile[B tensor.Backend](cfg Config, batchNorm bool, backend B) (*nn.Sequential[B], int, error) {
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}

	features := nn.NewSequential[B]()
	channels := InputChannels

	for _, l := range cfg {
		if l.Kind == Pool {
			features.Add(nn.NewMaxPool2D(2, 2, backend))
			continue
		}

		features.Add(nn.NewConv2D(channels, l.Channels, 3, 3, 1, l.Padding, true, backend))
		if batchNorm {
			features.Add(nn.NewBatchNorm2D(l.Channels, false, backend))
		}
		features.Add(nn.NewReLU[B]())
		channels = l.Channels
	}

	return features, channels, nil
}
