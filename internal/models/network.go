// Package models assembles the CIFAR classifiers.
//
// Every network is a feature stage compiled from a layer configuration,
// flattened per sample, followed by a classifier stage. State dict keys are
// "features.<i>.<name>" and "classifier.<i>.<name>", matching the PyTorch
// modules the pretrained checkpoints were exported from.
package models

import (
	"fmt"
	"strings"

	"github.com/born-ml/cifar/internal/nn"
	"github.com/born-ml/cifar/internal/tensor"
)

// Network is a two-stage classifier: features, flatten, classifier.
type Network[B tensor.Backend] struct {
	name       string
	features   *nn.Sequential[B]
	classifier *nn.Sequential[B]
	numClasses int
	training   bool
}

func newNetwork[B tensor.Backend](name string, features, classifier *nn.Sequential[B], numClasses int) *Network[B] {
	return &Network[B]{
		name:       name,
		features:   features,
		classifier: classifier,
		numClasses: numClasses,
	}
}

// Forward maps images [N, 3, 32, 32] to class scores [N, classes].
func (n *Network[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := n.features.Forward(input)
	x = x.Flatten(1)
	return n.classifier.Forward(x)
}

// Predict returns the highest scoring class of each image in input.
func (n *Network[B]) Predict(input *tensor.Tensor[float32, B]) []int {
	return n.Forward(input).ArgMax()
}

// Parameters returns the learnable parameters of both stages.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	params := n.features.Parameters()
	return append(params, n.classifier.Parameters()...)
}

// StateDict returns every parameter and buffer under its PyTorch name.
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for name, raw := range n.features.StateDict() {
		state["features."+name] = raw
	}
	for name, raw := range n.classifier.StateDict() {
		state["classifier."+name] = raw
	}
	return state
}

// LoadStateDict copies stateDict into the network. Nothing is modified
// unless every name, shape and dtype matches. See nn.LoadStateDict.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return nn.LoadStateDict[B](n, stateDict)
}

// SetTraining switches BatchNorm2D and Dropout layers between training
// and evaluation behavior. Networks start in evaluation mode.
func (n *Network[B]) SetTraining(training bool) {
	n.training = training
	n.features.SetTraining(training)
	n.classifier.SetTraining(training)
}

// Training reports whether the network is in training mode.
func (n *Network[B]) Training() bool {
	return n.training
}

// Name returns the architecture name ("CIFAR" or "Carlini").
func (n *Network[B]) Name() string {
	return n.name
}

// Features returns the feature stage.
func (n *Network[B]) Features() *nn.Sequential[B] {
	return n.features
}

// Classifier returns the classifier stage.
func (n *Network[B]) Classifier() *nn.Sequential[B] {
	return n.classifier
}

// NumClasses returns the number of output classes.
func (n *Network[B]) NumClasses() int {
	return n.numClasses
}

// String renders the network the way PyTorch prints a module tree.
func (n *Network[B]) String() string {
	indent := func(s string) string { return strings.ReplaceAll(s, "\n", "\n  ") }

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(\n", n.name)
	fmt.Fprintf(&sb, "  (features): %s\n", indent(n.features.String()))
	fmt.Fprintf(&sb, "  (classifier): %s\n", indent(n.classifier.String()))
	sb.WriteString(")")
	return sb.String()
}
