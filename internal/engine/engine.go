// Package engine defines the numerical learning engine the trainer drives and
// provides a dense feed-forward implementation backed by gonum.
//
// Buffers handed out by an Engine are Tensors. Callers own every Tensor they
// receive and must Dispose it once its values have been read.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Activation names a layer activation function.
type Activation string

// Supported activations.
const (
	ActivationReLU      Activation = "relu"
	ActivationLeakyReLU Activation = "leaky_relu"
	ActivationSigmoid   Activation = "sigmoid"
	ActivationLinear    Activation = "linear"
)

// Layer configures one hidden layer: dense units, activation, optional L2
// weight decay, batch normalization and dropout applied after activation.
type Layer struct {
	Units      int        `json:"units" yaml:"units"`
	Activation Activation `json:"activation" yaml:"activation"`
	L2         float64    `json:"l2,omitempty" yaml:"l2,omitempty"`
	BatchNorm  bool       `json:"batch_norm,omitempty" yaml:"batch_norm,omitempty"`
	Dropout    float64    `json:"dropout,omitempty" yaml:"dropout,omitempty"`
}

// Architecture describes a binary classifier: an input width, hidden layers
// and a single output unit.
type Architecture struct {
	InputWidth int        `json:"input_width" yaml:"input_width"`
	Hidden     []Layer    `json:"hidden" yaml:"hidden"`
	Output     Activation `json:"output" yaml:"output"`
}

// Validate checks the architecture is something the engine can build.
func (a Architecture) Validate() error {
	var errs []string
	if a.InputWidth <= 0 {
		errs = append(errs, "input_width must be > 0")
	}
	if len(a.Hidden) == 0 {
		errs = append(errs, "at least one hidden layer is required")
	}
	for i, l := range a.Hidden {
		if l.Units <= 0 {
			errs = append(errs, fmt.Sprintf("hidden[%d].units must be > 0", i))
		}
		if !hiddenActivation(l.Activation) {
			errs = append(errs, fmt.Sprintf("hidden[%d].activation %q unsupported", i, l.Activation))
		}
		if l.L2 < 0 {
			errs = append(errs, fmt.Sprintf("hidden[%d].l2 must be >= 0", i))
		}
		if l.Dropout < 0 || l.Dropout >= 1 {
			errs = append(errs, fmt.Sprintf("hidden[%d].dropout must be in [0,1)", i))
		}
	}
	if a.Output != ActivationSigmoid {
		errs = append(errs, fmt.Sprintf("output activation must be sigmoid, got %q", a.Output))
	}
	if len(errs) > 0 {
		return eris.Errorf("engine: invalid architecture: %s", strings.Join(errs, "; "))
	}
	return nil
}

func hiddenActivation(a Activation) bool {
	switch a {
	case ActivationReLU, ActivationLeakyReLU, ActivationLinear, ActivationSigmoid:
		return true
	}
	return false
}

// EpochMetrics are the readings reported after each training epoch.
type EpochMetrics struct {
	Epoch         int     `json:"epoch" yaml:"epoch"`
	Loss          float64 `json:"loss" yaml:"loss"`
	Accuracy      float64 `json:"accuracy" yaml:"accuracy"`
	ValLoss       float64 `json:"val_loss,omitempty" yaml:"val_loss,omitempty"`
	ValAccuracy   float64 `json:"val_accuracy,omitempty" yaml:"val_accuracy,omitempty"`
	HasValidation bool    `json:"has_validation" yaml:"has_validation"`
}

// History is the sequence of epoch readings of one training run.
type History struct {
	Epochs []EpochMetrics `json:"epochs" yaml:"epochs"`
}

// Last returns the final epoch reading, or the zero value if none.
func (h *History) Last() EpochMetrics {
	if h == nil || len(h.Epochs) == 0 {
		return EpochMetrics{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// TrainingConfig controls one fit call.
type TrainingConfig struct {
	Epochs          int     `json:"epochs" yaml:"epochs"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	ValidationSplit float64 `json:"validation_split" yaml:"validation_split"`
	Seed            uint64  `json:"seed" yaml:"seed"`

	// OnEpochEnd, if set, runs after every epoch. Returning an error stops
	// training and the error is surfaced by Train.
	OnEpochEnd func(EpochMetrics) error `json:"-" yaml:"-"`
}

// Evaluation is the loss and accuracy of a model over a labelled set.
type Evaluation struct {
	Loss     float64 `json:"loss" yaml:"loss"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
}

// Model is an opaque handle to a model created by an Engine.
type Model interface {
	ID() string
	Architecture() Architecture
}

// Engine is the learning engine contract.
type Engine interface {
	// CreateModel builds an untrained model for the architecture.
	CreateModel(arch Architecture) (Model, error)
	// Train fits m on xs (n x width) and ys (n x 1). It checks ctx between
	// epochs.
	Train(ctx context.Context, m Model, xs, ys *Tensor, cfg TrainingConfig) (*History, error)
	// Predict returns an n x 1 tensor of probabilities.
	Predict(m Model, xs *Tensor) (*Tensor, error)
	// Evaluate returns loss and accuracy of m over xs, ys.
	Evaluate(m Model, xs, ys *Tensor) (Evaluation, error)
	// Tensor copies host rows into an engine-owned buffer.
	Tensor(rows [][]float64) (*Tensor, error)
	// Dispose releases tensors. Disposing twice is a no-op.
	Dispose(ts ...*Tensor)
	// Release frees a model. Released models cannot be used again.
	Release(m Model)
}
