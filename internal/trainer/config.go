// Package trainer configures the learning engine, fits churn classifiers and
// owns the resulting trained models.
package trainer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/model"
)

// Config is the architecture and training budget requested from the engine.
type Config struct {
	HiddenUnits     []int     `yaml:"hidden_units" mapstructure:"hidden_units"`
	Dropout         []float64 `yaml:"dropout" mapstructure:"dropout"`
	Activation      string    `yaml:"activation" mapstructure:"activation"`
	L2              float64   `yaml:"l2" mapstructure:"l2"`
	L2Layers        int       `yaml:"l2_layers" mapstructure:"l2_layers"`
	BatchNorm       bool      `yaml:"batch_norm" mapstructure:"batch_norm"`
	LearningRate    float64   `yaml:"learning_rate" mapstructure:"learning_rate"`
	Epochs          int       `yaml:"epochs" mapstructure:"epochs"`
	BatchSize       int       `yaml:"batch_size" mapstructure:"batch_size"`
	ValidationSplit float64   `yaml:"validation_split" mapstructure:"validation_split"`
	Seed            uint64    `yaml:"seed" mapstructure:"seed"`
	LogEvery        int       `yaml:"log_every" mapstructure:"log_every"`
}

// DefaultConfig returns the standard churn classifier: three shrinking ReLU
// layers, weight decay on the first two, batch normalization after the first
// two and decreasing dropout throughout.
func DefaultConfig() Config {
	return Config{
		HiddenUnits:     []int{64, 32, 16},
		Dropout:         []float64{0.3, 0.2, 0.1},
		Activation:      string(engine.ActivationReLU),
		L2:              0.001,
		L2Layers:        2,
		BatchNorm:       true,
		LearningRate:    0.001,
		Epochs:          100,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Seed:            42,
		LogEvery:        10,
	}
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	if len(c.HiddenUnits) == 0 {
		errs = append(errs, "hidden_units must not be empty")
	}
	for i := 1; i < len(c.HiddenUnits); i++ {
		if c.HiddenUnits[i] > c.HiddenUnits[i-1] {
			errs = append(errs, fmt.Sprintf("hidden_units must not increase (layer %d: %d > %d)", i, c.HiddenUnits[i], c.HiddenUnits[i-1]))
		}
	}
	if len(c.Dropout) > len(c.HiddenUnits) {
		errs = append(errs, "dropout has more entries than hidden_units")
	}
	if c.L2Layers < 0 {
		errs = append(errs, "l2_layers must be >= 0")
	}
	if c.LearningRate <= 0 {
		errs = append(errs, "learning_rate must be > 0")
	}
	if c.Epochs <= 0 {
		errs = append(errs, "epochs must be > 0")
	}
	if c.BatchSize <= 0 {
		errs = append(errs, "batch_size must be > 0")
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		errs = append(errs, "validation_split must be in [0,1)")
	}

	if len(errs) > 0 {
		return eris.Errorf("trainer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return c.Architecture().Validate()
}

// Architecture expands the config into an engine architecture.
func (c Config) Architecture() engine.Architecture {
	act := engine.Activation(c.Activation)
	if act == "" {
		act = engine.ActivationReLU
	}
	arch := engine.Architecture{
		InputWidth: model.FeatureCount,
		Output:     engine.ActivationSigmoid,
	}
	for i, units := range c.HiddenUnits {
		l := engine.Layer{Units: units, Activation: act}
		if i < c.L2Layers {
			l.L2 = c.L2
			l.BatchNorm = c.BatchNorm
		}
		if i < len(c.Dropout) {
			l.Dropout = c.Dropout[i]
		}
		arch.Hidden = append(arch.Hidden, l)
	}
	return arch
}

// TrainingConfig returns the engine fit options.
func (c Config) TrainingConfig() engine.TrainingConfig {
	return engine.TrainingConfig{
		Epochs:          c.Epochs,
		BatchSize:       c.BatchSize,
		LearningRate:    c.LearningRate,
		ValidationSplit: c.ValidationSplit,
		Seed:            c.Seed,
	}
}
