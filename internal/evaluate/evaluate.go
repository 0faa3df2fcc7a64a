package evaluate

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/dataset"
	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/model"
)

// Predictor is the trained-model surface the evaluator needs.
type Predictor interface {
	Predict(vectors []model.FeatureVector) ([]float64, error)
	Evaluate(vectors []model.FeatureVector, labels []float64) (engine.Evaluation, error)
}

// Report is the outcome of one evaluation run.
type Report struct {
	Samples     int             `json:"samples" yaml:"samples"`
	Threshold   float64         `json:"threshold" yaml:"threshold"`
	Matrix      ConfusionMatrix `json:"confusion_matrix" yaml:"confusion_matrix"`
	Metrics     Metrics         `json:"metrics" yaml:"metrics"`
	Loss        float64         `json:"loss" yaml:"loss"`
	EngineAcc   float64         `json:"engine_accuracy" yaml:"engine_accuracy"`
	EvaluatedAt time.Time       `json:"evaluated_at" yaml:"evaluated_at"`
}

// Evaluate predicts every row of split and compares against its labels.
// Neither the model nor the split is modified.
func Evaluate(p Predictor, split dataset.Split, threshold float64) (*Report, error) {
	if p == nil {
		return nil, eris.Wrap(model.ErrNotTrained, "evaluate")
	}
	if split.Len() == 0 {
		return nil, eris.Wrap(model.ErrEmptyDataset, "evaluate: no held-out rows")
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}

	probs, err := p.Predict(split.Features)
	if err != nil {
		return nil, eris.Wrap(err, "evaluate: predict")
	}
	cm, err := Confusion(probs, split.Labels, threshold)
	if err != nil {
		return nil, err
	}
	ev, err := p.Evaluate(split.Features, split.Labels)
	if err != nil {
		return nil, eris.Wrap(err, "evaluate: engine metrics")
	}

	r := &Report{
		Samples:     split.Len(),
		Threshold:   threshold,
		Matrix:      cm,
		Metrics:     cm.Metrics(),
		Loss:        ev.Loss,
		EngineAcc:   ev.Accuracy,
		EvaluatedAt: time.Now().UTC(),
	}

	zap.L().Info("evaluate: complete",
		zap.Int("samples", r.Samples),
		zap.Int("tp", cm.TruePositive),
		zap.Int("tn", cm.TrueNegative),
		zap.Int("fp", cm.FalsePositive),
		zap.Int("fn", cm.FalseNegative),
		zap.Float64("f1", r.Metrics.F1),
	)
	return r, nil
}
