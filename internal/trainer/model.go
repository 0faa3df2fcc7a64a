package trainer

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/features"
	"github.com/sells-group/churn-risk/internal/model"
)

// TrainedModel is a fitted classifier bound to the scaler it was trained
// against. It is never modified after Train returns it.
type TrainedModel struct {
	ID                string               `json:"id" yaml:"id"`
	Handle            engine.Model         `json:"-" yaml:"-"`
	Scaler            features.ScalerState `json:"scaler" yaml:"scaler"`
	ScalerFingerprint string               `json:"scaler_fingerprint" yaml:"scaler_fingerprint"`
	History           *engine.History      `json:"history,omitempty" yaml:"history,omitempty"`
	TrainRows         int                  `json:"train_rows" yaml:"train_rows"`
	TrainedAt         time.Time            `json:"trained_at" yaml:"trained_at"`

	eng engine.Engine
}

// Normalize scales a raw feature vector with the model's bound scaler.
func (m *TrainedModel) Normalize(v model.FeatureVector) model.FeatureVector {
	if m == nil {
		return v
	}
	return m.Scaler.Apply(v)
}

// OutOfRange reports whether the raw vector v falls outside the
// distribution the model was trained on.
func (m *TrainedModel) OutOfRange(v model.FeatureVector) bool {
	if m == nil {
		return false
	}
	return m.Scaler.OutOfRange(v)
}

// Predict returns the churn probability of each normalized vector. Engine
// buffers are released before returning on every path.
func (m *TrainedModel) Predict(vectors []model.FeatureVector) ([]float64, error) {
	if m == nil || m.Handle == nil {
		return nil, eris.Wrap(model.ErrNotTrained, "trainer: predict")
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	xs, err := vectorTensor(m.eng, vectors)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: predict input")
	}
	defer m.eng.Dispose(xs)

	out, err := m.eng.Predict(m.Handle, xs)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: predict")
	}
	defer m.eng.Dispose(out)

	probs, err := out.Values()
	if err != nil {
		return nil, eris.Wrap(err, "trainer: read predictions")
	}
	if len(probs) != len(vectors) {
		return nil, eris.Errorf("trainer: engine returned %d predictions for %d rows", len(probs), len(vectors))
	}
	return probs, nil
}

// Evaluate returns the engine's loss and accuracy over normalized vectors.
func (m *TrainedModel) Evaluate(vectors []model.FeatureVector, labels []float64) (engine.Evaluation, error) {
	if m == nil || m.Handle == nil {
		return engine.Evaluation{}, eris.Wrap(model.ErrNotTrained, "trainer: evaluate")
	}
	if len(vectors) == 0 {
		return engine.Evaluation{}, eris.Wrap(model.ErrEmptyDataset, "trainer: evaluate")
	}

	xs, ys, err := tensors(m.eng, vectors, labels)
	if err != nil {
		return engine.Evaluation{}, eris.Wrap(err, "trainer: evaluate input")
	}
	defer m.eng.Dispose(xs, ys)

	ev, err := m.eng.Evaluate(m.Handle, xs, ys)
	if err != nil {
		return engine.Evaluation{}, eris.Wrap(err, "trainer: evaluate")
	}
	return ev, nil
}

// Release frees the engine handle. The model cannot predict afterwards.
func (m *TrainedModel) Release() {
	if m == nil || m.Handle == nil {
		return
	}
	m.eng.Release(m.Handle)
}
