package trainer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/churn-risk/internal/dataset"
	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/features"
	"github.com/sells-group/churn-risk/internal/model"
)

// ProgressFunc receives every epoch reading while a model trains.
type ProgressFunc func(engine.EpochMetrics)

// Trainer fits churn classifiers on a learning engine.
type Trainer struct {
	eng engine.Engine
	cfg Config
}

// New creates a Trainer for the given engine and config.
func New(eng engine.Engine, cfg Config) *Trainer {
	return &Trainer{eng: eng, cfg: cfg}
}

// Config returns the trainer's configuration.
func (t *Trainer) Config() Config {
	return t.cfg
}

// Train fits a new model on ds.Train. The scaler that normalized ds is bound
// to the returned model. On failure the partially built handle is released
// and nothing is returned, so callers keep whatever model they held before.
func (t *Trainer) Train(ctx context.Context, ds *dataset.Dataset, scaler features.ScalerState, progress ProgressFunc) (*TrainedModel, error) {
	if ds == nil || ds.Train.Len() == 0 {
		return nil, eris.Wrap(model.ErrEmptyDataset, "trainer: no training rows")
	}
	if err := ValidateConfig(t.cfg); err != nil {
		return nil, model.NewTrainingError("configure", err)
	}

	handle, err := t.eng.CreateModel(t.cfg.Architecture())
	if err != nil {
		return nil, model.NewTrainingError("create model", err)
	}

	xs, ys, err := tensors(t.eng, ds.Train.Features, ds.Train.Labels)
	if err != nil {
		t.eng.Release(handle)
		return nil, model.NewTrainingError("load tensors", err)
	}
	defer t.eng.Dispose(xs, ys)

	log := zap.L().With(zap.String("model_id", handle.ID()))
	log.Info("trainer: training started",
		zap.Int("train_rows", ds.Train.Len()),
		zap.Int("epochs", t.cfg.Epochs),
		zap.Int("batch_size", t.cfg.BatchSize),
		zap.Ints("hidden_units", t.cfg.HiddenUnits),
	)

	every := t.cfg.LogEvery
	if every <= 0 {
		every = 10
	}
	throttle := rate.Sometimes{First: 1, Every: every}

	fit := t.cfg.TrainingConfig()
	fit.OnEpochEnd = func(em engine.EpochMetrics) error {
		if progress != nil {
			progress(em)
		}
		logEpoch := func() {
			log.Info("trainer: epoch",
				zap.Int("epoch", em.Epoch),
				zap.Float64("loss", em.Loss),
				zap.Float64("accuracy", em.Accuracy),
				zap.Float64("val_loss", em.ValLoss),
				zap.Float64("val_accuracy", em.ValAccuracy),
			)
		}
		if em.Epoch == t.cfg.Epochs {
			logEpoch()
		} else {
			throttle.Do(logEpoch)
		}
		return nil
	}

	started := time.Now()
	hist, err := t.eng.Train(ctx, handle, xs, ys, fit)
	if err != nil {
		t.eng.Release(handle)
		log.Error("trainer: training failed", zap.Error(err))
		return nil, model.NewTrainingError("fit", err)
	}

	tm := &TrainedModel{
		ID:                handle.ID(),
		Handle:            handle,
		Scaler:            scaler,
		ScalerFingerprint: scaler.Fingerprint(),
		History:           hist,
		TrainRows:         ds.Train.Len(),
		TrainedAt:         time.Now().UTC(),
		eng:               t.eng,
	}

	log.Info("trainer: training complete",
		zap.Duration("elapsed", time.Since(started)),
		zap.Float64("final_loss", hist.Last().Loss),
		zap.Float64("final_accuracy", hist.Last().Accuracy),
	)
	return tm, nil
}

func tensors(eng engine.Engine, vectors []model.FeatureVector, labels []float64) (*engine.Tensor, *engine.Tensor, error) {
	xs, err := vectorTensor(eng, vectors)
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]float64, len(labels))
	for i, l := range labels {
		rows[i] = []float64{l}
	}
	ys, err := eng.Tensor(rows)
	if err != nil {
		eng.Dispose(xs)
		return nil, nil, err
	}
	return xs, ys, nil
}

func vectorTensor(eng engine.Engine, vectors []model.FeatureVector) (*engine.Tensor, error) {
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v.Slice()
	}
	return eng.Tensor(rows)
}
