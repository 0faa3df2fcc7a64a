// Package session owns the mutable state of one scoring pipeline: the loaded
// corpus, its scaler and the trained model. Prediction entry points are gated
// on a model being installed.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/dataset"
	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/evaluate"
	"github.com/sells-group/churn-risk/internal/model"
	"github.com/sells-group/churn-risk/internal/risk"
	"github.com/sells-group/churn-risk/internal/trainer"
)

// Options tunes a Session beyond the trainer config and policy.
type Options struct {
	TrainFraction float64
	Batch         risk.BatchOptions
}

// ModelInfo describes the installed model.
type ModelInfo struct {
	ID                string          `json:"id" yaml:"id"`
	TrainedAt         time.Time       `json:"trained_at" yaml:"trained_at"`
	TrainRows         int             `json:"train_rows" yaml:"train_rows"`
	ScalerFingerprint string          `json:"scaler_fingerprint" yaml:"scaler_fingerprint"`
	CorpusFingerprint string          `json:"corpus_fingerprint,omitempty" yaml:"corpus_fingerprint,omitempty"`
	Stale             bool            `json:"stale" yaml:"stale"`
	History           *engine.History `json:"history,omitempty" yaml:"history,omitempty"`
}

// Session is safe for concurrent use. Corpus and model are replaced
// wholesale, never edited in place.
type Session struct {
	ID        string
	CreatedAt time.Time

	trainer       *trainer.Trainer
	scorer        *risk.Scorer
	trainFraction float64
	log           *zap.Logger

	trainMu sync.Mutex // serializes Train

	mu         sync.RWMutex
	corpus     *dataset.Corpus
	model      *trainer.TrainedModel
	stale      bool
	evaluation *evaluate.Report
}

// New creates an empty Session. The trainer config and policy are validated
// up front.
func New(eng engine.Engine, cfg trainer.Config, policy risk.Policy, opts Options) (*Session, error) {
	if eng == nil {
		return nil, eris.New("session: engine is required")
	}
	if err := trainer.ValidateConfig(cfg); err != nil {
		return nil, eris.Wrap(err, "session: trainer config")
	}
	if err := risk.ValidatePolicy(policy); err != nil {
		return nil, eris.Wrap(err, "session: policy")
	}

	id := uuid.New().String()
	return &Session{
		ID:            id,
		CreatedAt:     time.Now().UTC(),
		trainer:       trainer.New(eng, cfg),
		scorer:        risk.NewScorer(policy, opts.Batch),
		trainFraction: opts.TrainFraction,
		log:           zap.L().With(zap.String("session_id", id)),
	}, nil
}

// Policy returns the scoring policy.
func (s *Session) Policy() risk.Policy {
	return s.scorer.Policy()
}

// Load replaces the corpus: records are encoded, a new scaler is fitted and
// the normalized rows are split. An installed model keeps its own scaler and
// is marked stale when the new scaler differs.
func (s *Session) Load(recs []model.CustomerRecord) (*dataset.Corpus, error) {
	c, err := dataset.Build(recs, s.trainFraction)
	if err != nil {
		return nil, eris.Wrap(err, "session: load")
	}

	s.mu.Lock()
	s.corpus = c
	if s.model != nil && s.model.ScalerFingerprint != c.Scaler.Fingerprint() {
		s.stale = true
		s.log.Warn("session: corpus scaler differs from model scaler",
			zap.String("model_id", s.model.ID),
			zap.String("model_scaler", s.model.ScalerFingerprint),
			zap.String("corpus_scaler", c.Scaler.Fingerprint()),
		)
	}
	s.mu.Unlock()

	s.log.Info("session: corpus loaded",
		zap.Int("rows", len(c.Records)),
		zap.Int("train", c.Dataset.Train.Len()),
		zap.Int("test", c.Dataset.Test.Len()),
	)
	return c, nil
}

// Corpus returns the loaded corpus, or nil.
func (s *Session) Corpus() *dataset.Corpus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corpus
}

// Train fits a model on the current corpus and installs it. On failure the
// previously installed model, if any, stays in place.
func (s *Session) Train(ctx context.Context, progress trainer.ProgressFunc) (*trainer.TrainedModel, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	c := s.Corpus()
	if c == nil {
		return nil, eris.Wrap(model.ErrEmptyDataset, "session: train: no corpus loaded")
	}

	tm, err := s.trainer.Train(ctx, c.Dataset, c.Scaler, progress)
	if err != nil {
		return nil, eris.Wrap(err, "session: train")
	}

	// The replaced model is not released: in-flight predictions may hold it.
	s.mu.Lock()
	prev := s.model
	s.model = tm
	s.stale = s.corpus != c && s.corpus.Scaler.Fingerprint() != tm.ScalerFingerprint
	s.evaluation = nil
	s.mu.Unlock()

	fields := []zap.Field{zap.String("model_id", tm.ID)}
	if prev != nil {
		fields = append(fields, zap.String("replaced", prev.ID))
	}
	s.log.Info("session: model installed", fields...)
	return tm, nil
}

// Evaluate scores the installed model on the held-out rows of the current
// corpus. Rows are normalized with the model's bound scaler.
func (s *Session) Evaluate(ctx context.Context) (*evaluate.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "session: evaluate")
	}

	s.mu.RLock()
	tm, c := s.model, s.corpus
	s.mu.RUnlock()

	if tm == nil {
		return nil, eris.Wrap(model.ErrNotTrained, "session: evaluate")
	}
	if c == nil {
		return nil, eris.Wrap(model.ErrEmptyDataset, "session: evaluate: no corpus loaded")
	}

	split := heldOut(c, tm)
	r, err := evaluate.Evaluate(tm, split, s.Policy().DecisionThreshold)
	if err != nil {
		return nil, eris.Wrap(err, "session: evaluate")
	}

	s.mu.Lock()
	if s.model == tm {
		s.evaluation = r
	}
	s.mu.Unlock()
	return r, nil
}

// LastEvaluation returns the latest evaluation of the installed model, or nil.
func (s *Session) LastEvaluation() *evaluate.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluation
}

// PredictOne scores a single record with the installed model.
func (s *Session) PredictOne(ctx context.Context, rec model.CustomerRecord) (*risk.Prediction, error) {
	tm, err := s.installed("session: predict")
	if err != nil {
		return nil, err
	}
	return s.scorer.PredictOne(ctx, tm, rec)
}

// PredictBatch scores and ranks records with the installed model.
func (s *Session) PredictBatch(ctx context.Context, recs []model.CustomerRecord) (*risk.BatchResult, error) {
	tm, err := s.installed("session: batch")
	if err != nil {
		return nil, err
	}
	return s.scorer.PredictBatch(ctx, tm, recs)
}

// Model describes the installed model.
func (s *Session) Model() (ModelInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.model == nil {
		return ModelInfo{}, eris.Wrap(model.ErrNotTrained, "session: model")
	}
	info := ModelInfo{
		ID:                s.model.ID,
		TrainedAt:         s.model.TrainedAt,
		TrainRows:         s.model.TrainRows,
		ScalerFingerprint: s.model.ScalerFingerprint,
		Stale:             s.stale,
		History:           s.model.History,
	}
	if s.corpus != nil {
		info.CorpusFingerprint = s.corpus.Scaler.Fingerprint()
	}
	return info, nil
}

// ModelStale reports whether the corpus was reloaded with a different scaler
// after the installed model was trained.
func (s *Session) ModelStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Trained reports whether a model is installed.
func (s *Session) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Close releases the installed model. The session cannot predict afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	tm := s.model
	s.model = nil
	s.evaluation = nil
	s.mu.Unlock()
	tm.Release()
}

func (s *Session) installed(op string) (*trainer.TrainedModel, error) {
	s.mu.RLock()
	tm := s.model
	s.mu.RUnlock()
	if tm == nil {
		return nil, eris.Wrap(model.ErrNotTrained, op)
	}
	return tm, nil
}

// heldOut rebuilds the test split from raw vectors under the model's scaler.
func heldOut(c *dataset.Corpus, tm *trainer.TrainedModel) dataset.Split {
	idx := c.Dataset.SplitIndex
	raw := c.Raw[idx:]
	split := dataset.Split{
		Features: make([]model.FeatureVector, len(raw)),
		Labels:   append([]float64(nil), c.Labels[idx:]...),
	}
	for i, v := range raw {
		split.Features[i] = tm.Normalize(v)
	}
	return split
}
