package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/evaluate"
	"github.com/sells-group/churn-risk/internal/ingest"
	"github.com/sells-group/churn-risk/internal/session"
)

// pipelineEnv holds a trained session and its evaluation, needed by the
// train/predict/batch/serve commands.
type pipelineEnv struct {
	Session    *session.Session
	Evaluation *evaluate.Report
}

// Close releases the trained model.
func (pe *pipelineEnv) Close() {
	if pe.Session != nil {
		pe.Session.Close()
	}
}

// newSession builds an empty session from the loaded config.
func newSession() (*session.Session, error) {
	return session.New(engine.NewDense(cfg.Model.Seed), cfg.Model, cfg.Policy, session.Options{
		TrainFraction: cfg.Split.TrainFraction,
		Batch:         cfg.Batch,
	})
}

// initPipeline loads the training data, trains a model and evaluates it on
// the held-out split. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode, dataPath string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	if dataPath == "" {
		return nil, eris.New("--data is required")
	}

	recs, err := ingest.ReadFile(ctx, dataPath)
	if err != nil {
		return nil, err
	}

	sess, err := newSession()
	if err != nil {
		return nil, err
	}
	if _, err := sess.Load(recs); err != nil {
		return nil, err
	}

	if _, err := sess.Train(ctx, nil); err != nil {
		return nil, err
	}

	env := &pipelineEnv{Session: sess}

	rep, err := sess.Evaluate(ctx)
	if err != nil {
		// A corpus too small for a test split still yields a usable model.
		zap.L().Warn("pipeline: evaluation skipped", zap.Error(err))
		return env, nil
	}
	env.Evaluation = rep
	return env, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
