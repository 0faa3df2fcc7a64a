package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/model"
	"github.com/sells-group/churn-risk/internal/risk"
	"github.com/sells-group/churn-risk/internal/trainer"
)

func syntheticRecords(n int, chargeScale float64) []model.CustomerRecord {
	contracts := []string{"Month-to-month", "One year", "Two year"}
	recs := make([]model.CustomerRecord, n)
	for i := range recs {
		tenure := (i * 7) % 72
		monthly := (20 + float64((i*13)%100)) * chargeScale
		contract := contracts[i%3]
		churn := "No"
		if contract == "Month-to-month" && tenure < 24 {
			churn = "Yes"
		}
		recs[i] = model.CustomerRecord{
			Tenure:         strconv.Itoa(tenure),
			MonthlyCharges: strconv.FormatFloat(monthly, 'f', 2, 64),
			TotalCharges:   strconv.FormatFloat(monthly*float64(tenure), 'f', 2, 64),
			Contract:       contract,
			OnlineSecurity: []string{"Yes", "No"}[i%2],
			Churn:          churn,
		}
	}
	return recs
}

func fastConfig() trainer.Config {
	cfg := trainer.DefaultConfig()
	cfg.HiddenUnits = []int{8, 4}
	cfg.Dropout = []float64{0.1}
	cfg.Epochs = 3
	cfg.BatchSize = 16
	return cfg
}

// flakyEngine fails training on demand.
type flakyEngine struct {
	*engine.Dense
	mu        sync.Mutex
	failTrain bool
}

func (f *flakyEngine) setFail(v bool) {
	f.mu.Lock()
	f.failTrain = v
	f.mu.Unlock()
}

func (f *flakyEngine) Train(ctx context.Context, m engine.Model, xs, ys *engine.Tensor, cfg engine.TrainingConfig) (*engine.History, error) {
	f.mu.Lock()
	fail := f.failTrain
	f.mu.Unlock()
	if fail {
		return nil, errors.New("optimizer diverged")
	}
	return f.Dense.Train(ctx, m, xs, ys, cfg)
}

func newSession(t *testing.T) (*Session, *flakyEngine) {
	t.Helper()
	eng := &flakyEngine{Dense: engine.NewDense(7)}
	s, err := New(eng, fastConfig(), risk.DefaultPolicy(), Options{})
	require.NoError(t, err)
	return s, eng
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, fastConfig(), risk.DefaultPolicy(), Options{})
	assert.Error(t, err)

	bad := risk.DefaultPolicy()
	bad.HighThreshold = 2
	_, err = New(engine.NewDense(1), fastConfig(), bad, Options{})
	assert.Error(t, err)

	cfg := fastConfig()
	cfg.HiddenUnits = nil
	_, err = New(engine.NewDense(1), cfg, risk.DefaultPolicy(), Options{})
	assert.Error(t, err)

	s, err := New(engine.NewDense(1), fastConfig(), risk.DefaultPolicy(), Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
}

func TestSession_GatedBeforeTraining(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	_, err := s.Train(ctx, nil)
	assert.True(t, model.IsEmptyDataset(err))

	_, err = s.Load(nil)
	assert.True(t, model.IsEmptyDataset(err))

	_, err = s.Load(syntheticRecords(20, 1))
	require.NoError(t, err)

	_, err = s.PredictOne(ctx, model.CustomerRecord{Tenure: "3"})
	assert.True(t, model.IsNotTrained(err))
	_, err = s.PredictBatch(ctx, []model.CustomerRecord{{Tenure: "3"}})
	assert.True(t, model.IsNotTrained(err))
	_, err = s.Evaluate(ctx)
	assert.True(t, model.IsNotTrained(err))
	_, err = s.Model()
	assert.True(t, model.IsNotTrained(err))
	assert.False(t, s.Trained())
	assert.Nil(t, s.LastEvaluation())
}

func TestSession_TrainEvaluatePredict(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	c, err := s.Load(syntheticRecords(60, 1))
	require.NoError(t, err)
	assert.Equal(t, 48, c.Dataset.Train.Len())

	var epochs int
	tm, err := s.Train(ctx, func(engine.EpochMetrics) { epochs++ })
	require.NoError(t, err)
	assert.Equal(t, 3, epochs)
	assert.True(t, s.Trained())

	info, err := s.Model()
	require.NoError(t, err)
	assert.Equal(t, tm.ID, info.ID)
	assert.Equal(t, info.ScalerFingerprint, info.CorpusFingerprint)
	assert.False(t, info.Stale)

	r, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, r.Samples)
	assert.Equal(t, 12, r.Matrix.Total())
	assert.Same(t, r, s.LastEvaluation())

	pred, err := s.PredictOne(ctx, model.CustomerRecord{Tenure: "3", MonthlyCharges: "90", Contract: "Month-to-month"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.Probability, 0.0)
	assert.LessOrEqual(t, pred.Probability, 1.0)
	assert.Equal(t, s.Policy().Tier(pred.Probability), pred.Tier)
	assert.False(t, pred.OutOfRange)

	pred, err = s.PredictOne(ctx, model.CustomerRecord{Tenure: "500"})
	require.NoError(t, err)
	assert.True(t, pred.OutOfRange)

	br, err := s.PredictBatch(ctx, c.Records)
	require.NoError(t, err)
	require.Len(t, br.Predictions, 60)
	for i := 1; i < len(br.Predictions); i++ {
		assert.GreaterOrEqual(t, br.Predictions[i-1].Probability, br.Predictions[i].Probability)
	}
	assert.Equal(t, 60, br.Business.HighCount+br.Business.MediumCount+br.Business.LowCount)
	assert.NotNil(t, br.Business.Confusion)
}

func TestSession_FailedTrainingKeepsModel(t *testing.T) {
	s, eng := newSession(t)
	ctx := context.Background()

	_, err := s.Load(syntheticRecords(40, 1))
	require.NoError(t, err)
	first, err := s.Train(ctx, nil)
	require.NoError(t, err)
	live := eng.Live()

	eng.setFail(true)
	_, err = s.Train(ctx, nil)
	require.Error(t, err)
	assert.True(t, model.IsTrainingFailure(err))
	assert.Equal(t, live, eng.Live())

	info, err := s.Model()
	require.NoError(t, err)
	assert.Equal(t, first.ID, info.ID)

	_, err = s.PredictOne(ctx, model.CustomerRecord{Tenure: "10"})
	assert.NoError(t, err)
}

func TestSession_StaleScaler(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	_, err := s.Load(syntheticRecords(40, 1))
	require.NoError(t, err)
	tm, err := s.Train(ctx, nil)
	require.NoError(t, err)

	// Same data, same scaler.
	_, err = s.Load(syntheticRecords(40, 1))
	require.NoError(t, err)
	assert.False(t, s.ModelStale())

	_, err = s.Load(syntheticRecords(40, 3))
	require.NoError(t, err)
	assert.True(t, s.ModelStale())

	info, err := s.Model()
	require.NoError(t, err)
	assert.True(t, info.Stale)
	assert.Equal(t, tm.ScalerFingerprint, info.ScalerFingerprint)
	assert.NotEqual(t, info.ScalerFingerprint, info.CorpusFingerprint)

	// The model keeps scoring with its own scaler and flags the drift.
	br, err := s.PredictBatch(ctx, s.Corpus().Records)
	require.NoError(t, err)
	assert.Positive(t, br.Business.OutOfRangeCount)

	r, err := s.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Samples)

	_, err = s.Train(ctx, nil)
	require.NoError(t, err)
	assert.False(t, s.ModelStale())
}

func TestSession_ConcurrentPredictWhileTraining(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	c, err := s.Load(syntheticRecords(40, 1))
	require.NoError(t, err)
	_, err = s.Train(ctx, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.PredictBatch(ctx, c.Records); err != nil {
				errs <- err
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.Train(ctx, nil); err != nil {
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSession_Close(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	_, err := s.Load(syntheticRecords(40, 1))
	require.NoError(t, err)
	_, err = s.Train(ctx, nil)
	require.NoError(t, err)

	s.Close()
	assert.False(t, s.Trained())
	_, err = s.PredictOne(ctx, model.CustomerRecord{})
	assert.True(t, model.IsNotTrained(err))
}
