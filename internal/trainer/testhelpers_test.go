package trainer

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/churn-risk/internal/dataset"
	"github.com/sells-group/churn-risk/internal/engine"
	"github.com/sells-group/churn-risk/internal/model"
)

func syntheticRecords(n int) []model.CustomerRecord {
	contracts := []string{"Month-to-month", "One year", "Two year"}
	recs := make([]model.CustomerRecord, n)
	for i := range recs {
		tenure := (i * 7) % 72
		monthly := 20 + float64((i*13)%100)
		contract := contracts[i%3]
		churn := "No"
		if contract == "Month-to-month" && monthly > 60 {
			churn = "Yes"
		}
		recs[i] = model.CustomerRecord{
			Tenure:         strconv.Itoa(tenure),
			MonthlyCharges: strconv.FormatFloat(monthly, 'f', 2, 64),
			TotalCharges:   strconv.FormatFloat(monthly*float64(tenure), 'f', 2, 64),
			Contract:       contract,
			OnlineSecurity: []string{"Yes", "No"}[i%2],
			TechSupport:    []string{"No", "Yes"}[i%2],
			Churn:          churn,
		}
	}
	return recs
}

func buildCorpus(t *testing.T, n int) *dataset.Corpus {
	t.Helper()
	c, err := dataset.Build(syntheticRecords(n), dataset.DefaultTrainFraction)
	require.NoError(t, err)
	return c
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.HiddenUnits = []int{8, 4}
	cfg.Dropout = []float64{0.1}
	cfg.Epochs = 3
	cfg.BatchSize = 16
	cfg.LogEvery = 1
	return cfg
}

// failingEngine delegates to a real engine but fails the configured step.
type failingEngine struct {
	*engine.Dense
	failCreate bool
	failTrain  bool
	released   []string
}

func (f *failingEngine) CreateModel(arch engine.Architecture) (engine.Model, error) {
	if f.failCreate {
		return nil, errors.New("engine rejected architecture")
	}
	return f.Dense.CreateModel(arch)
}

func (f *failingEngine) Train(ctx context.Context, m engine.Model, xs, ys *engine.Tensor, cfg engine.TrainingConfig) (*engine.History, error) {
	if f.failTrain {
		return nil, errors.New("optimizer diverged")
	}
	return f.Dense.Train(ctx, m, xs, ys, cfg)
}

func (f *failingEngine) Release(m engine.Model) {
	f.released = append(f.released, m.ID())
	f.Dense.Release(m)
}
