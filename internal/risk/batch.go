package risk

import (
	"cmp"
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/churn-risk/internal/dataset"
	"github.com/sells-group/churn-risk/internal/evaluate"
	"github.com/sells-group/churn-risk/internal/features"
	"github.com/sells-group/churn-risk/internal/model"
)

// Model is a trained classifier bound to its scaler.
type Model interface {
	Normalize(v model.FeatureVector) model.FeatureVector
	OutOfRange(v model.FeatureVector) bool
	Predict(vectors []model.FeatureVector) ([]float64, error)
}

// BatchOptions controls how a batch is fanned out across the engine.
type BatchOptions struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	ChunkSize   int `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// DefaultBatchOptions returns the stock fan-out settings.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{Concurrency: 4, ChunkSize: 256}
}

// Prediction is a scored customer with its business assessment.
type Prediction struct {
	model.PredictionResult
	Profile    Profile    `json:"profile" yaml:"profile"`
	Assessment Assessment `json:"assessment" yaml:"assessment"`
}

// Business holds the aggregate impact figures for a batch.
type Business struct {
	Total               int     `json:"total" yaml:"total"`
	HighCount           int     `json:"high" yaml:"high"`
	MediumCount         int     `json:"medium" yaml:"medium"`
	LowCount            int     `json:"low" yaml:"low"`
	OutOfRangeCount     int     `json:"out_of_range" yaml:"out_of_range"`
	AvgMonthlyCharge    float64 `json:"avg_monthly_charge" yaml:"avg_monthly_charge"`
	PotentialAnnualLoss float64 `json:"potential_annual_loss" yaml:"potential_annual_loss"`
	ExpectedSavings     float64 `json:"expected_savings" yaml:"expected_savings"`
	RetentionCost       float64 `json:"retention_cost" yaml:"retention_cost"`
	ROI                 float64 `json:"roi" yaml:"roi"`

	// Set only when every record in the batch carries a churn label.
	Confusion            *evaluate.ConfusionMatrix `json:"confusion_matrix,omitempty" yaml:"confusion_matrix,omitempty"`
	CostOfFalsePositives float64                   `json:"cost_of_false_positives,omitempty" yaml:"cost_of_false_positives,omitempty"`
	CostOfFalseNegatives float64                   `json:"cost_of_false_negatives,omitempty" yaml:"cost_of_false_negatives,omitempty"`
}

// BatchResult is a scored batch ranked by descending probability. High,
// Medium and Low are contiguous sub-slices of Predictions.
type BatchResult struct {
	Predictions []model.PredictionResult `json:"predictions" yaml:"predictions"`
	High        []model.PredictionResult `json:"-" yaml:"-"`
	Medium      []model.PredictionResult `json:"-" yaml:"-"`
	Low         []model.PredictionResult `json:"-" yaml:"-"`
	Business    Business                 `json:"business" yaml:"business"`
}

// Scorer applies a Policy to model predictions.
type Scorer struct {
	policy Policy
	opts   BatchOptions
}

// NewScorer creates a Scorer. Zero batch options fall back to defaults.
func NewScorer(policy Policy, opts BatchOptions) *Scorer {
	def := DefaultBatchOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	return &Scorer{policy: policy, opts: opts}
}

// Policy returns the scorer's policy.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// PredictOne scores a single customer.
func (s *Scorer) PredictOne(ctx context.Context, m Model, rec model.CustomerRecord) (*Prediction, error) {
	if m == nil {
		return nil, eris.Wrap(model.ErrNotTrained, "risk: predict")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "risk: predict")
	}

	raw := features.Encode(rec)
	probs, err := m.Predict([]model.FeatureVector{m.Normalize(raw)})
	if err != nil {
		return nil, eris.Wrap(err, "risk: predict")
	}

	prof := ProfileOf(rec)
	a := s.policy.Assess(probs[0], prof)
	src := rec
	return &Prediction{
		PredictionResult: model.PredictionResult{
			Probability: probs[0],
			Tier:        a.Tier,
			OutOfRange:  m.OutOfRange(raw),
			Source:      &src,
		},
		Profile:    prof,
		Assessment: a,
	}, nil
}

// PredictBatch scores every record, ranks the results and computes the
// business summary. Chunks are predicted concurrently; results keep a
// stable order for equal probabilities.
func (s *Scorer) PredictBatch(ctx context.Context, m Model, recs []model.CustomerRecord) (*BatchResult, error) {
	if m == nil {
		return nil, eris.Wrap(model.ErrNotTrained, "risk: batch")
	}
	if len(recs) == 0 {
		return nil, eris.Wrap(model.ErrEmptyDataset, "risk: batch")
	}

	raw := features.EncodeAll(recs)
	probs := make([]float64, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for start := 0; start < len(raw); start += s.opts.ChunkSize {
		end := min(start+s.opts.ChunkSize, len(raw))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunk := make([]model.FeatureVector, end-start)
			for i, v := range raw[start:end] {
				chunk[i] = m.Normalize(v)
			}
			out, err := m.Predict(chunk)
			if err != nil {
				return eris.Wrapf(err, "risk: batch rows %d-%d", start, end-1)
			}
			copy(probs[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "risk: batch")
	}

	results := make([]model.PredictionResult, len(recs))
	for i := range recs {
		results[i] = model.PredictionResult{
			Probability: probs[i],
			Tier:        s.policy.Tier(probs[i]),
			OutOfRange:  m.OutOfRange(raw[i]),
			Source:      &recs[i],
		}
	}

	business := s.business(recs, results, probs)

	slices.SortStableFunc(results, func(a, b model.PredictionResult) int {
		return cmp.Compare(b.Probability, a.Probability)
	})

	br := &BatchResult{Predictions: results, Business: business}
	h, md := business.HighCount, business.MediumCount
	br.High = results[:h]
	br.Medium = results[h : h+md]
	br.Low = results[h+md:]

	zap.L().Info("risk: batch scored",
		zap.Int("total", business.Total),
		zap.Int("high", business.HighCount),
		zap.Int("medium", business.MediumCount),
		zap.Int("low", business.LowCount),
		zap.Int("out_of_range", business.OutOfRangeCount),
	)
	return br, nil
}

// business computes the batch summary from results in input order.
func (s *Scorer) business(recs []model.CustomerRecord, results []model.PredictionResult, probs []float64) Business {
	p := s.policy
	b := Business{Total: len(results)}

	var sum float64
	labelled := true
	for i, r := range results {
		switch r.Tier {
		case model.RiskHigh:
			b.HighCount++
		case model.RiskMedium:
			b.MediumCount++
		default:
			b.LowCount++
		}
		if r.OutOfRange {
			b.OutOfRangeCount++
		}
		sum += features.ParseNumber(recs[i].MonthlyCharges)
		if !recs[i].HasLabel() {
			labelled = false
		}
	}
	b.AvgMonthlyCharge = sum / float64(len(results))

	high := float64(b.HighCount)
	b.PotentialAnnualLoss = high * b.AvgMonthlyCharge * 12
	b.ExpectedSavings = b.PotentialAnnualLoss * p.RetentionSuccessRate
	b.RetentionCost = high * b.AvgMonthlyCharge * p.RetentionCostMonths
	if b.RetentionCost > 0 {
		b.ROI = (b.ExpectedSavings - b.RetentionCost) / b.RetentionCost
	}

	if labelled {
		cm, err := evaluate.Confusion(probs, dataset.Labels(recs), p.DecisionThreshold)
		if err == nil {
			b.Confusion = &cm
			b.CostOfFalsePositives = float64(cm.FalsePositive) * b.AvgMonthlyCharge * p.RetentionCostMonths
			b.CostOfFalseNegatives = float64(cm.FalseNegative) * b.AvgMonthlyCharge * p.LifetimeMonths
		}
	}
	return b
}
