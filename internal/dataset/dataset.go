// Package dataset builds labelled, normalized training corpora and splits
// them into train and test subsets.
package dataset

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/churn-risk/internal/features"
	"github.com/sells-group/churn-risk/internal/model"
)

// DefaultTrainFraction is the share of rows placed in the train split.
const DefaultTrainFraction = 0.8

// Split is one side of a Dataset.
type Split struct {
	Features []model.FeatureVector `json:"features"`
	Labels   []float64             `json:"labels"`
}

// Len returns the number of rows in the split.
func (s Split) Len() int {
	return len(s.Features)
}

// Dataset is a deterministic prefix/suffix split of a normalized corpus.
type Dataset struct {
	Train      Split `json:"train"`
	Test       Split `json:"test"`
	SplitIndex int   `json:"split_index"`
}

// Corpus is the encoded, normalized form of an ingested record set.
type Corpus struct {
	Records    []model.CustomerRecord
	Raw        []model.FeatureVector
	Normalized []model.FeatureVector
	Labels     []float64
	Scaler     features.ScalerState
	Dataset    *Dataset
}

// Label returns 1 when the record's Churn value is "Yes" or "1", else 0.
func Label(rec model.CustomerRecord) float64 {
	v := strings.TrimSpace(rec.Churn)
	if strings.EqualFold(v, "yes") || v == "1" {
		return 1
	}
	return 0
}

// Labels derives the label of every record in order.
func Labels(recs []model.CustomerRecord) []float64 {
	out := make([]float64, len(recs))
	for i, r := range recs {
		out[i] = Label(r)
	}
	return out
}

// Build encodes recs, fits a scaler over the whole corpus, normalizes every
// vector against it and splits the result. Row order is preserved.
func Build(recs []model.CustomerRecord, trainFraction float64) (*Corpus, error) {
	if len(recs) == 0 {
		return nil, eris.Wrap(model.ErrEmptyDataset, "dataset: build")
	}

	raw := features.EncodeAll(recs)
	scaler := features.Fit(raw)
	norm := scaler.ApplyAll(raw)
	labels := Labels(recs)

	ds, err := SplitRows(norm, labels, trainFraction)
	if err != nil {
		return nil, err
	}

	return &Corpus{
		Records:    recs,
		Raw:        raw,
		Normalized: norm,
		Labels:     labels,
		Scaler:     scaler,
		Dataset:    ds,
	}, nil
}

// SplitRows places rows [0, floor(fraction*N)) in train and the rest in test.
// A fraction outside (0,1) falls back to DefaultTrainFraction.
func SplitRows(vectors []model.FeatureVector, labels []float64, trainFraction float64) (*Dataset, error) {
	n := len(vectors)
	if n == 0 {
		return nil, eris.Wrap(model.ErrEmptyDataset, "dataset: split")
	}
	if len(labels) != n {
		return nil, eris.Errorf("dataset: split: %d feature rows but %d labels", n, len(labels))
	}
	if trainFraction <= 0 || trainFraction >= 1 {
		trainFraction = DefaultTrainFraction
	}

	idx := int(math.Floor(trainFraction * float64(n)))

	return &Dataset{
		Train: Split{
			Features: append([]model.FeatureVector(nil), vectors[:idx]...),
			Labels:   append([]float64(nil), labels[:idx]...),
		},
		Test: Split{
			Features: append([]model.FeatureVector(nil), vectors[idx:]...),
			Labels:   append([]float64(nil), labels[idx:]...),
		},
		SplitIndex: idx,
	}, nil
}
