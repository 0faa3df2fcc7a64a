// Package evaluate scores a trained model against held-out labelled data.
package evaluate

import (
	"github.com/rotisserie/eris"
)

// DefaultThreshold is the probability at or above which churn is predicted.
const DefaultThreshold = 0.5

// ConfusionMatrix counts predicted against actual outcomes.
type ConfusionMatrix struct {
	TruePositive  int `json:"true_positive" yaml:"true_positive"`
	TrueNegative  int `json:"true_negative" yaml:"true_negative"`
	FalsePositive int `json:"false_positive" yaml:"false_positive"`
	FalseNegative int `json:"false_negative" yaml:"false_negative"`
}

// Metrics are the rates derived from a confusion matrix.
type Metrics struct {
	Accuracy    float64 `json:"accuracy" yaml:"accuracy"`
	Precision   float64 `json:"precision" yaml:"precision"`
	Recall      float64 `json:"recall" yaml:"recall"`
	Specificity float64 `json:"specificity" yaml:"specificity"`
	F1          float64 `json:"f1" yaml:"f1"`
}

// Confusion builds a matrix by thresholding each probability against its
// label. A threshold outside (0,1) falls back to DefaultThreshold.
func Confusion(probs, labels []float64, threshold float64) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(probs) != len(labels) {
		return cm, eris.Errorf("evaluate: %d predictions but %d labels", len(probs), len(labels))
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}

	for i, p := range probs {
		predicted := p >= threshold
		actual := labels[i] >= 0.5
		switch {
		case predicted && actual:
			cm.TruePositive++
		case predicted && !actual:
			cm.FalsePositive++
		case !predicted && actual:
			cm.FalseNegative++
		default:
			cm.TrueNegative++
		}
	}
	return cm, nil
}

// Total returns the number of counted samples.
func (c ConfusionMatrix) Total() int {
	return c.TruePositive + c.TrueNegative + c.FalsePositive + c.FalseNegative
}

// Precision is tp / (tp + fp), 0 when nothing was predicted positive.
func (c ConfusionMatrix) Precision() float64 {
	return ratio(c.TruePositive, c.TruePositive+c.FalsePositive)
}

// Recall is tp / (tp + fn), 0 when there are no actual positives.
func (c ConfusionMatrix) Recall() float64 {
	return ratio(c.TruePositive, c.TruePositive+c.FalseNegative)
}

// Specificity is tn / (tn + fp), 0 when there are no actual negatives.
func (c ConfusionMatrix) Specificity() float64 {
	return ratio(c.TrueNegative, c.TrueNegative+c.FalsePositive)
}

// Accuracy is (tp + tn) / total.
func (c ConfusionMatrix) Accuracy() float64 {
	return ratio(c.TruePositive+c.TrueNegative, c.Total())
}

// F1 is the harmonic mean of precision and recall.
func (c ConfusionMatrix) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Metrics returns every derived rate.
func (c ConfusionMatrix) Metrics() Metrics {
	return Metrics{
		Accuracy:    c.Accuracy(),
		Precision:   c.Precision(),
		Recall:      c.Recall(),
		Specificity: c.Specificity(),
		F1:          c.F1(),
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
