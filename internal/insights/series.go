package insights

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/sells-group/churn-risk/internal/model"
	"github.com/sells-group/churn-risk/internal/risk"
)

// Importance is one bar of the feature-importance chart.
type Importance struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// illustrativeWeights are fixed display weights. They are not derived from
// the trained model.
var illustrativeWeights = [model.FeatureCount]float64{
	model.FeatTenure:          0.25,
	model.FeatMonthlyCharges:  0.18,
	model.FeatTotalCharges:    0.12,
	model.FeatContract:        0.22,
	model.FeatOnlineSecurity:  0.07,
	model.FeatTechSupport:     0.08,
	model.FeatInternetService: 0.05,
	model.FeatTenureYears:     0.03,
}

// FeatureImportance returns the illustrative weights, heaviest first.
func FeatureImportance() []Importance {
	out := make([]Importance, 0, len(model.FeatureNames))
	for i, name := range model.FeatureNames {
		out = append(out, Importance{Feature: name, Weight: illustrativeWeights[i]})
	}
	slices.SortStableFunc(out, func(a, b Importance) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	return out
}

// Point is one bar or slice of a chart series.
type Point struct {
	Label string  `json:"label" yaml:"label"`
	Count int     `json:"count" yaml:"count"`
	Share float64 `json:"share" yaml:"share"`
}

// TierSeries returns the risk distribution of a scored batch in
// High, Medium, Low order.
func TierSeries(br *risk.BatchResult) []Point {
	if br == nil {
		return nil
	}
	b := br.Business
	points := []Point{
		{Label: model.RiskHigh.Label(), Count: b.HighCount},
		{Label: model.RiskMedium.Label(), Count: b.MediumCount},
		{Label: model.RiskLow.Label(), Count: b.LowCount},
	}
	if b.Total > 0 {
		for i := range points {
			points[i].Share = float64(points[i].Count) / float64(b.Total)
		}
	}
	return points
}

// ProbabilityHistogram buckets batch probabilities into bins of equal width
// over [0,1].
func ProbabilityHistogram(br *risk.BatchResult, bins int) []Point {
	if br == nil || bins <= 0 {
		return nil
	}
	points := make([]Point, bins)
	width := 1 / float64(bins)
	for i := range points {
		lo := float64(i) * width
		points[i].Label = formatBin(lo, lo+width)
	}
	for _, p := range br.Predictions {
		i := min(int(p.Probability*float64(bins)), bins-1)
		i = max(i, 0)
		points[i].Count++
	}
	if n := len(br.Predictions); n > 0 {
		for i := range points {
			points[i].Share = float64(points[i].Count) / float64(n)
		}
	}
	return points
}

func formatBin(lo, hi float64) string {
	return fmt.Sprintf("%.0f-%.0f%%", lo*100, hi*100)
}
