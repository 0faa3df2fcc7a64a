// Package insights produces structured summaries for a rendering layer. It
// returns data only; drawing is left to the caller.
package insights

import (
	"github.com/montanaflynn/stats"

	"github.com/sells-group/churn-risk/internal/dataset"
	"github.com/sells-group/churn-risk/internal/features"
	"github.com/sells-group/churn-risk/internal/model"
)

// Distribution describes one numeric column.
type Distribution struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	P90    float64 `json:"p90" yaml:"p90"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// FieldQuality counts problem values in one required column.
type FieldQuality struct {
	Column      string `json:"column" yaml:"column"`
	Missing     int    `json:"missing" yaml:"missing"`
	Unparseable int    `json:"unparseable,omitempty" yaml:"unparseable,omitempty"`
}

// Summary is the dataset overview.
type Summary struct {
	Rows           int            `json:"rows" yaml:"rows"`
	Labelled       int            `json:"labelled" yaml:"labelled"`
	Churned        int            `json:"churned" yaml:"churned"`
	ChurnRate      float64        `json:"churn_rate" yaml:"churn_rate"`
	Tenure         Distribution   `json:"tenure" yaml:"tenure"`
	MonthlyCharges Distribution   `json:"monthly_charges" yaml:"monthly_charges"`
	ContractMix    map[string]int `json:"contract_mix" yaml:"contract_mix"`
	Quality        []FieldQuality `json:"data_quality" yaml:"data_quality"`
}

// Contract labels used in the contract mix.
var contractLabels = map[int]string{
	model.ContractMonthToMonth: "Month-to-month",
	model.ContractOneYear:      "One year",
	model.ContractTwoYear:      "Two year",
}

var numericColumns = map[string]bool{
	model.ColTenure:         true,
	model.ColMonthlyCharges: true,
	model.ColTotalCharges:   true,
}

// Summarize computes the dataset overview. Only parseable values contribute
// to the distributions; the rest are counted in Quality.
func Summarize(recs []model.CustomerRecord) Summary {
	s := Summary{
		Rows:        len(recs),
		ContractMix: make(map[string]int, len(contractLabels)),
	}

	quality := make([]FieldQuality, len(model.RequiredColumns))
	for i, col := range model.RequiredColumns {
		quality[i].Column = col
	}

	var tenure, monthly []float64
	for _, r := range recs {
		for i, col := range model.RequiredColumns {
			v := r.Field(col)
			switch {
			case v == "":
				quality[i].Missing++
			case numericColumns[col] && !features.Parseable(v):
				quality[i].Unparseable++
			}
		}

		if features.Parseable(r.Tenure) {
			tenure = append(tenure, features.ParseNumber(r.Tenure))
		}
		if features.Parseable(r.MonthlyCharges) {
			monthly = append(monthly, features.ParseNumber(r.MonthlyCharges))
		}
		s.ContractMix[contractLabels[features.ContractCode(r.Contract)]]++

		if r.HasLabel() {
			s.Labelled++
			if dataset.Label(r) == 1 {
				s.Churned++
			}
		}
	}

	if s.Labelled > 0 {
		s.ChurnRate = float64(s.Churned) / float64(s.Labelled)
	}
	s.Tenure = distribution(tenure)
	s.MonthlyCharges = distribution(monthly)
	s.Quality = quality
	return s
}

// distribution ignores stats errors, which only occur for empty input.
func distribution(data []float64) Distribution {
	d := Distribution{Count: len(data)}
	if len(data) == 0 {
		return d
	}
	d.Mean, _ = stats.Mean(data)
	d.Median, _ = stats.Median(data)
	d.StdDev, _ = stats.StandardDeviation(data)
	d.P90, _ = stats.Percentile(data, 90)
	d.Min, _ = stats.Min(data)
	d.Max, _ = stats.Max(data)
	return d
}
