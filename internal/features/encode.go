// Package features turns customer records into normalized model inputs.
package features

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/churn-risk/internal/model"
)

// Encode maps one customer record to its feature vector. It never fails:
// unparseable or absent values fall back to 0.
func Encode(rec model.CustomerRecord) model.FeatureVector {
	var v model.FeatureVector

	tenure := parseNumber(rec.Tenure)
	v[model.FeatTenure] = tenure
	v[model.FeatMonthlyCharges] = parseNumber(rec.MonthlyCharges)
	v[model.FeatTotalCharges] = parseNumber(rec.TotalCharges)
	v[model.FeatContract] = float64(ContractCode(rec.Contract))
	v[model.FeatOnlineSecurity] = flag(rec.OnlineSecurity)
	v[model.FeatTechSupport] = flag(rec.TechSupport)
	v[model.FeatInternetService] = flag(rec.InternetService)
	v[model.FeatTenureYears] = tenure / 12

	return v
}

// EncodeAll encodes every record in order.
func EncodeAll(recs []model.CustomerRecord) []model.FeatureVector {
	out := make([]model.FeatureVector, len(recs))
	for i, r := range recs {
		out[i] = Encode(r)
	}
	return out
}

// ContractCode encodes a contract term. Checks run in order so "month" wins
// over "one" and "two".
func ContractCode(s string) int {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "month"):
		return model.ContractMonthToMonth
	case strings.Contains(s, "one"):
		return model.ContractOneYear
	case strings.Contains(s, "two"):
		return model.ContractTwoYear
	}
	return model.ContractMonthToMonth
}

// ParseNumber parses a real number, returning 0 for blank, malformed or
// non-finite input.
func ParseNumber(s string) float64 {
	return parseNumber(s)
}

// Parseable reports whether s holds a finite number.
func Parseable(s string) bool {
	_, ok := tryParse(s)
	return ok
}

func parseNumber(s string) float64 {
	f, _ := tryParse(s)
	return f
}

func tryParse(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func flag(s string) float64 {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "yes") || s == "1" {
		return 1
	}
	return 0
}
