package model

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RiskTier is a discretized churn-probability bucket.
type RiskTier string

// Risk tiers.
const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Label returns the display label used in exports (High, Medium, Low).
func (t RiskTier) Label() string {
	return cases.Title(language.English).String(string(t))
}

// PredictionResult is the scored outcome for one customer.
type PredictionResult struct {
	Probability float64         `json:"probability" yaml:"probability"`
	Tier        RiskTier        `json:"risk_tier" yaml:"risk_tier"`
	OutOfRange  bool            `json:"out_of_range,omitempty" yaml:"out_of_range,omitempty"`
	Source      *CustomerRecord `json:"source,omitempty" yaml:"source,omitempty"`
}
