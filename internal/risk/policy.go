// Package risk turns churn probabilities into risk tiers, retention
// strategies and batch business-impact figures.
package risk

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/churn-risk/internal/model"
)

// Policy holds the business assumptions used when scoring. None of them are
// derived from data.
type Policy struct {
	// Tier boundaries: high when p > HighThreshold, medium when
	// MediumThreshold <= p <= HighThreshold, low otherwise.
	HighThreshold   float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`

	LifetimeMonths       float64 `yaml:"lifetime_months" mapstructure:"lifetime_months"`
	RetentionCostMonths  float64 `yaml:"retention_cost_months" mapstructure:"retention_cost_months"`
	RetentionSuccessRate float64 `yaml:"retention_success_rate" mapstructure:"retention_success_rate"`

	// Strategy rule inputs.
	NewCustomerTenure float64 `yaml:"new_customer_tenure" mapstructure:"new_customer_tenure"`
	PremiumCharge     float64 `yaml:"premium_charge" mapstructure:"premium_charge"`

	// DecisionThreshold is the churn cut-off used for confusion matrices.
	DecisionThreshold float64 `yaml:"decision_threshold" mapstructure:"decision_threshold"`
}

// DefaultPolicy returns the stock retention assumptions.
func DefaultPolicy() Policy {
	return Policy{
		HighThreshold:        0.7,
		MediumThreshold:      0.4,
		LifetimeMonths:       24,
		RetentionCostMonths:  2,
		RetentionSuccessRate: 0.7,
		NewCustomerTenure:    12,
		PremiumCharge:        70,
		DecisionThreshold:    0.5,
	}
}

// ValidatePolicy checks that a Policy is internally consistent.
func ValidatePolicy(p Policy) error {
	var errs []string

	if p.MediumThreshold <= 0 || p.MediumThreshold >= 1 {
		errs = append(errs, "medium_threshold must be between 0 and 1")
	}
	if p.HighThreshold <= 0 || p.HighThreshold >= 1 {
		errs = append(errs, "high_threshold must be between 0 and 1")
	}
	if p.HighThreshold < p.MediumThreshold {
		errs = append(errs, fmt.Sprintf("high_threshold (%.2f) must be >= medium_threshold (%.2f)", p.HighThreshold, p.MediumThreshold))
	}
	if p.LifetimeMonths < 0 {
		errs = append(errs, "lifetime_months must be >= 0")
	}
	if p.RetentionCostMonths < 0 {
		errs = append(errs, "retention_cost_months must be >= 0")
	}
	if p.RetentionSuccessRate < 0 || p.RetentionSuccessRate > 1 {
		errs = append(errs, "retention_success_rate must be between 0 and 1")
	}
	if p.NewCustomerTenure < 0 {
		errs = append(errs, "new_customer_tenure must be >= 0")
	}
	if p.PremiumCharge < 0 {
		errs = append(errs, "premium_charge must be >= 0")
	}
	if p.DecisionThreshold <= 0 || p.DecisionThreshold >= 1 {
		errs = append(errs, "decision_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("risk: policy validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tier buckets a probability. The same boundaries apply to single and batch
// scoring.
func (p Policy) Tier(prob float64) model.RiskTier {
	switch {
	case prob > p.HighThreshold:
		return model.RiskHigh
	case prob >= p.MediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
