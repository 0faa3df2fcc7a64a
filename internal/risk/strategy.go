package risk

import (
	"github.com/sells-group/churn-risk/internal/features"
	"github.com/sells-group/churn-risk/internal/model"
)

// Profile is the subset of a customer the strategy rules look at.
type Profile struct {
	Tenure         float64 `json:"tenure" yaml:"tenure"`
	MonthlyCharges float64 `json:"monthly_charges" yaml:"monthly_charges"`
	Contract       int     `json:"contract" yaml:"contract"`
}

// ProfileOf extracts a Profile from a raw record using the encoder's parsing
// rules, so unparseable values read as 0.
func ProfileOf(rec model.CustomerRecord) Profile {
	return Profile{
		Tenure:         features.ParseNumber(rec.Tenure),
		MonthlyCharges: features.ParseNumber(rec.MonthlyCharges),
		Contract:       features.ContractCode(rec.Contract),
	}
}

// Strategy is one recommended retention action.
type Strategy struct {
	Code   string `json:"code" yaml:"code"`
	Action string `json:"action" yaml:"action"`
}

// Strategy codes.
const (
	StrategyNewCustomerBonus    = "new_customer_bonus"
	StrategyContractUpgrade     = "contract_upgrade_incentive"
	StrategyServiceOptimization = "service_optimization"
	StrategyPersonalOutreach    = "personal_outreach"
	StrategyEngagement          = "engagement_campaign"
	StrategyFreeTrial           = "add_on_trial"
	StrategyLoyaltyRewards      = "loyalty_rewards"
	StrategyUpsell              = "premium_upsell"
)

var strategyActions = map[string]string{
	StrategyNewCustomerBonus:    "Offer a new customer bonus credit on the next bill",
	StrategyContractUpgrade:     "Offer a discount for moving to a one or two year contract",
	StrategyServiceOptimization: "Review plan fit and offer a right-sized bundle",
	StrategyPersonalOutreach:    "Schedule a call from the retention team",
	StrategyEngagement:          "Enroll in an engagement campaign with usage tips and a satisfaction check-in",
	StrategyFreeTrial:           "Offer a free trial of online security or tech support",
	StrategyLoyaltyRewards:      "Enroll in the loyalty rewards program",
	StrategyUpsell:              "Present premium service upgrades",
}

func strategy(code string) Strategy {
	return Strategy{Code: code, Action: strategyActions[code]}
}

// Strategies returns the retention actions for a tier and profile. The result
// depends only on its inputs.
func (p Policy) Strategies(tier model.RiskTier, prof Profile) []Strategy {
	switch tier {
	case model.RiskHigh:
		var out []Strategy
		if prof.Tenure < p.NewCustomerTenure {
			out = append(out, strategy(StrategyNewCustomerBonus))
		}
		if prof.Contract == model.ContractMonthToMonth {
			out = append(out, strategy(StrategyContractUpgrade))
		}
		if prof.MonthlyCharges > p.PremiumCharge {
			out = append(out, strategy(StrategyServiceOptimization))
		}
		if len(out) == 0 {
			out = append(out, strategy(StrategyPersonalOutreach))
		}
		return out
	case model.RiskMedium:
		return []Strategy{strategy(StrategyEngagement), strategy(StrategyFreeTrial)}
	default:
		return []Strategy{strategy(StrategyLoyaltyRewards), strategy(StrategyUpsell)}
	}
}

// Assessment is the business view of one prediction.
type Assessment struct {
	Tier          model.RiskTier `json:"risk_tier" yaml:"risk_tier"`
	LifetimeValue float64        `json:"lifetime_value" yaml:"lifetime_value"`
	RetentionCost float64        `json:"retention_cost" yaml:"retention_cost"`
	NetValue      float64        `json:"net_value" yaml:"net_value"`
	Strategies    []Strategy     `json:"strategies" yaml:"strategies"`
}

// Assess values a customer with churn probability prob.
func (p Policy) Assess(prob float64, prof Profile) Assessment {
	tier := p.Tier(prob)
	ltv := prof.MonthlyCharges * p.LifetimeMonths
	cost := prof.MonthlyCharges * p.RetentionCostMonths
	return Assessment{
		Tier:          tier,
		LifetimeValue: ltv,
		RetentionCost: cost,
		NetValue:      ltv - cost,
		Strategies:    p.Strategies(tier, prof),
	}
}
