package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordFromRow(t *testing.T) {
	rec := RecordFromRow(map[string]string{
		"tenure":          " 12 ",
		"MonthlyCharges":  "70.35",
		"TotalCharges":    "844.2",
		"Contract":        "Month-to-month",
		"OnlineSecurity":  "No",
		"TechSupport":     "Yes",
		"InternetService": "Fiber optic",
		"Churn":           "Yes",
		"customerID":      "7590-VHVEG",
	})

	assert.Equal(t, "12", rec.Tenure)
	assert.Equal(t, "70.35", rec.MonthlyCharges)
	assert.Equal(t, "Month-to-month", rec.Contract)
	assert.Equal(t, "Yes", rec.TechSupport)
	assert.Equal(t, map[string]string{"customerID": "7590-VHVEG"}, rec.Extra)
	assert.True(t, rec.HasLabel())
}

func TestRecordFromRow_CaseInsensitiveColumns(t *testing.T) {
	rec := RecordFromRow(map[string]string{
		"Tenure":         "5",
		"monthlycharges": "20",
		"gender":         "Female",
	})

	assert.Equal(t, "5", rec.Tenure)
	assert.Equal(t, "20", rec.MonthlyCharges)
	assert.Equal(t, []string{"gender"}, rec.ExtraColumns())
	assert.False(t, rec.HasLabel())
}

func TestCustomerRecord_Field(t *testing.T) {
	rec := CustomerRecord{Contract: "Two year", Extra: map[string]string{"gender": "Male"}}
	assert.Equal(t, "Two year", rec.Field(ColContract))
	assert.Equal(t, "Male", rec.Field("gender"))
	assert.Empty(t, rec.Field("missing"))
}

func TestRiskTier_Label(t *testing.T) {
	assert.Equal(t, "High", RiskHigh.Label())
	assert.Equal(t, "Medium", RiskMedium.Label())
	assert.Equal(t, "Low", RiskLow.Label())
	assert.Empty(t, RiskTier("").Label())
}
