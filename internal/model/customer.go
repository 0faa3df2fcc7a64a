// Package model defines the core data types shared by the churn scoring pipeline.
package model

import (
	"sort"
	"strings"
)

// Raw column names consumed by the scorer.
const (
	ColTenure          = "tenure"
	ColMonthlyCharges  = "MonthlyCharges"
	ColTotalCharges    = "TotalCharges"
	ColContract        = "Contract"
	ColOnlineSecurity  = "OnlineSecurity"
	ColTechSupport     = "TechSupport"
	ColInternetService = "InternetService"
	ColChurn           = "Churn"
)

// RequiredColumns lists the columns churn scoring reads, in input order.
var RequiredColumns = []string{
	ColTenure,
	ColMonthlyCharges,
	ColTotalCharges,
	ColContract,
	ColOnlineSecurity,
	ColTechSupport,
	ColInternetService,
	ColChurn,
}

// CustomerRecord is one ingested customer row. An empty field means the
// column was absent or blank. Columns not used for scoring are kept in Extra
// for display passthrough.
type CustomerRecord struct {
	Tenure          string            `json:"tenure,omitempty" yaml:"tenure,omitempty"`
	MonthlyCharges  string            `json:"MonthlyCharges,omitempty" yaml:"monthly_charges,omitempty"`
	TotalCharges    string            `json:"TotalCharges,omitempty" yaml:"total_charges,omitempty"`
	Contract        string            `json:"Contract,omitempty" yaml:"contract,omitempty"`
	OnlineSecurity  string            `json:"OnlineSecurity,omitempty" yaml:"online_security,omitempty"`
	TechSupport     string            `json:"TechSupport,omitempty" yaml:"tech_support,omitempty"`
	InternetService string            `json:"InternetService,omitempty" yaml:"internet_service,omitempty"`
	Churn           string            `json:"Churn,omitempty" yaml:"churn,omitempty"`
	Extra           map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// RecordFromRow builds a CustomerRecord from a column name to value mapping.
// Column names are matched exactly first, then case-insensitively.
func RecordFromRow(row map[string]string) CustomerRecord {
	var rec CustomerRecord
	used := make(map[string]bool, len(RequiredColumns))

	lookup := func(col string) string {
		if v, ok := row[col]; ok {
			used[col] = true
			return strings.TrimSpace(v)
		}
		for k, v := range row {
			if strings.EqualFold(k, col) {
				used[k] = true
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	rec.Tenure = lookup(ColTenure)
	rec.MonthlyCharges = lookup(ColMonthlyCharges)
	rec.TotalCharges = lookup(ColTotalCharges)
	rec.Contract = lookup(ColContract)
	rec.OnlineSecurity = lookup(ColOnlineSecurity)
	rec.TechSupport = lookup(ColTechSupport)
	rec.InternetService = lookup(ColInternetService)
	rec.Churn = lookup(ColChurn)

	for k, v := range row {
		if used[k] {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[k] = v
	}
	return rec
}

// Field returns the raw value of the named column, including extra columns.
func (r CustomerRecord) Field(name string) string {
	switch name {
	case ColTenure:
		return r.Tenure
	case ColMonthlyCharges:
		return r.MonthlyCharges
	case ColTotalCharges:
		return r.TotalCharges
	case ColContract:
		return r.Contract
	case ColOnlineSecurity:
		return r.OnlineSecurity
	case ColTechSupport:
		return r.TechSupport
	case ColInternetService:
		return r.InternetService
	case ColChurn:
		return r.Churn
	}
	return r.Extra[name]
}

// HasLabel reports whether the record carries a ground-truth churn value.
func (r CustomerRecord) HasLabel() bool {
	return strings.TrimSpace(r.Churn) != ""
}

// ExtraColumns returns the passthrough column names in sorted order.
func (r CustomerRecord) ExtraColumns() []string {
	cols := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
