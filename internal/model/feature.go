package model

// FeatureCount is the fixed width of every FeatureVector.
const FeatureCount = 8

// Feature positions within a FeatureVector.
const (
	FeatTenure = iota
	FeatMonthlyCharges
	FeatTotalCharges
	FeatContract
	FeatOnlineSecurity
	FeatTechSupport
	FeatInternetService
	FeatTenureYears
)

// FeatureNames names each FeatureVector position.
var FeatureNames = [FeatureCount]string{
	"tenure",
	"monthlyCharges",
	"totalCharges",
	"contractCode",
	"onlineSecurityFlag",
	"techSupportFlag",
	"internetServiceFlag",
	"tenureYears",
}

// Contract codes produced by the encoder.
const (
	ContractMonthToMonth = 0
	ContractOneYear      = 1
	ContractTwoYear      = 2
)

// FeatureVector is the fixed-length numeric encoding of one customer.
type FeatureVector [FeatureCount]float64

// Slice returns a copy of the vector as a slice.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}
