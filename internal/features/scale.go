package features

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/sells-group/churn-risk/internal/model"
)

// Range is the observed span of one feature.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// ScalerState holds per-feature min/max fitted over a set of vectors.
// A fitted state is never modified; refitting produces a new value.
type ScalerState struct {
	Ranges  [model.FeatureCount]Range `json:"ranges" yaml:"ranges"`
	Samples int                       `json:"samples" yaml:"samples"`
}

// Fit computes the min and max of every feature across vectors. Fitting an
// empty set yields zero ranges, which normalize every value to 0.
func Fit(vectors []model.FeatureVector) ScalerState {
	var s ScalerState
	s.Samples = len(vectors)
	if len(vectors) == 0 {
		return s
	}

	for i := range s.Ranges {
		s.Ranges[i] = Range{Min: vectors[0][i], Max: vectors[0][i]}
	}
	for _, v := range vectors[1:] {
		for i, x := range v {
			if x < s.Ranges[i].Min {
				s.Ranges[i].Min = x
			}
			if x > s.Ranges[i].Max {
				s.Ranges[i].Max = x
			}
		}
	}
	return s
}

// Apply min-max normalizes v. Constant features map to 0. Values outside the
// fitted range are not clamped.
func (s ScalerState) Apply(v model.FeatureVector) model.FeatureVector {
	var out model.FeatureVector
	for i, x := range v {
		r := s.Ranges[i]
		span := r.Max - r.Min
		if span == 0 {
			out[i] = 0
			continue
		}
		out[i] = (x - r.Min) / span
	}
	return out
}

// ApplyAll normalizes every vector in order.
func (s ScalerState) ApplyAll(vectors []model.FeatureVector) []model.FeatureVector {
	out := make([]model.FeatureVector, len(vectors))
	for i, v := range vectors {
		out[i] = s.Apply(v)
	}
	return out
}

// OutOfRange reports whether any component of the raw vector v lies outside
// the fitted range, i.e. normalizes to something outside [0,1].
func (s ScalerState) OutOfRange(v model.FeatureVector) bool {
	for i, x := range v {
		if x < s.Ranges[i].Min || x > s.Ranges[i].Max {
			return true
		}
	}
	return false
}

// Fingerprint returns a short stable hash of the fitted ranges.
func (s ScalerState) Fingerprint() string {
	data, err := json.Marshal(s.Ranges)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}
