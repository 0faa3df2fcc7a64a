package engine

import "math"

const leakySlope = 0.01

func (a Activation) apply(x float64) float64 {
	switch a {
	case ActivationReLU:
		if x > 0 {
			return x
		}
		return 0
	case ActivationLeakyReLU:
		if x > 0 {
			return x
		}
		return leakySlope * x
	case ActivationSigmoid:
		return sigmoid(x)
	}
	return x
}

// derivative returns da/dz evaluated at pre-activation z.
func (a Activation) derivative(z float64) float64 {
	switch a {
	case ActivationReLU:
		if z > 0 {
			return 1
		}
		return 0
	case ActivationLeakyReLU:
		if z > 0 {
			return 1
		}
		return leakySlope
	case ActivationSigmoid:
		s := sigmoid(z)
		return s * (1 - s)
	}
	return 1
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
