package engine

import "math"

// param is a trainable parameter slice with its Adam moment estimates.
type param struct {
	value []float64
	m     []float64
	v     []float64
}

func newParam(value []float64) *param {
	return &param{
		value: value,
		m:     make([]float64, len(value)),
		v:     make([]float64, len(value)),
	}
}

// adam implements the Adam optimizer with bias-corrected moments.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
}

func (a *adam) step(params []*param, grads [][]float64) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for k, p := range params {
		g := grads[k]
		for i := range p.value {
			p.m[i] = a.beta1*p.m[i] + (1-a.beta1)*g[i]
			p.v[i] = a.beta2*p.v[i] + (1-a.beta2)*g[i]*g[i]
			mHat := p.m[i] / bc1
			vHat := p.v[i] / bc2
			p.value[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}
