package engine

import (
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"
)

const (
	bnMomentum = 0.99
	bnEpsilon  = 1e-3
	probEps    = 1e-7
)

type batchNorm struct {
	gamma    []float64
	beta     []float64
	mean     []float64
	variance []float64
}

func newBatchNorm(units int) *batchNorm {
	bn := &batchNorm{
		gamma:    make([]float64, units),
		beta:     make([]float64, units),
		mean:     make([]float64, units),
		variance: make([]float64, units),
	}
	for j := range bn.gamma {
		bn.gamma[j] = 1
		bn.variance[j] = 1
	}
	return bn
}

type denseLayer struct {
	w       *mat.Dense
	b       []float64
	act     Activation
	l2      float64
	bn      *batchNorm
	dropout float64
}

// layerCache keeps what backprop needs from one forward pass.
type layerCache struct {
	in     *mat.Dense
	z      *mat.Dense
	xhat   *mat.Dense
	invStd []float64
	mask   []float64
}

type network struct {
	id     string
	arch   Architecture
	hidden []*denseLayer
	out    *denseLayer
	params []*param

	mu       sync.RWMutex
	released bool
}

func (n *network) ID() string                 { return n.id }
func (n *network) Architecture() Architecture { return n.arch }

func newNetwork(id string, arch Architecture, rng *rand.Rand) *network {
	n := &network{id: id, arch: arch}
	width := arch.InputWidth
	for _, l := range arch.Hidden {
		dl := &denseLayer{
			w:       glorot(width, l.Units, rng),
			b:       make([]float64, l.Units),
			act:     l.Activation,
			l2:      l.L2,
			dropout: l.Dropout,
		}
		if l.BatchNorm {
			dl.bn = newBatchNorm(l.Units)
		}
		n.hidden = append(n.hidden, dl)
		width = l.Units
	}
	n.out = &denseLayer{
		w:   glorot(width, 1, rng),
		b:   make([]float64, 1),
		act: ActivationSigmoid,
	}

	// Parameter order must match the gradient order produced by backward.
	for _, l := range n.hidden {
		n.params = append(n.params, newParam(l.w.RawMatrix().Data), newParam(l.b))
		if l.bn != nil {
			n.params = append(n.params, newParam(l.bn.gamma), newParam(l.bn.beta))
		}
	}
	n.params = append(n.params, newParam(n.out.w.RawMatrix().Data), newParam(n.out.b))
	return n
}

func glorot(in, out int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(in, out, data)
}

func affine(x, w *mat.Dense, b []float64) *mat.Dense {
	var z mat.Dense
	z.Mul(x, w)
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		for j := range row {
			row[j] += b[j]
		}
	}
	return &z
}

// forward runs x through the network. In training mode batch statistics
// and dropout are applied and caches are returned for backward.
func (n *network) forward(x *mat.Dense, training bool, rng *rand.Rand) (*mat.Dense, []layerCache) {
	caches := make([]layerCache, 0, len(n.hidden)+1)
	cur := x

	for _, l := range n.hidden {
		c := layerCache{in: cur}
		z := affine(cur, l.w, l.b)
		c.z = z

		r, u := z.Dims()
		a := mat.NewDense(r, u, nil)
		act := l.act
		a.Apply(func(_, _ int, v float64) float64 { return act.apply(v) }, z)

		if l.bn != nil {
			if training {
				c.xhat, c.invStd = l.bn.normalizeBatch(a)
				a = l.bn.scale(c.xhat)
			} else {
				a = l.bn.infer(a)
			}
		}

		if training && l.dropout > 0 {
			c.mask = dropoutMask(r*u, l.dropout, rng)
			for i := 0; i < r; i++ {
				row := a.RawRowView(i)
				for j := range row {
					row[j] *= c.mask[i*u+j]
				}
			}
		}

		caches = append(caches, c)
		cur = a
	}

	c := layerCache{in: cur}
	z := affine(cur, n.out.w, n.out.b)
	c.z = z
	r, _ := z.Dims()
	p := mat.NewDense(r, 1, nil)
	p.Apply(func(_, _ int, v float64) float64 { return sigmoid(v) }, z)
	caches = append(caches, c)

	return p, caches
}

// backward returns gradients of the mean binary cross-entropy plus L2 terms,
// ordered like n.params.
func (n *network) backward(p, y *mat.Dense, caches []layerCache) [][]float64 {
	rows, _ := p.Dims()
	m := float64(rows)

	dz := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		dz.Set(i, 0, (p.At(i, 0)-y.At(i, 0))/m)
	}

	oc := caches[len(caches)-1]
	var dWo mat.Dense
	dWo.Mul(oc.in.T(), dz)
	outGrads := [][]float64{flatten(&dWo), colSums(dz)}

	var dX mat.Dense
	dX.Mul(dz, n.out.w.T())

	layerGrads := make([][][]float64, len(n.hidden))
	for k := len(n.hidden) - 1; k >= 0; k-- {
		l := n.hidden[k]
		c := caches[k]
		r, u := dX.Dims()

		dy := mat.DenseCopyOf(&dX)
		if c.mask != nil {
			for i := 0; i < r; i++ {
				row := dy.RawRowView(i)
				for j := range row {
					row[j] *= c.mask[i*u+j]
				}
			}
		}

		var grads [][]float64
		da := dy
		if l.bn != nil {
			var dGamma, dBeta []float64
			da, dGamma, dBeta = l.bn.backward(dy, c.xhat, c.invStd)
			grads = append(grads, nil, nil, dGamma, dBeta)
		} else {
			grads = append(grads, nil, nil)
		}

		dzl := mat.NewDense(r, u, nil)
		act := l.act
		dzl.Apply(func(i, j int, v float64) float64 {
			return v * act.derivative(c.z.At(i, j))
		}, da)

		var dW mat.Dense
		dW.Mul(c.in.T(), dzl)
		grads[0] = flatten(&dW)
		if l.l2 > 0 {
			for i, w := range l.w.RawMatrix().Data {
				grads[0][i] += 2 * l.l2 * w
			}
		}
		grads[1] = colSums(dzl)
		layerGrads[k] = grads

		dX.Reset()
		dX.Mul(dzl, l.w.T())
	}

	out := make([][]float64, 0, len(n.params))
	for _, g := range layerGrads {
		out = append(out, g...)
	}
	return append(out, outGrads...)
}

func (n *network) regularization() float64 {
	var total float64
	for _, l := range n.hidden {
		if l.l2 == 0 {
			continue
		}
		var sq float64
		for _, w := range l.w.RawMatrix().Data {
			sq += w * w
		}
		total += l.l2 * sq
	}
	return total
}

func (bn *batchNorm) normalizeBatch(a *mat.Dense) (*mat.Dense, []float64) {
	r, u := a.Dims()
	xhat := mat.NewDense(r, u, nil)
	invStd := make([]float64, u)
	m := float64(r)

	for j := 0; j < u; j++ {
		var mean float64
		for i := 0; i < r; i++ {
			mean += a.At(i, j)
		}
		mean /= m

		var variance float64
		for i := 0; i < r; i++ {
			d := a.At(i, j) - mean
			variance += d * d
		}
		variance /= m

		invStd[j] = 1 / math.Sqrt(variance+bnEpsilon)
		for i := 0; i < r; i++ {
			xhat.Set(i, j, (a.At(i, j)-mean)*invStd[j])
		}

		bn.mean[j] = bnMomentum*bn.mean[j] + (1-bnMomentum)*mean
		bn.variance[j] = bnMomentum*bn.variance[j] + (1-bnMomentum)*variance
	}
	return xhat, invStd
}

func (bn *batchNorm) scale(xhat *mat.Dense) *mat.Dense {
	r, u := xhat.Dims()
	y := mat.NewDense(r, u, nil)
	y.Apply(func(_, j int, v float64) float64 {
		return bn.gamma[j]*v + bn.beta[j]
	}, xhat)
	return y
}

func (bn *batchNorm) infer(a *mat.Dense) *mat.Dense {
	r, u := a.Dims()
	y := mat.NewDense(r, u, nil)
	y.Apply(func(_, j int, v float64) float64 {
		return bn.gamma[j]*(v-bn.mean[j])/math.Sqrt(bn.variance[j]+bnEpsilon) + bn.beta[j]
	}, a)
	return y
}

func (bn *batchNorm) backward(dy, xhat *mat.Dense, invStd []float64) (*mat.Dense, []float64, []float64) {
	r, u := dy.Dims()
	m := float64(r)
	dGamma := make([]float64, u)
	dBeta := make([]float64, u)
	da := mat.NewDense(r, u, nil)

	for j := 0; j < u; j++ {
		var sumDxhat, sumDxhatXhat float64
		for i := 0; i < r; i++ {
			g := dy.At(i, j)
			xh := xhat.At(i, j)
			dGamma[j] += g * xh
			dBeta[j] += g
			dxh := g * bn.gamma[j]
			sumDxhat += dxh
			sumDxhatXhat += dxh * xh
		}
		for i := 0; i < r; i++ {
			dxh := dy.At(i, j) * bn.gamma[j]
			xh := xhat.At(i, j)
			da.Set(i, j, invStd[j]/m*(m*dxh-sumDxhat-xh*sumDxhatXhat))
		}
	}
	return da, dGamma, dBeta
}

func dropoutMask(size int, rate float64, rng *rand.Rand) []float64 {
	keep := 1 - rate
	mask := make([]float64, size)
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
	}
	return mask
}

func flatten(d *mat.Dense) []float64 {
	r, c := d.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, d.RawRowView(i)...)
	}
	return out
}

func colSums(d *mat.Dense) []float64 {
	r, c := d.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		for j, v := range d.RawRowView(i) {
			out[j] += v
		}
	}
	return out
}

func binaryCrossEntropy(p, y *mat.Dense) float64 {
	r, _ := p.Dims()
	var total float64
	for i := 0; i < r; i++ {
		pi := math.Min(math.Max(p.At(i, 0), probEps), 1-probEps)
		yi := y.At(i, 0)
		total -= yi*math.Log(pi) + (1-yi)*math.Log(1-pi)
	}
	return total / float64(r)
}

func correct(p, y *mat.Dense) int {
	r, _ := p.Dims()
	var n int
	for i := 0; i < r; i++ {
		if (p.At(i, 0) >= 0.5) == (y.At(i, 0) >= 0.5) {
			n++
		}
	}
	return n
}
