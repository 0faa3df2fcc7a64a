package engine

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Dense is an in-process Engine running fully connected networks on gonum
// matrices.
type Dense struct {
	seed uint64
	live atomic.Int64
}

var _ Engine = (*Dense)(nil)

// NewDense creates an engine whose weight initialization derives from seed.
func NewDense(seed uint64) *Dense {
	return &Dense{seed: seed}
}

// Live returns the number of tensors handed out and not yet disposed.
func (e *Dense) Live() int64 {
	return e.live.Load()
}

// CreateModel builds a network with Glorot-initialized weights.
func (e *Dense) CreateModel(arch Architecture) (Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(e.seed, e.seed^0x9e3779b97f4a7c15))
	return newNetwork(uuid.NewString(), arch, rng), nil
}

// Tensor copies rows into a new tensor. Rows must be non-empty and of equal width.
func (e *Dense) Tensor(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, eris.New("engine: tensor needs at least one row")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, eris.New("engine: tensor needs at least one column")
	}
	data := make([]float64, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, eris.Errorf("engine: row %d has width %d, want %d", i, len(r), width)
		}
		data = append(data, r...)
	}
	return newTensor(&e.live, mat.NewDense(len(rows), width, data)), nil
}

// Dispose releases tensors.
func (e *Dense) Dispose(ts ...*Tensor) {
	for _, t := range ts {
		t.dispose()
	}
}

// Release frees a model.
func (e *Dense) Release(m Model) {
	n, ok := m.(*network)
	if !ok || n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released = true
	n.hidden = nil
	n.out = nil
	n.params = nil
}

// Train fits the model with Adam on mini-batches of binary cross-entropy.
// The last ValidationSplit share of rows is held back for validation
// metrics and never trained on.
func (e *Dense) Train(ctx context.Context, m Model, xs, ys *Tensor, cfg TrainingConfig) (*History, error) {
	n, x, y, err := e.operands(m, xs, ys)
	if err != nil {
		return nil, err
	}
	cfg = trainingDefaults(cfg)

	rows, cols := x.Dims()
	valN := int(math.Floor(float64(rows) * cfg.ValidationSplit))
	trainN := rows - valN
	if trainN <= 0 {
		return nil, eris.Errorf("engine: validation split %.2f leaves no training rows out of %d", cfg.ValidationSplit, rows)
	}

	trainX := mat.DenseCopyOf(x.Slice(0, trainN, 0, cols))
	trainY := mat.DenseCopyOf(y.Slice(0, trainN, 0, 1))
	var valX, valY *mat.Dense
	if valN > 0 {
		valX = mat.DenseCopyOf(x.Slice(trainN, rows, 0, cols))
		valY = mat.DenseCopyOf(y.Slice(trainN, rows, 0, 1))
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return nil, eris.New("engine: model released")
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	opt := newAdam(cfg.LearningRate)
	order := make([]int, trainN)
	for i := range order {
		order[i] = i
	}

	hist := &History{}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return hist, eris.Wrapf(err, "engine: cancelled before epoch %d", epoch)
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		var hits int
		for start := 0; start < trainN; start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, trainN)
			bx := gatherRows(trainX, order[start:end])
			by := gatherRows(trainY, order[start:end])

			p, caches := n.forward(bx, true, rng)
			grads := n.backward(p, by, caches)
			opt.step(n.params, grads)

			lossSum += binaryCrossEntropy(p, by) * float64(end-start)
			hits += correct(p, by)
		}

		em := EpochMetrics{
			Epoch:    epoch,
			Loss:     lossSum/float64(trainN) + n.regularization(),
			Accuracy: float64(hits) / float64(trainN),
		}
		if math.IsNaN(em.Loss) || math.IsInf(em.Loss, 0) {
			return hist, eris.Errorf("engine: non-finite loss at epoch %d", epoch)
		}
		if valX != nil {
			vp, _ := n.forward(valX, false, nil)
			em.ValLoss = binaryCrossEntropy(vp, valY) + n.regularization()
			em.ValAccuracy = float64(correct(vp, valY)) / float64(valN)
			em.HasValidation = true
		}
		hist.Epochs = append(hist.Epochs, em)

		if cfg.OnEpochEnd != nil {
			if err := cfg.OnEpochEnd(em); err != nil {
				return hist, eris.Wrapf(err, "engine: epoch %d callback", epoch)
			}
		}
	}

	return hist, nil
}

// Predict runs inference and returns an n x 1 probability tensor.
func (e *Dense) Predict(m Model, xs *Tensor) (*Tensor, error) {
	n, x, _, err := e.operands(m, xs, nil)
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.released {
		return nil, eris.New("engine: model released")
	}
	p, _ := n.forward(x, false, nil)
	return newTensor(&e.live, p), nil
}

// Evaluate returns loss (including weight decay) and accuracy at 0.5.
func (e *Dense) Evaluate(m Model, xs, ys *Tensor) (Evaluation, error) {
	n, x, y, err := e.operands(m, xs, ys)
	if err != nil {
		return Evaluation{}, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.released {
		return Evaluation{}, eris.New("engine: model released")
	}
	p, _ := n.forward(x, false, nil)
	rows, _ := p.Dims()
	return Evaluation{
		Loss:     binaryCrossEntropy(p, y) + n.regularization(),
		Accuracy: float64(correct(p, y)) / float64(rows),
	}, nil
}

func (e *Dense) operands(m Model, xs, ys *Tensor) (*network, *mat.Dense, *mat.Dense, error) {
	n, ok := m.(*network)
	if !ok || n == nil {
		return nil, nil, nil, eris.New("engine: model was not created by this engine")
	}
	x, err := xs.matrix()
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "engine: features")
	}
	if _, c := x.Dims(); c != n.arch.InputWidth {
		return nil, nil, nil, eris.Errorf("engine: features have width %d, model expects %d", c, n.arch.InputWidth)
	}
	if ys == nil {
		return n, x, nil, nil
	}
	y, err := ys.matrix()
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "engine: labels")
	}
	xr, _ := x.Dims()
	yr, yc := y.Dims()
	if yr != xr || yc != 1 {
		return nil, nil, nil, eris.Errorf("engine: labels are %dx%d, want %dx1", yr, yc, xr)
	}
	return n, x, y, nil
}

func trainingDefaults(cfg TrainingConfig) TrainingConfig {
	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.ValidationSplit < 0 || cfg.ValidationSplit >= 1 {
		cfg.ValidationSplit = 0
	}
	return cfg
}

func gatherRows(src *mat.Dense, idx []int) *mat.Dense {
	_, c := src.Dims()
	data := make([]float64, 0, len(idx)*c)
	for _, i := range idx {
		data = append(data, src.RawRowView(i)...)
	}
	return mat.NewDense(len(idx), c, data)
}
