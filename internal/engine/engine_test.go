package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func separableRows(n int) ([][]float64, [][]float64) {
	rng := rand.New(rand.NewPCG(7, 11))
	xs := make([][]float64, n)
	ys := make([][]float64, n)
	for i := range xs {
		row := make([]float64, 8)
		for j := range row {
			row[j] = rng.Float64()
		}
		xs[i] = row
		if row[0] > 0.5 {
			ys[i] = []float64{1}
		} else {
			ys[i] = []float64{0}
		}
	}
	return xs, ys
}

func smallArch() Architecture {
	return Architecture{
		InputWidth: 8,
		Hidden:     []Layer{{Units: 16, Activation: ActivationReLU}},
		Output:     ActivationSigmoid,
	}
}

func TestArchitectureValidate(t *testing.T) {
	require.NoError(t, smallArch().Validate())

	bad := Architecture{
		InputWidth: 0,
		Hidden: []Layer{
			{Units: 0, Activation: "tanhish", L2: -1, Dropout: 1},
		},
		Output: ActivationReLU,
	}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"input_width must be > 0",
		"hidden[0].units must be > 0",
		`hidden[0].activation "tanhish" unsupported`,
		"hidden[0].l2 must be >= 0",
		"hidden[0].dropout must be in [0,1)",
		"output activation must be sigmoid",
	} {
		assert.Contains(t, err.Error(), want)
	}

	assert.Error(t, Architecture{InputWidth: 8, Output: ActivationSigmoid}.Validate())
}

func TestTensorLifecycle(t *testing.T) {
	e := NewDense(1)

	tn, err := e.Tensor([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.Live())

	vals, err := tn.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, vals)

	e.Dispose(tn)
	e.Dispose(tn)
	assert.EqualValues(t, 0, e.Live())
	assert.True(t, tn.Disposed())

	_, err = tn.Values()
	assert.ErrorIs(t, err, ErrDisposed)

	_, err = e.Tensor(nil)
	assert.Error(t, err)
	_, err = e.Tensor([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
	assert.EqualValues(t, 0, e.Live())
}

func TestTrain_LearnsSeparableData(t *testing.T) {
	e := NewDense(3)
	m, err := e.CreateModel(smallArch())
	require.NoError(t, err)
	defer e.Release(m)

	rows, labels := separableRows(200)
	xs, err := e.Tensor(rows)
	require.NoError(t, err)
	ys, err := e.Tensor(labels)
	require.NoError(t, err)
	defer e.Dispose(xs, ys)

	hist, err := e.Train(context.Background(), m, xs, ys, TrainingConfig{
		Epochs:       80,
		BatchSize:    16,
		LearningRate: 0.05,
		Seed:         5,
	})
	require.NoError(t, err)
	require.Len(t, hist.Epochs, 80)
	assert.Less(t, hist.Last().Loss, hist.Epochs[0].Loss)

	ev, err := e.Evaluate(m, xs, ys)
	require.NoError(t, err)
	assert.Greater(t, ev.Accuracy, 0.85)

	pred, err := e.Predict(m, xs)
	require.NoError(t, err)
	probs, err := pred.Values()
	require.NoError(t, err)
	e.Dispose(pred)
	require.Len(t, probs, 200)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestTrain_FullArchitectureWithValidation(t *testing.T) {
	e := NewDense(9)
	arch := Architecture{
		InputWidth: 8,
		Hidden: []Layer{
			{Units: 16, Activation: ActivationReLU, L2: 0.001, BatchNorm: true, Dropout: 0.3},
			{Units: 8, Activation: ActivationLeakyReLU, L2: 0.001, BatchNorm: true, Dropout: 0.2},
			{Units: 4, Activation: ActivationReLU, Dropout: 0.1},
		},
		Output: ActivationSigmoid,
	}
	m, err := e.CreateModel(arch)
	require.NoError(t, err)
	assert.Equal(t, arch, m.Architecture())
	assert.NotEmpty(t, m.ID())

	rows, labels := separableRows(100)
	xs, _ := e.Tensor(rows)
	ys, _ := e.Tensor(labels)
	defer e.Dispose(xs, ys)

	var seen []int
	hist, err := e.Train(context.Background(), m, xs, ys, TrainingConfig{
		Epochs:          5,
		BatchSize:       10,
		LearningRate:    0.01,
		ValidationSplit: 0.2,
		Seed:            1,
		OnEpochEnd: func(em EpochMetrics) error {
			seen = append(seen, em.Epoch)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	for _, em := range hist.Epochs {
		assert.True(t, em.HasValidation)
		assert.GreaterOrEqual(t, em.ValAccuracy, 0.0)
		assert.LessOrEqual(t, em.ValAccuracy, 1.0)
		assert.Greater(t, em.Loss, 0.0)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	run := func() []float64 {
		e := NewDense(21)
		m, err := e.CreateModel(smallArch())
		require.NoError(t, err)
		rows, labels := separableRows(40)
		xs, _ := e.Tensor(rows)
		ys, _ := e.Tensor(labels)
		defer e.Dispose(xs, ys)
		_, err = e.Train(context.Background(), m, xs, ys, TrainingConfig{Epochs: 3, BatchSize: 8, Seed: 4})
		require.NoError(t, err)
		p, err := e.Predict(m, xs)
		require.NoError(t, err)
		defer e.Dispose(p)
		v, err := p.Values()
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, run(), run())
}

func TestTrain_StopsOnCancelAndCallbackError(t *testing.T) {
	e := NewDense(2)
	m, err := e.CreateModel(smallArch())
	require.NoError(t, err)
	rows, labels := separableRows(20)
	xs, _ := e.Tensor(rows)
	ys, _ := e.Tensor(labels)
	defer e.Dispose(xs, ys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Train(ctx, m, xs, ys, TrainingConfig{Epochs: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	boom := errors.New("boom")
	hist, err := e.Train(context.Background(), m, xs, ys, TrainingConfig{
		Epochs:     3,
		OnEpochEnd: func(EpochMetrics) error { return boom },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, hist.Epochs, 1)
}

func TestTrain_ValidationSplitRows(t *testing.T) {
	e := NewDense(2)
	m, _ := e.CreateModel(smallArch())
	xs, _ := e.Tensor([][]float64{{0, 0, 0, 0, 0, 0, 0, 0}})
	ys, _ := e.Tensor([][]float64{{1}})
	defer e.Dispose(xs, ys)

	_, err := e.Train(context.Background(), m, xs, ys, TrainingConfig{Epochs: 1, ValidationSplit: 0.99})
	require.NoError(t, err) // floor(0.99) = 0 validation rows

	xs2, _ := e.Tensor([][]float64{{0, 0, 0, 0, 0, 0, 0, 0}, {1, 1, 1, 1, 1, 1, 1, 1}})
	ys2, _ := e.Tensor([][]float64{{1}, {0}})
	defer e.Dispose(xs2, ys2)
	_, err = e.Train(context.Background(), m, xs2, ys2, TrainingConfig{Epochs: 1, ValidationSplit: 0.5})
	require.NoError(t, err)
}

func TestOperandChecks(t *testing.T) {
	e := NewDense(2)
	m, _ := e.CreateModel(smallArch())

	narrow, _ := e.Tensor([][]float64{{1, 2}})
	defer e.Dispose(narrow)
	_, err := e.Predict(m, narrow)
	assert.ErrorContains(t, err, "width 2")

	xs, _ := e.Tensor([][]float64{{0, 0, 0, 0, 0, 0, 0, 0}})
	bad, _ := e.Tensor([][]float64{{1}, {0}})
	defer e.Dispose(xs, bad)
	_, err = e.Evaluate(m, xs, bad)
	assert.ErrorContains(t, err, "labels are 2x1")

	e.Release(m)
	_, err = e.Predict(m, xs)
	assert.ErrorContains(t, err, "released")
}

func TestBackwardMatchesNumericGradient(t *testing.T) {
	arch := Architecture{
		InputWidth: 3,
		Hidden: []Layer{
			{Units: 4, Activation: ActivationSigmoid, L2: 0.01, BatchNorm: true},
			{Units: 3, Activation: ActivationLinear},
		},
		Output: ActivationSigmoid,
	}
	n := newNetwork("grad", arch, rand.New(rand.NewPCG(1, 2)))
	x := mat.NewDense(5, 3, []float64{
		0.1, 0.9, 0.3,
		0.7, 0.2, 0.5,
		0.4, 0.4, 0.8,
		0.9, 0.1, 0.2,
		0.3, 0.6, 0.6,
	})
	y := mat.NewDense(5, 1, []float64{1, 0, 1, 0, 1})

	loss := func() float64 {
		p, _ := n.forward(x, true, nil)
		return binaryCrossEntropy(p, y) + n.regularization()
	}

	p, caches := n.forward(x, true, nil)
	grads := n.backward(p, y, caches)
	require.Len(t, grads, len(n.params))

	const h = 1e-6
	for k, prm := range n.params {
		require.Len(t, grads[k], len(prm.value))
		for i := range prm.value {
			orig := prm.value[i]
			prm.value[i] = orig + h
			up := loss()
			prm.value[i] = orig - h
			down := loss()
			prm.value[i] = orig
			assert.InDelta(t, (up-down)/(2*h), grads[k][i], 1e-5, "param %d[%d]", k, i)
		}
	}
}
