package engine

import (
	"errors"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// ErrDisposed is returned when a disposed tensor is read.
var ErrDisposed = errors.New("engine: tensor disposed")

// Tensor is an engine-owned two-dimensional buffer.
type Tensor struct {
	data     *mat.Dense
	live     *atomic.Int64
	disposed atomic.Bool
}

func newTensor(live *atomic.Int64, data *mat.Dense) *Tensor {
	live.Add(1)
	return &Tensor{data: data, live: live}
}

// Dims returns rows and columns.
func (t *Tensor) Dims() (int, int) {
	if t.disposed.Load() {
		return 0, 0
	}
	return t.data.Dims()
}

// Values returns a row-major copy of the tensor contents.
func (t *Tensor) Values() ([]float64, error) {
	m, err := t.matrix()
	if err != nil {
		return nil, err
	}
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out, nil
}

// Disposed reports whether the tensor has been released.
func (t *Tensor) Disposed() bool {
	return t.disposed.Load()
}

func (t *Tensor) dispose() {
	if t == nil || !t.disposed.CompareAndSwap(false, true) {
		return
	}
	t.data = nil
	t.live.Add(-1)
}

func (t *Tensor) matrix() (*mat.Dense, error) {
	if t == nil {
		return nil, eris.New("engine: nil tensor")
	}
	if t.disposed.Load() {
		return nil, ErrDisposed
	}
	return t.data, nil
}
