// Package gbrt implements second-order gradient boosted regression trees with
// squared error loss, row and column subsampling and L2 leaf regularization.
package gbrt

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

type Options struct {
	Rounds         int
	MaxDepth       int
	LearningRate   float64
	Subsample      float64
	ColSample      float64
	Lambda         float64
	MinChildWeight float64
	Seed           uint64
}

func DefaultOptions() Options {
	return Options{
		Rounds:         100,
		MaxDepth:       6,
		LearningRate:   0.1,
		Subsample:      0.8,
		ColSample:      0.8,
		Lambda:         1,
		MinChildWeight: 1,
		Seed:           42,
	}
}

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      int
	right     int
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if x[n.feature] < n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].value
}

type Model struct {
	opts      Options
	base      float64
	trees     []tree
	nFeatures int
}

// New returns an unfitted model. Zero option fields take their defaults.
func New(opts Options) *Model {
	def := DefaultOptions()
	if opts.Rounds <= 0 {
		opts.Rounds = def.Rounds
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.Subsample <= 0 || opts.Subsample > 1 {
		opts.Subsample = def.Subsample
	}
	if opts.ColSample <= 0 || opts.ColSample > 1 {
		opts.ColSample = def.ColSample
	}
	if opts.Lambda < 0 {
		opts.Lambda = def.Lambda
	}
	if opts.MinChildWeight < 0 {
		opts.MinChildWeight = def.MinChildWeight
	}
	return &Model{opts: opts}
}

func (m *Model) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return errors.New("invalid training dataset")
	}
	nf := len(x[0])
	if nf == 0 {
		return errors.New("empty feature vectors")
	}
	for i := range x {
		if len(x[i]) != nf {
			return errors.New("ragged feature matrix")
		}
		if !finite(x[i]...) || !finite(y[i]) {
			return errors.New("non-finite training value")
		}
	}

	n := len(y)
	m.nFeatures = nf
	m.base = floats.Sum(y) / float64(n)
	m.trees = m.trees[:0]

	rng := rand.New(rand.NewPCG(m.opts.Seed, m.opts.Seed^0x9e3779b97f4a7c15))
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	rowCount := max(1, int(m.opts.Subsample*float64(n)))
	colCount := max(1, int(m.opts.ColSample*float64(nf)))

	for r := 0; r < m.opts.Rounds; r++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
			hess[i] = 1
		}
		rows := rng.Perm(n)[:rowCount]
		cols := rng.Perm(nf)[:colCount]
		b := builder{x: x, grad: grad, hess: hess, cols: cols, opts: m.opts}
		b.grow(rows, 0)
		t := tree{nodes: b.nodes}
		for i := range pred {
			pred[i] += t.predict(x[i])
		}
		m.trees = append(m.trees, t)
	}
	return nil
}

func (m *Model) Predict(x []float64) float64 {
	if m == nil || len(x) != m.nFeatures {
		return math.NaN()
	}
	out := m.base
	for i := range m.trees {
		out += m.trees[i].predict(x)
	}
	return out
}

type builder struct {
	x     [][]float64
	grad  []float64
	hess  []float64
	cols  []int
	opts  Options
	nodes []node
}

func (b *builder) grow(idx []int, depth int) int {
	var g, h float64
	for _, i := range idx {
		g += b.grad[i]
		h += b.hess[i]
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{leaf: true, value: -g / (h + b.opts.Lambda) * b.opts.LearningRate})
	if depth >= b.opts.MaxDepth || len(idx) < 2 {
		return id
	}

	parent := g * g / (h + b.opts.Lambda)
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	sorted := make([]int, len(idx))
	for _, f := range b.cols {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })
		var gl, hl float64
		for k := 0; k < len(sorted)-1; k++ {
			gl += b.grad[sorted[k]]
			hl += b.hess[sorted[k]]
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.opts.MinChildWeight || hr < b.opts.MinChildWeight {
				continue
			}
			gain := gl*gl/(hl+b.opts.Lambda) + gr*gr/(hr+b.opts.Lambda) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	if bestFeature < 0 {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][bestFeature] < bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = node{feature: bestFeature, threshold: bestThreshold, left: l, right: r}
	return id
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
