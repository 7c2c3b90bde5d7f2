// Package xgboost adapts the boo multi-class booster into a regressor by
// binning targets into quantile buckets and predicting the probability
// weighted bucket center.
package xgboost

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

type TrainOptions struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	Bins         int
}

type Model struct {
	opts         TrainOptions
	featureNames []string
	centers      map[int]float64
	boost        *boo.MultiClass
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:       100,
		LearningRate: 0.1,
		MaxDepth:     6,
		Bins:         8,
	}
}

// New returns an unfitted regressor using the given feature names as boo keys.
func New(featureNames []string, opts TrainOptions) *Model {
	def := DefaultTrainOptions()
	if opts.Rounds <= 0 {
		opts.Rounds = def.Rounds
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.Bins < 2 {
		opts.Bins = def.Bins
	}
	return &Model{opts: opts, featureNames: append([]string(nil), featureNames...)}
}

func (m *Model) Fit(samples [][]float64, targets []float64) error {
	if len(samples) == 0 || len(samples) != len(targets) {
		return errors.New("invalid training dataset")
	}
	if len(samples[0]) == 0 {
		return errors.New("empty feature vectors")
	}
	labels, centers := binTargets(targets, m.opts.Bins)
	if len(centers) < 2 {
		return errors.New("binned regression requires at least two distinct target buckets")
	}
	names := m.featureNames
	if len(names) != len(samples[0]) {
		names = make([]string, len(samples[0]))
		for i := range names {
			names[i] = fmt.Sprintf("f%d", i)
		}
	}

	o := boo.DefaultXOptions()
	o.Rounds = m.opts.Rounds
	o.LearningRate = m.opts.LearningRate
	o.MaxDepth = m.opts.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	data := &utils.DataBunch{
		Data:   samples,
		Labels: labels,
		Keys:   names,
	}
	model := boo.NewMultiClass(data, o)
	if model == nil {
		return errors.New("failed to train boosted classifier")
	}
	m.featureNames = names
	m.centers = centers
	m.boost = model
	return nil
}

// Predict returns the expected target under the class distribution.
func (m *Model) Predict(sample []float64) float64 {
	if m == nil || m.boost == nil {
		return math.NaN()
	}
	probs := m.boost.PredictSingle(sample)
	labels := m.boost.ClassLabels()
	var sum, weight float64
	for i := range labels {
		if i >= len(probs) {
			break
		}
		center, ok := m.centers[labels[i]]
		if !ok || math.IsNaN(probs[i]) {
			continue
		}
		sum += probs[i] * center
		weight += probs[i]
	}
	if weight <= 0 {
		return math.NaN()
	}
	return sum / weight
}

// binTargets assigns each target to a quantile bucket and returns contiguous
// labels with the mean target of each bucket.
func binTargets(targets []float64, bins int) ([]int, map[int]float64) {
	sorted := append([]float64(nil), targets...)
	sort.Float64s(sorted)
	edges := make([]float64, 0, bins-1)
	for k := 1; k < bins; k++ {
		q := sorted[k*len(sorted)/bins]
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}

	raw := make([]int, len(targets))
	used := make(map[int]struct{})
	for i, v := range targets {
		raw[i] = sort.Search(len(edges), func(j int) bool { return edges[j] > v })
		used[raw[i]] = struct{}{}
	}
	order := make([]int, 0, len(used))
	for b := range used {
		order = append(order, b)
	}
	sort.Ints(order)
	remap := make(map[int]int, len(order))
	for i, b := range order {
		remap[b] = i
	}

	labels := make([]int, len(targets))
	sums := make(map[int]float64, len(order))
	counts := make(map[int]int, len(order))
	for i, v := range targets {
		labels[i] = remap[raw[i]]
		sums[labels[i]] += v
		counts[labels[i]]++
	}
	centers := make(map[int]float64, len(order))
	for label, s := range sums {
		centers[label] = s / float64(counts[label])
	}
	return labels, centers
}
