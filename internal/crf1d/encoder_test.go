package crf1d

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-search/crfsuite-go/internal/dataset"
)

func TestSetData(t *testing.T) {
	ds := toyDataset(t)
	e := NewEncoder(GenerateOptions{PossibleTransitions: true})
	require.NoError(t, e.SetData(ds))

	assert.Equal(t, 2, e.NumLabels())
	assert.Greater(t, e.NumFeatures(), 0)
	assert.Len(t, e.AttrRefs(), ds.NumAttrs())
	assert.Len(t, e.LabelRefs(), ds.NumLabels())
}

func TestSetDataEmpty(t *testing.T) {
	e := NewEncoder(GenerateOptions{})
	err := e.SetData(dataset.New())
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestValueAndGradientAtZeroWeights(t *testing.T) {
	ds := toyDataset(t)
	e := NewEncoder(GenerateOptions{})
	require.NoError(t, e.SetData(ds))

	K := e.NumFeatures()
	w := make([]float64, K)
	g := make([]float64, K)
	fx := e.ValueAndGradient(ds, w, g)

	// With all weights zero every path scores zero, so Z = L^T and each
	// sequence contributes T * ln L to the negative log-likelihood.
	L := float64(ds.NumLabels())
	want := 0.0
	for i := range ds.Sequences {
		want += float64(ds.Sequences[i].Len()) * math.Log(L)
	}
	assert.InDelta(t, want, fx, 1e-9)
}

// numericalGradient estimates df/dw_i by central differences.
func numericalGradient(e *Encoder, ds *dataset.Dataset, w []float64, i int) float64 {
	const h = 1e-6
	g := make([]float64, len(w))
	orig := w[i]
	w[i] = orig + h
	fPlus := e.ValueAndGradient(ds, w, g)
	w[i] = orig - h
	fMinus := e.ValueAndGradient(ds, w, g)
	w[i] = orig
	return (fPlus - fMinus) / (2 * h)
}

func TestGradientMatchesFiniteDifferences(t *testing.T) {
	ds := toyDataset(t)
	e := NewEncoder(GenerateOptions{PossibleTransitions: true})
	require.NoError(t, e.SetData(ds))

	K := e.NumFeatures()
	rng := rand.New(rand.NewPCG(17, 0))
	w := make([]float64, K)
	for i := range w {
		w[i] = rng.Float64() - 0.5
	}
	g := make([]float64, K)
	e.ValueAndGradient(ds, w, g)

	for i := 0; i < K; i++ {
		want := numericalGradient(e, ds, w, i)
		assert.InDelta(t, want, g[i], 1e-4, "gradient component %d", i)
	}
}

func TestValueAndGradientIsReproducible(t *testing.T) {
	ds := toyDataset(t)
	e := NewEncoder(GenerateOptions{PossibleTransitions: true})
	require.NoError(t, e.SetData(ds))

	K := e.NumFeatures()
	w := make([]float64, K)
	for i := range w {
		w[i] = 0.1 * float64(i%7)
	}
	g1 := make([]float64, K)
	g2 := make([]float64, K)
	fx1 := e.ValueAndGradient(ds, w, g1)
	fx2 := e.ValueAndGradient(ds, w, g2)
	assert.Equal(t, fx1, fx2, "same input order must be bitwise reproducible")
	assert.Equal(t, g1, g2)
}

func TestSequenceWeightScalesContribution(t *testing.T) {
	build := func(weight float64) (*Encoder, *dataset.Dataset) {
		ds := dataset.New()
		la := ds.Labels.GetOrCreate("a")
		lb := ds.Labels.GetOrCreate("b")
		ax := ds.Attrs.GetOrCreate("x")
		items := []dataset.Item{
			{{ID: ax, Value: 1}},
			{{ID: ax, Value: 1}},
		}
		require.NoError(t, ds.Append(items, []int{la, lb}, weight, 0))
		e := NewEncoder(GenerateOptions{})
		require.NoError(t, e.SetData(ds))
		return e, ds
	}

	e1, ds1 := build(1.0)
	e2, ds2 := build(2.0)
	require.Equal(t, e1.NumFeatures(), e2.NumFeatures())

	K := e1.NumFeatures()
	w := make([]float64, K)
	for i := range w {
		w[i] = 0.25 * float64(i+1)
	}
	g1 := make([]float64, K)
	g2 := make([]float64, K)
	fx1 := e1.ValueAndGradient(ds1, w, g1)
	fx2 := e2.ValueAndGradient(ds2, w, g2)

	assert.InDelta(t, 2*fx1, fx2, 1e-9)
	for i := range g1 {
		assert.InDelta(t, 2*g1[i], g2[i], 1e-9)
	}
}
