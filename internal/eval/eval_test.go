package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfectTagging(t *testing.T) {
	p := New(2)
	p.Accumulate([]string{"a", "b", "a"}, []string{"a", "b", "a"})
	p.Accumulate([]string{"b"}, []string{"b"})
	p.Evaluate()

	assert.Equal(t, 1.0, p.ItemAccuracy)
	assert.Equal(t, 1.0, p.SeqAccuracy)
	assert.Equal(t, 1.0, p.MacroPrecision)
	assert.Equal(t, 1.0, p.MacroRecall)
	assert.Equal(t, 1.0, p.MacroFMeasure)

	correct, total := p.ItemCounts()
	assert.Equal(t, 4, correct)
	assert.Equal(t, 4, total)
}

func TestMixedTagging(t *testing.T) {
	p := New(2)
	// Reference: a a b b; prediction: a b b b.
	p.Accumulate([]string{"a", "a", "b", "b"}, []string{"a", "b", "b", "b"})
	p.Evaluate()

	a := p.Measure("a")
	require.NotNil(t, a)
	// a: 1 correct, predicted once, observed twice.
	assert.Equal(t, 1, a.NumCorrect)
	assert.Equal(t, 1, a.NumModel)
	assert.Equal(t, 2, a.NumObservation)
	assert.InDelta(t, 1.0, a.Precision, 1e-12)
	assert.InDelta(t, 0.5, a.Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, a.FMeasure, 1e-12)

	b := p.Measure("b")
	require.NotNil(t, b)
	// b: 2 correct, predicted 3 times, observed twice.
	assert.InDelta(t, 2.0/3.0, b.Precision, 1e-12)
	assert.InDelta(t, 1.0, b.Recall, 1e-12)

	assert.InDelta(t, 0.75, p.ItemAccuracy, 1e-12)
	assert.Equal(t, 0.0, p.SeqAccuracy)
}

func TestUnobservedPredictionDoesNotCount(t *testing.T) {
	p := New(3)
	// Label c is predicted but never observed: it must not contribute to
	// the item totals or macro averages.
	p.Accumulate([]string{"a", "a"}, []string{"a", "c"})
	p.Evaluate()

	_, total := p.ItemCounts()
	assert.Equal(t, 2, total)
	c := p.Measure("c")
	require.NotNil(t, c)
	assert.Equal(t, 0, c.NumObservation)
	assert.Equal(t, 1, c.NumModel)
}

func TestLabelsSorted(t *testing.T) {
	p := New(3)
	p.Accumulate([]string{"c", "a", "b"}, []string{"c", "a", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, p.Labels())
}
