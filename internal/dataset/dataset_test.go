package dataset

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	d := New()
	sunny := d.Labels.GetOrCreate("sunny")
	walk := d.Attrs.GetOrCreate("walk")

	err := d.Append([]Item{{{ID: walk, Value: 1}}}, []int{sunny}, 1.0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	// Length mismatch is rejected.
	err = d.Append([]Item{{{ID: walk, Value: 1}}}, []int{sunny, sunny}, 1.0, 0)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	// Empty sequences are skipped without corrupting state.
	err = d.Append(nil, nil, 1.0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
}

func TestCounts(t *testing.T) {
	d := New()
	l0 := d.Labels.GetOrCreate("a")
	l1 := d.Labels.GetOrCreate("b")
	a0 := d.Attrs.GetOrCreate("x")
	item := Item{{ID: a0, Value: 1}}

	require.NoError(t, d.Append([]Item{item, item, item}, []int{l0, l1, l0}, 1.0, 0))
	require.NoError(t, d.Append([]Item{item}, []int{l1}, 1.0, 1))

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 2, d.NumLabels())
	assert.Equal(t, 1, d.NumAttrs())
	assert.Equal(t, 3, d.MaxSeqLength())
	assert.Equal(t, 4, d.TotalItems())
	assert.Equal(t, 2, d.NumGroups())
}

func TestTrainingAndHoldoutViews(t *testing.T) {
	d := New()
	l := d.Labels.GetOrCreate("a")
	item := Item{{ID: d.Attrs.GetOrCreate("x"), Value: 1}}
	for g := 0; g < 3; g++ {
		require.NoError(t, d.Append([]Item{item}, []int{l}, 1.0, g))
	}

	train := d.TrainingView(1)
	assert.Equal(t, 2, train.Len())
	for i := range train.Sequences {
		assert.NotEqual(t, 1, train.Sequences[i].Group)
	}
	hold := d.HoldoutView(1)
	assert.Equal(t, 1, hold.Len())
	assert.Equal(t, 1, hold.Sequences[0].Group)

	// Negative holdout trains on everything.
	assert.Same(t, d, d.TrainingView(-1))
	assert.Equal(t, 0, d.HoldoutView(-1).Len())
}

func TestRead(t *testing.T) {
	const data = "sunny\twalk\tshop:0.5\n" +
		"rainy\tclean\n" +
		"\n" +
		"sunny\twalk:2.5\n" +
		"\n"
	d := New()
	require.NoError(t, d.Read(strings.NewReader(data), 0))

	require.Equal(t, 2, d.Len())
	assert.Equal(t, 2, d.NumLabels())
	assert.Equal(t, 3, d.NumAttrs())

	seq := d.Sequences[0]
	require.Equal(t, 2, seq.Len())
	require.Len(t, seq.Items[0], 2)
	assert.Equal(t, 1.0, seq.Items[0][0].Value)
	assert.Equal(t, 0.5, seq.Items[0][1].Value)

	shop, ok := d.Attrs.ToID("shop")
	require.True(t, ok)
	assert.Equal(t, shop, seq.Items[0][1].ID)

	// NAME:VALUE parsing keeps the name without the decimal suffix.
	walk, ok := d.Attrs.ToID("walk")
	require.True(t, ok)
	assert.Equal(t, walk, d.Sequences[1].Items[0][0].ID)
	assert.Equal(t, 2.5, d.Sequences[1].Items[0][0].Value)
}

func TestReadUnterminatedSequence(t *testing.T) {
	d := New()
	require.NoError(t, d.Read(strings.NewReader("a\tx\nb\ty"), 0))
	require.Equal(t, 1, d.Len())
	assert.Equal(t, 2, d.Sequences[0].Len())
}

func TestReadGroupsRoundRobin(t *testing.T) {
	const data = "a\tx\n\n" + "a\ty\n\n" + "a\tz\n\n"
	d := New()
	require.NoError(t, d.Read(strings.NewReader(data), 2))
	require.Equal(t, 3, d.Len())
	assert.Equal(t, 0, d.Sequences[0].Group)
	assert.Equal(t, 1, d.Sequences[1].Group)
	assert.Equal(t, 0, d.Sequences[2].Group)
}
