package crf1d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-search/crfsuite-go/internal/dataset"
)

// toyDataset builds a two-sequence dataset over labels {a, b} and attributes
// {x, y, z}.
func toyDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	la := ds.Labels.GetOrCreate("a")
	lb := ds.Labels.GetOrCreate("b")
	ax := ds.Attrs.GetOrCreate("x")
	ay := ds.Attrs.GetOrCreate("y")
	az := ds.Attrs.GetOrCreate("z")

	item := func(attrs ...dataset.Attribute) dataset.Item { return attrs }
	attr := func(id int, v float64) dataset.Attribute { return dataset.Attribute{ID: id, Value: v} }

	require.NoError(t, ds.Append(
		[]dataset.Item{
			item(attr(ax, 1)),
			item(attr(ay, 1), attr(az, 0.5)),
			item(attr(ax, 1)),
		},
		[]int{la, lb, la}, 1.0, 0))
	require.NoError(t, ds.Append(
		[]dataset.Item{
			item(attr(ax, 1)),
			item(attr(ay, 2)),
		},
		[]int{la, lb}, 1.0, 0))
	return ds
}

func TestGenerateFeatures(t *testing.T) {
	ds := toyDataset(t)
	feats := GenerateFeatures(ds, GenerateOptions{})

	byKey := make(map[featKey]Feature)
	for _, f := range feats {
		byKey[featKey{f.Kind, f.Src, f.Dst}] = f
	}

	// State feature x->a fires three times with value 1.
	f, found := byKey[featKey{StateFeature, 0, 0}]
	require.True(t, found)
	assert.Equal(t, 3.0, f.Freq)

	// y->b fires with values 1 and 2.
	f, found = byKey[featKey{StateFeature, 1, 1}]
	require.True(t, found)
	assert.Equal(t, 3.0, f.Freq)

	// z->b fires once with value 0.5.
	f, found = byKey[featKey{StateFeature, 2, 1}]
	require.True(t, found)
	assert.Equal(t, 0.5, f.Freq)

	// Transitions observed: a->b twice, b->a once. No BOS transition.
	f, found = byKey[featKey{TransitionFeature, 0, 1}]
	require.True(t, found)
	assert.Equal(t, 2.0, f.Freq)
	f, found = byKey[featKey{TransitionFeature, 1, 0}]
	require.True(t, found)
	assert.Equal(t, 1.0, f.Freq)
	_, found = byKey[featKey{TransitionFeature, 0, 0}]
	assert.False(t, found)

	// 3 state + 2 transition features in total.
	assert.Len(t, feats, 5)
}

func TestGenerateFeaturesIsDeterministic(t *testing.T) {
	ds := toyDataset(t)
	first := GenerateFeatures(ds, GenerateOptions{PossibleTransitions: true})
	second := GenerateFeatures(ds, GenerateOptions{PossibleTransitions: true})
	assert.Equal(t, first, second)
}

func TestPossibleTransitions(t *testing.T) {
	ds := toyDataset(t)
	feats := GenerateFeatures(ds, GenerateOptions{PossibleTransitions: true})

	L := ds.NumLabels()
	trans := 0
	for _, f := range feats {
		if f.Kind == TransitionFeature {
			trans++
		}
	}
	assert.Equal(t, L*L, trans, "possible_transitions must produce exactly L^2 transition features")
}

func TestPossibleStates(t *testing.T) {
	ds := toyDataset(t)
	feats := GenerateFeatures(ds, GenerateOptions{PossibleStates: true})

	states := 0
	for _, f := range feats {
		if f.Kind == StateFeature {
			states++
		}
	}
	// Every observed attribute crossed with every label.
	assert.Equal(t, ds.NumAttrs()*ds.NumLabels(), states)
}

func TestMinFreq(t *testing.T) {
	ds := toyDataset(t)
	feats := GenerateFeatures(ds, GenerateOptions{MinFreq: 1.0})
	for _, f := range feats {
		assert.GreaterOrEqual(t, f.Freq, 1.0)
	}
	// The z->b feature (freq 0.5) must be gone.
	for _, f := range feats {
		assert.False(t, f.Kind == StateFeature && f.Src == 2, "z features should be filtered")
	}
}

func TestInitReferences(t *testing.T) {
	ds := toyDataset(t)
	feats := GenerateFeatures(ds, GenerateOptions{PossibleStates: true, PossibleTransitions: true})
	attrRefs, labelRefs := InitReferences(feats, ds.NumAttrs(), ds.NumLabels())

	states, trans := 0, 0
	for _, f := range feats {
		if f.Kind == StateFeature {
			states++
		} else {
			trans++
		}
	}
	totalAttrRefs := 0
	for a, fids := range attrRefs {
		totalAttrRefs += len(fids)
		for _, fid := range fids {
			assert.Equal(t, StateFeature, feats[fid].Kind)
			assert.Equal(t, a, feats[fid].Src)
		}
	}
	assert.Equal(t, states, totalAttrRefs)

	totalLabelRefs := 0
	for l, fids := range labelRefs {
		totalLabelRefs += len(fids)
		for _, fid := range fids {
			assert.Equal(t, TransitionFeature, feats[fid].Kind)
			assert.Equal(t, l, feats[fid].Src)
		}
	}
	assert.Equal(t, trans, totalLabelRefs)
}

func TestInitReferencesPanicsOnBadSrc(t *testing.T) {
	feats := []Feature{{Kind: StateFeature, Src: 5, Dst: 0}}
	assert.Panics(t, func() { InitReferences(feats, 2, 2) })
}
