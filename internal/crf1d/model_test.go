package crf1d

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-search/crfsuite-go/internal/quark"
)

// testModel builds a small model: labels {a, b}, attributes {w, x, y, z},
// with attribute x unused so compaction has something to drop.
func testModel(t *testing.T) *Model {
	t.Helper()
	labels := quark.FromStrings([]string{"a", "b"})
	attrs := quark.FromStrings([]string{"w", "x", "y", "z"})
	features := []Feature{
		{Kind: StateFeature, Src: 0, Dst: 0},
		{Kind: StateFeature, Src: 1, Dst: 1}, // zero weight, dropped
		{Kind: StateFeature, Src: 2, Dst: 1},
		{Kind: StateFeature, Src: 3, Dst: 0},
		{Kind: TransitionFeature, Src: 0, Dst: 1},
		{Kind: TransitionFeature, Src: 1, Dst: 0},
	}
	w := []float64{1.5, 0, -0.75, 2.25, 0.5, -0.25}
	return NewModel(features, w, labels, attrs)
}

func TestNewModelCompaction(t *testing.T) {
	m := testModel(t)

	// The zero-weight feature is gone.
	assert.Equal(t, 5, m.NumFeatures())
	// Attribute x was only referenced by the dropped feature; w, y, z stay.
	assert.Equal(t, 3, m.NumAttrs())
	assert.Equal(t, []string{"w", "y", "z"}, m.Attrs().Strings())
	// Labels keep the full table.
	assert.Equal(t, 2, m.NumLabels())

	// Src ids were remapped into the compacted attribute table.
	for fid := 0; fid < m.NumFeatures(); fid++ {
		f := m.Feature(fid)
		if f.Kind == StateFeature {
			assert.Less(t, f.Src, m.NumAttrs())
		} else {
			assert.Less(t, f.Src, m.NumLabels())
		}
		assert.NotZero(t, f.Weight)
	}

	// Reference lists address features of the right kind and source.
	for a := 0; a < m.NumAttrs(); a++ {
		for _, fid := range m.AttrRefs(a) {
			assert.Equal(t, StateFeature, m.Feature(fid).Kind)
			assert.Equal(t, a, m.Feature(fid).Src)
		}
	}
	for l := 0; l < m.NumLabels(); l++ {
		for _, fid := range m.LabelRefs(l) {
			assert.Equal(t, TransitionFeature, m.Feature(fid).Kind)
			assert.Equal(t, l, m.Feature(fid).Src)
		}
	}
}

func TestModelRoundTrip(t *testing.T) {
	m := testModel(t)
	encoded := m.Bytes()

	decoded, err := ModelFromBytes(encoded)
	require.NoError(t, err)

	assert.Equal(t, m.NumFeatures(), decoded.NumFeatures())
	assert.Equal(t, m.NumLabels(), decoded.NumLabels())
	assert.Equal(t, m.NumAttrs(), decoded.NumAttrs())
	assert.Equal(t, m.Labels().Strings(), decoded.Labels().Strings())
	assert.Equal(t, m.Attrs().Strings(), decoded.Attrs().Strings())
	for fid := 0; fid < m.NumFeatures(); fid++ {
		assert.Equal(t, m.Feature(fid), decoded.Feature(fid))
	}
	for l := 0; l < m.NumLabels(); l++ {
		assert.Equal(t, m.LabelRefs(l), decoded.LabelRefs(l))
	}
	for a := 0; a < m.NumAttrs(); a++ {
		assert.Equal(t, m.AttrRefs(a), decoded.AttrRefs(a))
	}
}

func TestModelBytesStableAcrossRoundTrip(t *testing.T) {
	m := testModel(t)
	first := m.Bytes()
	decoded, err := ModelFromBytes(first)
	require.NoError(t, err)
	second := decoded.Bytes()
	assert.True(t, bytes.Equal(first, second), "save -> load -> save must be byte-identical")
}

func TestModelSaveLoadFile(t *testing.T) {
	m := testModel(t)
	path := t.TempDir() + "/model.crf"
	require.NoError(t, m.SaveFile(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(m.Bytes(), loaded.Bytes()))
}

func TestModelFromBytesRejectsBadInput(t *testing.T) {
	m := testModel(t)
	good := m.Bytes()

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		copy(bad, "nope")
		_, err := ModelFromBytes(bad)
		assert.True(t, errors.Is(err, ErrInvalidModel))
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := ModelFromBytes(good[:20])
		assert.True(t, errors.Is(err, ErrInvalidModel))
	})
	t.Run("size mismatch", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad = append(bad, 0)
		_, err := ModelFromBytes(bad)
		assert.True(t, errors.Is(err, ErrInvalidModel))
	})
	t.Run("empty", func(t *testing.T) {
		_, err := ModelFromBytes(nil)
		assert.True(t, errors.Is(err, ErrInvalidModel))
	})
}

func TestModelDump(t *testing.T) {
	m := testModel(t)
	var buf bytes.Buffer
	require.NoError(t, m.Dump(&buf))
	out := buf.String()
	assert.Contains(t, out, "num_features: 5")
	assert.Contains(t, out, "TRANSITIONS")
	assert.Contains(t, out, "STATE_FEATURES")
	assert.Contains(t, out, "a --> b")
}

func TestStrdbRoundTrip(t *testing.T) {
	strs := []string{"B-PER", "I-PER", "O", "", "with spaces and \t tabs"}
	encoded := appendStrdb(nil, strs)
	decoded, err := readStrdb(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, strs, decoded)

	// Encoding is deterministic.
	assert.Equal(t, encoded, appendStrdb(nil, strs))
}
