package crf1d

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/enterprise-search/crfsuite-go/internal/dataset"
)

// FeatureKind tags a feature as a state (attribute→label) or transition
// (label→label) feature.
type FeatureKind uint32

const (
	// StateFeature pairs an attribute with the label at the same position.
	StateFeature FeatureKind = iota
	// TransitionFeature pairs the labels of two adjacent positions.
	TransitionFeature
)

// String implements fmt.Stringer.
func (k FeatureKind) String() string {
	switch k {
	case StateFeature:
		return "state"
	case TransitionFeature:
		return "transition"
	}
	return "invalid"
}

// Feature is one parameterized indicator. For a StateFeature, Src is an
// attribute id and Dst a label id; for a TransitionFeature both are label
// ids. Freq is the empirical frequency accumulated during generation;
// Weight is the learned parameter carried by a persisted model.
type Feature struct {
	Kind     FeatureKind
	Src, Dst int
	Freq     float64
	Weight   float64
}

// GenerateOptions are the feature-generation switches.
type GenerateOptions struct {
	// PossibleStates emits zero-frequency state features for every observed
	// attribute crossed with every label.
	PossibleStates bool
	// PossibleTransitions emits zero-frequency transition features for every
	// label pair.
	PossibleTransitions bool
	// MinFreq drops features whose accumulated frequency is below it.
	MinFreq float64
}

type featKey struct {
	kind     FeatureKind
	src, dst int
}

// featSet is the insert-or-accumulate structure used during generation.
// Identity is (kind, src, dst); frequency accumulates across duplicates.
// Iteration order is insertion order, which makes feature ids reproducible
// across runs on the same input.
type featSet struct {
	index map[featKey]int
	feats []Feature
}

func newFeatSet() *featSet {
	return &featSet{index: make(map[featKey]int)}
}

func (s *featSet) add(kind FeatureKind, src, dst int, freq float64) {
	key := featKey{kind, src, dst}
	if i, found := s.index[key]; found {
		s.feats[i].Freq += freq
		return
	}
	s.index[key] = len(s.feats)
	s.feats = append(s.feats, Feature{Kind: kind, Src: src, Dst: dst, Freq: freq})
}

// toVec returns the features with frequency >= minFreq, in insertion order.
func (s *featSet) toVec(minFreq float64) []Feature {
	out := s.feats[:0]
	for _, f := range s.feats {
		if f.Freq >= minFreq {
			out = append(out, f)
		}
	}
	return out
}

// GenerateFeatures enumerates the state and transition features of the
// dataset. A sentinel "previous label" of L marks the beginning of a
// sequence, so no transition feature fires into the first position.
func GenerateFeatures(ds *dataset.Dataset, opts GenerateOptions) []Feature {
	N := ds.Len()
	L := ds.NumLabels()
	klog.V(1).Infof("Generating features: N=%d, L=%d", N, L)

	set := newFeatSet()
	for s := 0; s < N; s++ {
		seq := &ds.Sequences[s]
		prev := L
		for t := 0; t < seq.Len(); t++ {
			curr := seq.Labels[t]
			if prev != L {
				set.add(TransitionFeature, prev, curr, seq.Weight)
			}
			for _, attr := range seq.Items[t] {
				set.add(StateFeature, attr.ID, curr, seq.Weight*attr.Value)
				if opts.PossibleStates {
					for l := 0; l < L; l++ {
						set.add(StateFeature, attr.ID, l, 0)
					}
				}
			}
			prev = curr
		}
	}
	if opts.PossibleTransitions {
		for i := 0; i < L; i++ {
			for j := 0; j < L; j++ {
				set.add(TransitionFeature, i, j, 0)
			}
		}
	}
	feats := set.toVec(opts.MinFreq)
	klog.V(1).Infof("Generated %d features (%d before min_freq=%g)", len(feats), len(set.index), opts.MinFreq)
	return feats
}

// InitReferences builds the reverse indices: attrRefs[a] lists the ids of
// state features with Src=a, labelRefs[l] the ids of transition features
// with Src=l. Lists keep feature-id order. A src outside [0,A) or [0,L) is a
// generation bug and panics.
func InitReferences(features []Feature, numAttrs, numLabels int) (attrRefs, labelRefs [][]int) {
	attrRefs = make([][]int, numAttrs)
	labelRefs = make([][]int, numLabels)
	for fid, f := range features {
		switch f.Kind {
		case StateFeature:
			if f.Src >= numAttrs {
				exceptions.Panicf("state feature %d has src=%d, want < %d attributes", fid, f.Src, numAttrs)
			}
			attrRefs[f.Src] = append(attrRefs[f.Src], fid)
		case TransitionFeature:
			if f.Src >= numLabels {
				exceptions.Panicf("transition feature %d has src=%d, want < %d labels", fid, f.Src, numLabels)
			}
			labelRefs[f.Src] = append(labelRefs[f.Src], fid)
		default:
			exceptions.Panicf("unexpected feature kind %d", f.Kind)
		}
	}
	return
}
