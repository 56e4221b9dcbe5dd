package crf1d

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/enterprise-search/crfsuite-go/internal/dataset"
)

// ErrEmpty is returned when training is attempted with no sequences or when
// feature generation produces nothing to fit.
var ErrEmpty = errors.New("nothing to train on")

// Encoder glues the feature store to the context: it is the only writer of
// the context's state/trans scores and the only reader of its expectations.
// The dataset is borrowed read-only for the duration of training.
type Encoder struct {
	opts GenerateOptions

	features  []Feature
	attrRefs  [][]int
	labelRefs [][]int

	ctx       *Context
	numLabels int
	numAttrs  int
}

// NewEncoder returns an encoder that will generate features with the given
// options on SetData.
func NewEncoder(opts GenerateOptions) *Encoder {
	return &Encoder{opts: opts}
}

// SetData generates the feature table from the dataset, builds the reverse
// indices, and allocates a context sized for the longest sequence.
func (e *Encoder) SetData(ds *dataset.Dataset) error {
	if ds.Len() == 0 {
		return errors.Wrap(ErrEmpty, "dataset has no sequences")
	}
	L := ds.NumLabels()
	A := ds.NumAttrs()
	klog.V(1).Infof("Setting data: L=%d, A=%d, N=%d, maxT=%d", L, A, ds.Len(), ds.MaxSeqLength())

	e.numLabels = L
	e.numAttrs = A
	e.ctx = NewContext(FlagViterbi|FlagMarginals, L, ds.MaxSeqLength())
	e.features = GenerateFeatures(ds, e.opts)
	if len(e.features) == 0 {
		return errors.Wrap(ErrEmpty, "feature generation produced no features")
	}
	e.attrRefs, e.labelRefs = InitReferences(e.features, A, L)
	return nil
}

// NumFeatures returns K, the dimension of the weight vector.
func (e *Encoder) NumFeatures() int {
	return len(e.features)
}

// NumLabels returns L.
func (e *Encoder) NumLabels() int {
	return e.numLabels
}

// Features returns the generated feature table, indexed by feature id.
func (e *Encoder) Features() []Feature {
	return e.features
}

// AttrRefs returns the per-attribute reverse index.
func (e *Encoder) AttrRefs() [][]int {
	return e.attrRefs
}

// LabelRefs returns the per-label reverse index.
func (e *Encoder) LabelRefs() [][]int {
	return e.labelRefs
}

// stateScore adds each attribute's weighted state-feature contributions into
// the context's state rows.
func (e *Encoder) stateScore(seq *dataset.Sequence, w []float64) {
	for t := 0; t < seq.Len(); t++ {
		row := e.ctx.StateRow(t)
		for _, attr := range seq.Items[t] {
			for _, fid := range e.attrRefs[attr.ID] {
				row[e.features[fid].Dst] += w[fid] * attr.Value
			}
		}
	}
}

// transitionScore writes the transition-feature weights into the context's
// trans matrix. Transition scores are shared by every sequence in a batch.
func (e *Encoder) transitionScore(w []float64) {
	for i := 0; i < e.numLabels; i++ {
		row := e.ctx.TransRow(i)
		for _, fid := range e.labelRefs[i] {
			row[e.features[fid].Dst] = w[fid]
		}
	}
}

// modelExpectation accumulates into g each feature's expected count under
// the current parameters, read from the context's marginals.
func (e *Encoder) modelExpectation(seq *dataset.Sequence, g []float64, weight float64) {
	L := e.numLabels
	for t := 0; t < seq.Len(); t++ {
		mexp := e.ctx.mexpState[t*L : (t+1)*L]
		for _, attr := range seq.Items[t] {
			for _, fid := range e.attrRefs[attr.ID] {
				g[fid] += mexp[e.features[fid].Dst] * attr.Value * weight
			}
		}
	}
	for i := 0; i < L; i++ {
		mexp := e.ctx.mexpTrans[i*L : (i+1)*L]
		for _, fid := range e.labelRefs[i] {
			g[fid] += mexp[e.features[fid].Dst] * weight
		}
	}
}

// ValueAndGradient computes the negative log-likelihood of the dataset under
// w and writes its gradient into g. The gradient is model expectation minus
// observation expectation; regularization is the driver's concern.
//
// Sequences contribute in dataset order, so results are bitwise reproducible
// for identical input order.
func (e *Encoder) ValueAndGradient(ds *dataset.Dataset, w, g []float64) float64 {
	// Observation expectations enter with a minus sign.
	for fid := range e.features {
		g[fid] = -e.features[fid].Freq
	}

	// Transition scores are independent of the input sequence: set once.
	e.ctx.Reset(ResetTrans)
	e.transitionScore(w)
	e.ctx.ExpTransition()

	logl := 0.0
	for s := range ds.Sequences {
		seq := &ds.Sequences[s]
		e.ctx.Resize(seq.Len())
		e.ctx.Reset(ResetState)
		e.stateScore(seq, w)
		e.ctx.ExpState()

		e.ctx.AlphaScore()
		e.ctx.BetaScore()
		e.ctx.Marginals()

		logp := e.ctx.Score(seq.Labels) - e.ctx.LogNorm()
		logl += logp * seq.Weight

		e.modelExpectation(seq, g, seq.Weight)
	}
	return -logl
}
