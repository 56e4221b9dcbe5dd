package crf1d

import (
	"math"

	"github.com/pkg/errors"

	"github.com/enterprise-search/crfsuite-go/internal/dataset"
)

// taggerLevel tracks which passes have run for the current sequence, so the
// forward/backward tables are not recomputed until the next Set or Viterbi.
type taggerLevel int

const (
	levelNone taggerLevel = iota
	levelSet
	levelAlphaBeta
)

// Tagger applies a loaded model to sequences. It borrows the model
// read-only and owns its context, so concurrent taggers may share one model.
type Tagger struct {
	model *Model
	ctx   *Context
	level taggerLevel
}

// NewTagger builds a tagger for the model and seeds the context's transition
// matrix once: transition scores do not depend on the input sequence.
func NewTagger(m *Model) *Tagger {
	L := m.NumLabels()
	ctx := NewContext(FlagViterbi|FlagMarginals, L, 0)
	ctx.Reset(ResetTrans)
	for i := 0; i < L; i++ {
		row := ctx.TransRow(i)
		for _, fid := range m.LabelRefs(i) {
			f := m.Feature(fid)
			row[f.Dst] = f.Weight
		}
	}
	ctx.ExpTransition()
	return &Tagger{model: m, ctx: ctx}
}

// Set loads a sequence of items into the tagger, computing the state scores
// from the model's state features. An attribute id outside the model's
// attribute table is rejected; mapping unknown attribute strings to no id at
// all is the ingestion layer's concern.
func (tg *Tagger) Set(items []dataset.Item) error {
	if len(items) == 0 {
		return errors.New("cannot tag an empty sequence")
	}
	numAttrs := tg.model.NumAttrs()
	tg.ctx.Resize(len(items))
	tg.ctx.Reset(ResetState)
	for t, item := range items {
		row := tg.ctx.StateRow(t)
		for _, attr := range item {
			if attr.ID < 0 || attr.ID >= numAttrs {
				return errors.Errorf("attribute id %d out of range (%d attributes)", attr.ID, numAttrs)
			}
			for _, fid := range tg.model.AttrRefs(attr.ID) {
				f := tg.model.Feature(fid)
				row[f.Dst] += f.Weight * attr.Value
			}
		}
	}
	tg.level = levelSet
	return nil
}

// Len returns the length of the currently loaded sequence.
func (tg *Tagger) Len() int {
	return tg.ctx.NumItems()
}

// Viterbi fills labels with the most probable label sequence and returns its
// unnormalized log-score. Requires a prior Set.
func (tg *Tagger) Viterbi(labels []int) (float64, error) {
	if tg.level < levelSet {
		return 0, errors.New("no sequence set")
	}
	if len(labels) != tg.Len() {
		return 0, errors.Errorf("label buffer length %d != sequence length %d", len(labels), tg.Len())
	}
	// Viterbi reuses the forward matrix as its DP table, invalidating any
	// earlier forward/backward pass.
	tg.level = levelSet
	return tg.ctx.Viterbi(labels), nil
}

// ensureAlphaBeta runs the forward/backward passes unless they are still
// valid since the last Set or Viterbi.
func (tg *Tagger) ensureAlphaBeta() error {
	if tg.level < levelSet {
		return errors.New("no sequence set")
	}
	if tg.level >= levelAlphaBeta {
		return nil
	}
	tg.ctx.ExpState()
	tg.ctx.AlphaScore()
	tg.ctx.BetaScore()
	tg.level = levelAlphaBeta
	return nil
}

// LogNorm returns ln Z for the loaded sequence.
func (tg *Tagger) LogNorm() (float64, error) {
	if err := tg.ensureAlphaBeta(); err != nil {
		return 0, err
	}
	return tg.ctx.LogNorm(), nil
}

// Score returns the unnormalized log-score of the given label path.
func (tg *Tagger) Score(labels []int) (float64, error) {
	if tg.level < levelSet {
		return 0, errors.New("no sequence set")
	}
	if len(labels) != tg.Len() {
		return 0, errors.Errorf("label path length %d != sequence length %d", len(labels), tg.Len())
	}
	if err := tg.checkLabels(labels); err != nil {
		return 0, err
	}
	return tg.ctx.Score(labels), nil
}

// Probability returns p(labels | items) for the loaded sequence.
func (tg *Tagger) Probability(labels []int) (float64, error) {
	score, err := tg.Score(labels)
	if err != nil {
		return 0, err
	}
	logNorm, err := tg.LogNorm()
	if err != nil {
		return 0, err
	}
	return math.Exp(score - logNorm), nil
}

// Marginal returns the marginal probability of label l at position t.
func (tg *Tagger) Marginal(l, t int) (float64, error) {
	if l < 0 || l >= tg.model.NumLabels() {
		return 0, errors.Errorf("label id %d out of range (%d labels)", l, tg.model.NumLabels())
	}
	if t < 0 || t >= tg.Len() {
		return 0, errors.Errorf("position %d out of range (length %d)", t, tg.Len())
	}
	if err := tg.ensureAlphaBeta(); err != nil {
		return 0, err
	}
	return tg.ctx.StateMarginal(l, t), nil
}

// MarginalPath returns the marginal probability of the partial path
// labels[begin:end].
func (tg *Tagger) MarginalPath(labels []int, begin, end int) (float64, error) {
	if begin < 0 || end > tg.Len() || begin >= end || end > len(labels) {
		return 0, errors.Errorf("bad path range [%d, %d) for length %d", begin, end, tg.Len())
	}
	if err := tg.checkLabels(labels[begin:end]); err != nil {
		return 0, err
	}
	if err := tg.ensureAlphaBeta(); err != nil {
		return 0, err
	}
	return tg.ctx.PathMarginal(labels, begin, end), nil
}

func (tg *Tagger) checkLabels(labels []int) error {
	L := tg.model.NumLabels()
	for _, l := range labels {
		if l < 0 || l >= L {
			return errors.Errorf("label id %d out of range (%d labels)", l, L)
		}
	}
	return nil
}
