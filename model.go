package crfsuite

import (
	"io"

	"github.com/pkg/errors"

	"github.com/enterprise-search/crfsuite-go/internal/crf1d"
	"github.com/enterprise-search/crfsuite-go/internal/dataset"
	"github.com/enterprise-search/crfsuite-go/internal/generics"
	"github.com/enterprise-search/crfsuite-go/internal/quark"
)

// Model is a trained, immutable sequence labeler. Any number of taggers may
// share one model concurrently, each owning its working state.
type Model struct {
	m *crf1d.Model
}

// LoadModel reads a persisted model from path. Bytes failing validation
// yield ErrInvalidModel.
func LoadModel(path string) (*Model, error) {
	m, err := crf1d.LoadModel(path)
	if err != nil {
		return nil, err
	}
	return &Model{m: m}, nil
}

// ModelFromBytes decodes a persisted model from memory.
func ModelFromBytes(buf []byte) (*Model, error) {
	m, err := crf1d.ModelFromBytes(buf)
	if err != nil {
		return nil, err
	}
	return &Model{m: m}, nil
}

// Bytes returns the model's serialized form. Serialization is deterministic
// and round-trips through ModelFromBytes byte-for-byte.
func (m *Model) Bytes() []byte {
	return m.m.Bytes()
}

// Save writes the model to path.
func (m *Model) Save(path string) error {
	return m.m.SaveFile(path)
}

// Labels returns the label alphabet in id order.
func (m *Model) Labels() []string {
	return append([]string(nil), m.m.Labels().Strings()...)
}

// NumFeatures returns the number of active features.
func (m *Model) NumFeatures() int {
	return m.m.NumFeatures()
}

// Dump writes a human-readable listing of the model to w.
func (m *Model) Dump(w io.Writer) error {
	return m.m.Dump(w)
}

// Tagger returns a fresh tagger over this model.
func (m *Model) Tagger() *Tagger {
	return &Tagger{model: m, tg: crf1d.NewTagger(m.m)}
}

// Tagger applies a model to sequences. It is stateful: Tag (or Set) loads a
// sequence, and Probability / Marginal then refer to that sequence. A Tagger
// is not safe for concurrent use; create one per goroutine.
type Tagger struct {
	model *Model
	tg    *crf1d.Tagger
}

// intern maps attribute names to the model's attribute ids. Attributes
// absent from the model's table contribute nothing and are dropped.
func (t *Tagger) intern(items []Item) []dataset.Item {
	attrs := t.model.m.Attrs()
	converted := make([]dataset.Item, len(items))
	for i, item := range items {
		ci := make(dataset.Item, 0, len(item))
		for _, attr := range item {
			if id, found := attrs.ToID(attr.Name); found {
				ci = append(ci, dataset.Attribute{ID: id, Value: attr.Value})
			}
		}
		converted[i] = ci
	}
	return converted
}

// Set loads a sequence of items without decoding it, for callers that only
// need probabilities or marginals.
func (t *Tagger) Set(items []Item) error {
	if len(items) == 0 {
		return errors.Wrap(ErrShapeMismatch, "empty sequence")
	}
	return t.tg.Set(t.intern(items))
}

// Tag loads the sequence and returns its most probable label sequence.
func (t *Tagger) Tag(items []Item) ([]string, error) {
	if err := t.Set(items); err != nil {
		return nil, err
	}
	return t.viterbiLabels()
}

func (t *Tagger) viterbiLabels() ([]string, error) {
	ids := make([]int, t.tg.Len())
	if _, err := t.tg.Viterbi(ids); err != nil {
		return nil, err
	}
	labels := t.model.m.Labels()
	return generics.SliceMap(ids, func(id int) string {
		s, _ := labels.ToString(id)
		return s
	}), nil
}

// Probability returns p(labels | items) for the sequence loaded by the last
// Tag or Set.
func (t *Tagger) Probability(labels []string) (float64, error) {
	ids, err := t.labelIDs(labels)
	if err != nil {
		return 0, err
	}
	return t.tg.Probability(ids)
}

// Marginal returns the marginal probability of label at position pos in the
// sequence loaded by the last Tag or Set.
func (t *Tagger) Marginal(label string, pos int) (float64, error) {
	id, found := t.model.m.Labels().ToID(label)
	if !found {
		return 0, errors.Wrapf(ErrShapeMismatch, "unknown label %q", label)
	}
	return t.tg.Marginal(id, pos)
}

func (t *Tagger) labelIDs(labels []string) ([]int, error) {
	table := t.model.m.Labels()
	ids := make([]int, len(labels))
	for i, label := range labels {
		id, found := table.ToID(label)
		if !found {
			return nil, errors.Wrapf(ErrShapeMismatch, "unknown label %q", label)
		}
		ids[i] = id
	}
	return ids, nil
}

// tagInterned tags items whose attribute ids were interned against a
// different attribute table (the trainer's), remapping them through their
// names into the model's table.
func (t *Tagger) tagInterned(items []dataset.Item, attrs *quark.Quark) ([]string, error) {
	modelAttrs := t.model.m.Attrs()
	converted := make([]dataset.Item, len(items))
	for i, item := range items {
		ci := make(dataset.Item, 0, len(item))
		for _, attr := range item {
			name, found := attrs.ToString(attr.ID)
			if !found {
				continue
			}
			if id, ok := modelAttrs.ToID(name); ok {
				ci = append(ci, dataset.Attribute{ID: id, Value: attr.Value})
			}
		}
		converted[i] = ci
	}
	if err := t.tg.Set(converted); err != nil {
		return nil, err
	}
	return t.viterbiLabels()
}
