// Package dataset holds labeled training sequences and the symbol tables that
// intern their labels and attributes.
package dataset

import (
	"github.com/pkg/errors"

	"github.com/enterprise-search/crfsuite-go/internal/quark"
)

// ErrShapeMismatch is returned when a sequence's item list and label list
// disagree in length.
var ErrShapeMismatch = errors.New("items and labels have different lengths")

// Attribute is one observation at a position: an interned attribute id and an
// observation weight that multiplies state-feature contributions.
type Attribute struct {
	ID    int
	Value float64
}

// Item is the ordered set of attributes observed at one sequence position.
// Duplicate ids are permitted and combine additively.
type Item []Attribute

// Sequence is an ordered list of items with a parallel list of gold label
// ids. Weight scales the sequence's contribution to feature frequencies and
// to the log-likelihood; Group selects the holdout partition.
type Sequence struct {
	Items  []Item
	Labels []int
	Weight float64
	Group  int
}

// Len returns the number of items (T) in the sequence.
func (s *Sequence) Len() int {
	return len(s.Items)
}

// Dataset owns a list of sequences plus the label and attribute symbol
// tables. It is built once during ingestion and read-only afterwards.
type Dataset struct {
	Sequences []Sequence
	Labels    *quark.Quark
	Attrs     *quark.Quark
}

// New returns an empty dataset with fresh symbol tables.
func New() *Dataset {
	return &Dataset{Labels: quark.New(), Attrs: quark.New()}
}

// Append adds a sequence of already-interned items and label ids. Sequences
// with mismatched lengths are rejected; empty sequences are silently skipped.
func (d *Dataset) Append(items []Item, labels []int, weight float64, group int) error {
	if len(items) != len(labels) {
		return errors.Wrapf(ErrShapeMismatch, "%d items vs %d labels", len(items), len(labels))
	}
	if len(items) == 0 {
		return nil
	}
	d.Sequences = append(d.Sequences, Sequence{
		Items:  items,
		Labels: labels,
		Weight: weight,
		Group:  group,
	})
	return nil
}

// Len returns the number of sequences (N).
func (d *Dataset) Len() int {
	return len(d.Sequences)
}

// NumLabels returns the size of the label alphabet (L).
func (d *Dataset) NumLabels() int {
	return d.Labels.Len()
}

// NumAttrs returns the size of the attribute alphabet (A).
func (d *Dataset) NumAttrs() int {
	return d.Attrs.Len()
}

// MaxSeqLength returns the longest sequence length (max T).
func (d *Dataset) MaxSeqLength() int {
	maxLen := 0
	for i := range d.Sequences {
		if l := d.Sequences[i].Len(); l > maxLen {
			maxLen = l
		}
	}
	return maxLen
}

// TotalItems returns the number of items summed over all sequences.
func (d *Dataset) TotalItems() int {
	total := 0
	for i := range d.Sequences {
		total += d.Sequences[i].Len()
	}
	return total
}

// NumGroups returns one past the largest group id seen, the G in holdout
// selection.
func (d *Dataset) NumGroups() int {
	groups := 0
	for i := range d.Sequences {
		if g := d.Sequences[i].Group + 1; g > groups {
			groups = g
		}
	}
	return groups
}

// TrainingView returns a dataset that shares this dataset's symbol tables but
// keeps only the sequences outside the holdout group. A negative holdout
// keeps everything, and the receiver itself is returned.
func (d *Dataset) TrainingView(holdout int) *Dataset {
	if holdout < 0 {
		return d
	}
	view := &Dataset{Labels: d.Labels, Attrs: d.Attrs}
	for i := range d.Sequences {
		if d.Sequences[i].Group != holdout {
			view.Sequences = append(view.Sequences, d.Sequences[i])
		}
	}
	return view
}

// HoldoutView is the complement of TrainingView: only the sequences in the
// holdout group.
func (d *Dataset) HoldoutView(holdout int) *Dataset {
	view := &Dataset{Labels: d.Labels, Attrs: d.Attrs}
	if holdout < 0 {
		return view
	}
	for i := range d.Sequences {
		if d.Sequences[i].Group == holdout {
			view.Sequences = append(view.Sequences, d.Sequences[i])
		}
	}
	return view
}
