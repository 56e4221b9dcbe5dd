// Package crfsuite is a first-order linear-chain Conditional Random Field
// toolkit: it learns a probabilistic sequence labeler from labeled training
// sequences, persists the learned model, and applies it to tag new
// sequences.
//
// The three top-level operations are training (Trainer), loading a persisted
// model (LoadModel / ModelFromBytes), and tagging or scoring sequences under
// a loaded model (Tagger).
package crfsuite

import (
	"github.com/enterprise-search/crfsuite-go/internal/crf1d"
	"github.com/enterprise-search/crfsuite-go/internal/dataset"
	"github.com/enterprise-search/crfsuite-go/internal/lbfgs"
	"github.com/pkg/errors"
)

// Attribute is one named observation at a sequence position. Value scales
// the attribute's state-feature contributions; most attributes use 1.0.
type Attribute struct {
	Name  string
	Value float64
}

// Item is the set of attributes observed at one position.
type Item []Attribute

// Errors surfaced by the top-level operations. Wrapped errors carry detail;
// test with errors.Is.
var (
	// ErrInvalidModel reports model bytes failing magic, size or offset
	// checks.
	ErrInvalidModel = crf1d.ErrInvalidModel
	// ErrShapeMismatch reports a sequence whose item and label lists
	// disagree in length, or an out-of-range id during tagging.
	ErrShapeMismatch = dataset.ErrShapeMismatch
	// ErrEmpty reports training with zero sequences or zero features.
	ErrEmpty = crf1d.ErrEmpty
	// ErrLineSearchFail reports an L-BFGS step rejected by the line search;
	// the best-weight snapshot is preserved.
	ErrLineSearchFail = lbfgs.ErrLineSearchFail
	// ErrUnknownParam reports an unrecognized hyperparameter name.
	ErrUnknownParam = errors.New("unknown training parameter")
	// ErrBadValue reports a hyperparameter value that fails to parse or is
	// out of range.
	ErrBadValue = errors.New("bad training parameter value")
)
