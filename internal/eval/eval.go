// Package eval accumulates tagging results and reports item accuracy,
// sequence accuracy, and per-label precision/recall/F1 with macro averages.
package eval

import (
	"sort"
)

// LabelMeasure holds per-label counts and the derived scores.
type LabelMeasure struct {
	// NumCorrect counts positions where prediction and reference agree on
	// this label.
	NumCorrect int
	// NumObservation counts occurrences in the reference data.
	NumObservation int
	// NumModel counts predictions of this label.
	NumModel int

	Precision, Recall, FMeasure float64
}

// Performance accumulates per-label and aggregate tagging quality over any
// number of sequences. Call Accumulate per sequence, then Evaluate once.
type Performance struct {
	// NumLabels is the divisor of the macro averages; set it to the model's
	// label count before Evaluate.
	NumLabels int

	byLabel map[string]*LabelMeasure

	itemTotalCorrect     int
	itemTotalNum         int
	itemTotalObservation int
	itemTotalModel       int
	// ItemAccuracy is filled by Evaluate.
	ItemAccuracy float64

	seqTotalCorrect int
	seqTotalNum     int
	// SeqAccuracy is filled by Evaluate.
	SeqAccuracy float64

	MacroPrecision, MacroRecall, MacroFMeasure float64
}

// New returns an empty accumulator for a model with numLabels labels.
func New(numLabels int) *Performance {
	return &Performance{NumLabels: numLabels, byLabel: make(map[string]*LabelMeasure)}
}

func (p *Performance) measure(label string) *LabelMeasure {
	m, found := p.byLabel[label]
	if !found {
		m = &LabelMeasure{}
		p.byLabel[label] = m
	}
	return m
}

// Accumulate records one tagged sequence against its reference labels.
func (p *Performance) Accumulate(reference, prediction []string) {
	matched := 0
	for i, ref := range reference {
		pred := prediction[i]
		p.measure(ref).NumObservation++
		p.measure(pred).NumModel++
		if ref == pred {
			p.measure(ref).NumCorrect++
			matched++
		}
		p.itemTotalNum++
	}
	if matched == len(prediction) {
		p.seqTotalCorrect++
	}
	p.seqTotalNum++
}

// Evaluate computes precision/recall/F1 per label, the macro averages, and
// the item and sequence accuracies.
func (p *Performance) Evaluate() {
	for _, m := range p.byLabel {
		if m.NumObservation == 0 {
			continue
		}
		p.itemTotalCorrect += m.NumCorrect
		p.itemTotalModel += m.NumModel
		p.itemTotalObservation += m.NumObservation

		m.Precision, m.Recall, m.FMeasure = 0, 0, 0
		if m.NumModel > 0 {
			m.Precision = float64(m.NumCorrect) / float64(m.NumModel)
		}
		if m.NumObservation > 0 {
			m.Recall = float64(m.NumCorrect) / float64(m.NumObservation)
		}
		if m.Precision+m.Recall > 0 {
			m.FMeasure = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		p.MacroPrecision += m.Precision
		p.MacroRecall += m.Recall
		p.MacroFMeasure += m.FMeasure
	}
	if p.NumLabels > 0 {
		p.MacroPrecision /= float64(p.NumLabels)
		p.MacroRecall /= float64(p.NumLabels)
		p.MacroFMeasure /= float64(p.NumLabels)
	}
	if p.itemTotalNum > 0 {
		p.ItemAccuracy = float64(p.itemTotalCorrect) / float64(p.itemTotalNum)
	}
	if p.seqTotalNum > 0 {
		p.SeqAccuracy = float64(p.seqTotalCorrect) / float64(p.seqTotalNum)
	}
}

// ItemCounts returns correct and total item counts.
func (p *Performance) ItemCounts() (correct, total int) {
	return p.itemTotalCorrect, p.itemTotalNum
}

// SeqCounts returns correct and total sequence counts.
func (p *Performance) SeqCounts() (correct, total int) {
	return p.seqTotalCorrect, p.seqTotalNum
}

// Labels returns every label seen in a reference or a prediction, in sorted
// order.
func (p *Performance) Labels() []string {
	labels := make([]string, 0, len(p.byLabel))
	for label := range p.byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Measure returns the accumulated counts for a label, or nil if never seen.
func (p *Performance) Measure(label string) *LabelMeasure {
	return p.byLabel[label]
}
