package crfsuite

import (
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"

	"github.com/enterprise-search/crfsuite-go/internal/crf1d"
	"github.com/enterprise-search/crfsuite-go/internal/dataset"
	"github.com/enterprise-search/crfsuite-go/internal/eval"
	"github.com/enterprise-search/crfsuite-go/internal/lbfgs"
)

// trainingOptions are the named hyperparameters accepted by
// Trainer.SetParam, with their defaults.
type trainingOptions struct {
	c1                  float64
	c2                  float64
	memory              int
	epsilon             float64
	past                int
	delta               float64
	maxIterations       int
	linesearchMax       int
	possibleStates      bool
	possibleTransitions bool
	minFreq             float64
}

func defaultTrainingOptions() trainingOptions {
	return trainingOptions{
		c1:            0,
		c2:            1.0,
		memory:        6,
		epsilon:       1e-5,
		past:          10,
		delta:         1e-5,
		maxIterations: 100,
		linesearchMax: 20,
	}
}

// Trainer accumulates labeled sequences and fits a model with L-BFGS.
type Trainer struct {
	opts trainingOptions
	ds   *dataset.Dataset
}

// NewTrainer returns a trainer with default hyperparameters and an empty
// dataset.
func NewTrainer() *Trainer {
	return &Trainer{opts: defaultTrainingOptions(), ds: dataset.New()}
}

// SetParam sets a named hyperparameter from its string value. Unrecognized
// names fail with ErrUnknownParam, unparseable or out-of-range values with
// ErrBadValue.
func (t *Trainer) SetParam(name, value string) error {
	parseFloat := func(min float64) (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(v) || v < min {
			return 0, errors.Wrapf(ErrBadValue, "%s=%q", name, value)
		}
		return v, nil
	}
	parseInt := func(min int) (int, error) {
		v, err := strconv.Atoi(value)
		if err != nil || v < min {
			return 0, errors.Wrapf(ErrBadValue, "%s=%q", name, value)
		}
		return v, nil
	}
	parseBool := func() (bool, error) {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return false, errors.Wrapf(ErrBadValue, "%s=%q", name, value)
		}
		return v, nil
	}

	var err error
	switch name {
	case "c1":
		t.opts.c1, err = parseFloat(0)
	case "c2":
		t.opts.c2, err = parseFloat(0)
	case "memory":
		t.opts.memory, err = parseInt(1)
	case "epsilon":
		t.opts.epsilon, err = parseFloat(0)
	case "past":
		t.opts.past, err = parseInt(0)
	case "delta":
		t.opts.delta, err = parseFloat(0)
	case "max_iterations":
		t.opts.maxIterations, err = parseInt(1)
	case "linesearch_max":
		t.opts.linesearchMax, err = parseInt(1)
	case "possible_states":
		t.opts.possibleStates, err = parseBool()
	case "possible_transitions":
		t.opts.possibleTransitions, err = parseBool()
	case "min_freq":
		t.opts.minFreq, err = parseFloat(0)
	default:
		return errors.Wrapf(ErrUnknownParam, "%q", name)
	}
	return err
}

// Append adds one labeled sequence with weight 1.0. Labels and attribute
// names are interned into the trainer's symbol tables. A length mismatch
// fails with ErrShapeMismatch; an empty sequence is silently skipped.
func (t *Trainer) Append(items []Item, labels []string, group int) error {
	return t.AppendWeighted(items, labels, 1.0, group)
}

// AppendWeighted is Append with an explicit sequence weight.
func (t *Trainer) AppendWeighted(items []Item, labels []string, weight float64, group int) error {
	if len(items) != len(labels) {
		return errors.Wrapf(ErrShapeMismatch, "%d items vs %d labels", len(items), len(labels))
	}
	interned := make([]dataset.Item, len(items))
	labelIDs := make([]int, len(labels))
	for i, item := range items {
		converted := make(dataset.Item, len(item))
		for j, attr := range item {
			converted[j] = dataset.Attribute{ID: t.ds.Attrs.GetOrCreate(attr.Name), Value: attr.Value}
		}
		interned[i] = converted
		labelIDs[i] = t.ds.Labels.GetOrCreate(labels[i])
	}
	return t.ds.Append(interned, labelIDs, weight, group)
}

// ReadDataset ingests sequences in the tab-separated text format, assigning
// groups round-robin over numGroups.
func (t *Trainer) ReadDataset(r io.Reader, numGroups int) error {
	return t.ds.Read(r, numGroups)
}

// NumSequences returns the number of appended sequences.
func (t *Trainer) NumSequences() int {
	return t.ds.Len()
}

// TrainResult reports how training ended.
type TrainResult struct {
	// Status is the optimizer's stop reason. StatusMaxIterations means
	// convergence was not reached within the iteration budget; it is a
	// status, not an error.
	Status lbfgs.Status
	// Iterations is the number of accepted L-BFGS steps.
	Iterations int
	// Loss is the best regularized negative log-likelihood found.
	Loss float64
	// ActiveFeatures counts nonzero weights in the final model.
	ActiveFeatures int
	// Model is the trained model, also written to the train path.
	Model *Model
}

// regularizedObjective wraps the encoder's negative log-likelihood with the
// L2 penalty. The L1 penalty, when configured, is the optimizer's concern
// (OWL-QN).
type regularizedObjective struct {
	encoder *crf1d.Encoder
	ds      *dataset.Dataset
	c2      float64
}

// Evaluate implements lbfgs.Objective.
func (o *regularizedObjective) Evaluate(x, g []float64) float64 {
	fx := o.encoder.ValueAndGradient(o.ds, x, g)
	if o.c2 > 0 {
		floats.AddScaled(g, 2*o.c2, x)
		fx += o.c2 * floats.Dot(x, x)
	}
	return fx
}

// Train fits the model on every appended sequence except those in the
// holdout group (holdout < 0 trains on all), writes it to path (unless path
// is empty), and reports validation quality on the held-out group.
//
// A line-search failure still produces a model from the best weights found,
// alongside the wrapped ErrLineSearchFail.
func (t *Trainer) Train(path string, holdout int) (*TrainResult, error) {
	if t.ds.Len() == 0 {
		return nil, errors.Wrap(ErrEmpty, "no training sequences appended")
	}
	trainset := t.ds.TrainingView(holdout)
	if trainset.Len() == 0 {
		return nil, errors.Wrapf(ErrEmpty, "holdout group %d leaves no training sequences", holdout)
	}
	klog.V(1).Infof("Training on %d of %d sequences (%d items, %d labels, %d attributes)",
		trainset.Len(), t.ds.Len(), trainset.TotalItems(), t.ds.NumLabels(), t.ds.NumAttrs())

	encoder := crf1d.NewEncoder(crf1d.GenerateOptions{
		PossibleStates:      t.opts.possibleStates,
		PossibleTransitions: t.opts.possibleTransitions,
		MinFreq:             t.opts.minFreq,
	})
	if err := encoder.SetData(trainset); err != nil {
		return nil, err
	}
	K := encoder.NumFeatures()
	klog.V(1).Infof("Number of features: %d", K)

	objective := &regularizedObjective{encoder: encoder, ds: trainset, c2: t.opts.c2}
	params := lbfgs.DefaultParams()
	params.Memory = t.opts.memory
	params.Epsilon = t.opts.epsilon
	params.Past = t.opts.past
	params.Delta = t.opts.delta
	params.MaxIterations = t.opts.maxIterations
	params.LinesearchMaxIterations = t.opts.linesearchMax
	params.OrthantwiseC = t.opts.c1

	w := make([]float64, K)
	bestW := make([]float64, K)
	bestFx := math.Inf(1)
	activeFeatures := 0
	progress := func(p lbfgs.Progress) bool {
		if p.FX < bestFx {
			bestFx = p.FX
			copy(bestW, p.X)
		}
		active := 0
		for _, wi := range p.X {
			if wi != 0 {
				active++
			}
		}
		activeFeatures = active
		klog.Infof("Iter %3d: loss=%.6f, active=%d/%d, |x|=%.4f, |g|=%.4f, step=%.4g, linesearch=%d",
			p.Iteration, p.FX, active, K, p.XNorm, p.GNorm, p.Step, p.LineSearchSteps)
		return true
	}

	result, optErr := lbfgs.Minimize(objective, w, params, progress)
	if math.IsInf(bestFx, 1) {
		// No step was accepted (e.g. converged at the start): keep w as-is.
		copy(bestW, w)
		bestFx = result.FX
	}
	klog.V(1).Infof("Training finished: %s after %d iterations, loss=%.6f", result.Status, result.Iterations, bestFx)

	model := &Model{m: crf1d.NewModel(encoder.Features(), bestW, t.ds.Labels, t.ds.Attrs)}
	if path != "" {
		if err := model.Save(path); err != nil {
			return nil, err
		}
	}
	if optErr == nil && holdout >= 0 {
		t.reportHoldout(model, holdout)
	}

	res := &TrainResult{
		Status:         result.Status,
		Iterations:     result.Iterations,
		Loss:           bestFx,
		ActiveFeatures: activeFeatures,
		Model:          model,
	}
	if optErr != nil {
		return res, optErr
	}
	return res, nil
}

// reportHoldout tags the held-out sequences with the trained model and logs
// the resulting performance.
func (t *Trainer) reportHoldout(model *Model, holdout int) {
	held := t.ds.HoldoutView(holdout)
	if held.Len() == 0 {
		klog.Warningf("Holdout group %d has no sequences, skipping validation", holdout)
		return
	}
	perf := eval.New(model.m.NumLabels())
	tagger := model.Tagger()
	for i := range held.Sequences {
		seq := &held.Sequences[i]
		reference := make([]string, seq.Len())
		for j, l := range seq.Labels {
			reference[j], _ = t.ds.Labels.ToString(l)
		}
		predicted, err := tagger.tagInterned(seq.Items, t.ds.Attrs)
		if err != nil {
			klog.Errorf("Failed to tag holdout sequence %d: %+v", i, err)
			continue
		}
		perf.Accumulate(reference, predicted)
	}
	perf.Evaluate()
	itemCorrect, itemTotal := perf.ItemCounts()
	seqCorrect, seqTotal := perf.SeqCounts()
	klog.Infof("Holdout group %d: item accuracy %d/%d = %.4f, sequence accuracy %d/%d = %.4f, macro F1 = %.4f",
		holdout, itemCorrect, itemTotal, perf.ItemAccuracy, seqCorrect, seqTotal, perf.SeqAccuracy, perf.MacroFMeasure)
}
