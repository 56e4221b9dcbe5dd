package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	crfsuite "github.com/enterprise-search/crfsuite-go"
	"github.com/enterprise-search/crfsuite-go/internal/eval"
)

func newTagCommand() *cobra.Command {
	var (
		modelPath   string
		evaluate    bool
		reference   bool
		probability bool
		marginal    bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "tag -m MODEL [flags] [DATA...]",
		Short: "Assign labels to the sequences in the data files",
		Long: "Assign suitable labels to the sequences in the given data files.\n" +
			"If no file is given (or the file is '-'), data is read from stdin.\n" +
			"With -t, the performance of the model on the labeled data is reported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := crfsuite.LoadModel(modelPath)
			if err != nil {
				return err
			}
			tagger := model.Tagger()
			perf := eval.New(len(model.Labels()))
			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			opts := tagOptions{
				evaluate:    evaluate,
				reference:   reference,
				probability: probability,
				marginal:    marginal,
				quiet:       quiet,
			}
			if len(args) == 0 {
				args = []string{"-"}
			}
			for _, path := range args {
				var r io.Reader
				if path == "-" {
					r = cmd.InOrStdin()
				} else {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				if err := tagStream(r, out, tagger, perf, opts); err != nil {
					return err
				}
			}
			if evaluate {
				perf.Evaluate()
				out.Flush()
				renderPerformance(cmd.OutOrStdout(), perf)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "model file to load")
	cmd.Flags().BoolVarP(&evaluate, "test", "t", false, "report the performance of the model on the data")
	cmd.Flags().BoolVarP(&reference, "reference", "r", false, "output the reference labels next to the predictions")
	cmd.Flags().BoolVarP(&probability, "probability", "p", false, "output the probability of each label sequence")
	cmd.Flags().BoolVarP(&marginal, "marginal", "i", false, "output the marginal probability of each item's predicted label")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress tagging output (useful with -t)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

type tagOptions struct {
	evaluate, reference, probability, marginal, quiet bool
}

// tagStream reads sequences in the tab-separated text format, tags each one,
// and writes the requested outputs.
func tagStream(r io.Reader, out *bufio.Writer, tagger *crfsuite.Tagger, perf *eval.Performance, opts tagOptions) error {
	var items []crfsuite.Item
	var refs []string

	flush := func() error {
		if len(items) == 0 {
			return nil
		}
		predicted, err := tagger.Tag(items)
		if err != nil {
			return err
		}
		if opts.evaluate {
			perf.Accumulate(refs, predicted)
		}
		if !opts.quiet {
			if opts.probability {
				p, err := tagger.Probability(predicted)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "@probability\t%f\n", p)
			}
			for t, label := range predicted {
				if opts.reference {
					fmt.Fprintf(out, "%s\t", refs[t])
				}
				out.WriteString(label)
				if opts.marginal {
					p, err := tagger.Marginal(label, t)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "\t%f", p)
				}
				out.WriteByte('\n')
			}
			out.WriteByte('\n')
		}
		items, refs = nil, nil
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		label, attrs, _ := strings.Cut(line, "\t")
		item := make(crfsuite.Item, 0, strings.Count(attrs, "\t")+1)
		for _, field := range strings.Split(attrs, "\t") {
			if field == "" {
				continue
			}
			item = append(item, parseAttribute(field))
		}
		items = append(items, item)
		refs = append(refs, label)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

// parseAttribute splits a `NAME:VALUE` field; a bare name gets value 1.0.
func parseAttribute(field string) crfsuite.Attribute {
	if idx := strings.LastIndexByte(field, ':'); idx >= 0 {
		if v, err := strconv.ParseFloat(field[idx+1:], 64); err == nil {
			return crfsuite.Attribute{Name: field[:idx], Value: v}
		}
	}
	return crfsuite.Attribute{Name: field, Value: 1.0}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderPerformance prints the per-label measures and the aggregate scores.
func renderPerformance(w io.Writer, perf *eval.Performance) {
	tbl := table.New().
		Headers("Label", "Match", "Model", "Ref", "Precision", "Recall", "F1").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
	for _, label := range perf.Labels() {
		m := perf.Measure(label)
		if m.NumObservation == 0 {
			tbl.Row(label, strconv.Itoa(m.NumCorrect), strconv.Itoa(m.NumModel), "0", "------", "------", "------")
			continue
		}
		tbl.Row(label,
			strconv.Itoa(m.NumCorrect), strconv.Itoa(m.NumModel), strconv.Itoa(m.NumObservation),
			fmt.Sprintf("%.4f", m.Precision), fmt.Sprintf("%.4f", m.Recall), fmt.Sprintf("%.4f", m.FMeasure))
	}
	fmt.Fprintln(w, tbl)
	itemCorrect, itemTotal := perf.ItemCounts()
	seqCorrect, seqTotal := perf.SeqCounts()
	fmt.Fprintf(w, "Macro-average precision, recall, F1: (%f, %f, %f)\n", perf.MacroPrecision, perf.MacroRecall, perf.MacroFMeasure)
	fmt.Fprintf(w, "Item accuracy: %d/%d => %f\n", itemCorrect, itemTotal, perf.ItemAccuracy)
	fmt.Fprintf(w, "Sequence accuracy: %d/%d => %f\n", seqCorrect, seqTotal, perf.SeqAccuracy)
}
