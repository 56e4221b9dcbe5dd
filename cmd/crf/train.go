package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	crfsuite "github.com/enterprise-search/crfsuite-go"
	"github.com/enterprise-search/crfsuite-go/internal/parameters"
)

func newTrainCommand() *cobra.Command {
	var (
		modelPath string
		paramList []string
		numGroups int
		holdout   int
	)

	cmd := &cobra.Command{
		Use:   "train [flags] DATA...",
		Short: "Train a model from labeled sequence data",
		Example: `  crf train -m ner.crf train.data
  crf train -m ner.crf -p c1=0.1 -p max_iterations=50 train.data
  crf train -m ner.crf -g 10 -e 0 train.data`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trainer := crfsuite.NewTrainer()
			for _, p := range paramList {
				for name, value := range parameters.NewFromConfigString(p) {
					if err := trainer.SetParam(name, value); err != nil {
						return err
					}
				}
			}
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				err = trainer.ReadDataset(f, numGroups)
				_ = f.Close()
				if err != nil {
					return err
				}
			}
			klog.Infof("Read %d sequences", trainer.NumSequences())

			start := time.Now()
			result, err := trainer.Train(modelPath, holdout)
			if err != nil {
				return err
			}
			klog.Infof("Training %s after %d iterations in %s: loss=%.6f, active features=%d",
				result.Status, result.Iterations, time.Since(start).Round(time.Millisecond), result.Loss, result.ActiveFeatures)
			if modelPath != "" {
				klog.Infof("Model saved to %s", modelPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "file to write the trained model to")
	cmd.Flags().StringArrayVarP(&paramList, "param", "p", nil, "hyperparameter NAME=VALUE (repeatable; comma-separated pairs accepted)")
	cmd.Flags().IntVarP(&numGroups, "groups", "g", 0, "split sequences round-robin into this many groups")
	cmd.Flags().IntVarP(&holdout, "holdout", "e", -1, "group to hold out for validation (-1 trains on all)")
	return cmd
}
