package main

import (
	"github.com/spf13/cobra"

	crfsuite "github.com/enterprise-search/crfsuite-go"
)

func newDumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump MODEL",
		Short: "Print a human-readable listing of a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := crfsuite.LoadModel(args[0])
			if err != nil {
				return err
			}
			return model.Dump(cmd.OutOrStdout())
		},
	}
}
