// Command crf trains, applies and inspects linear-chain CRF models.
package main

import (
	"flag"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/enterprise-search/crfsuite-go/internal/profilers"
)

var rootCmd = &cobra.Command{
	Use:           "crf",
	Short:         "Linear-chain CRF sequence labeling toolkit",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(newTrainCommand())
	rootCmd.AddCommand(newTagCommand())
	rootCmd.AddCommand(newDumpCommand())

	cobra.OnInitialize(profilers.Setup)

	err := rootCmd.Execute()
	profilers.OnQuit()
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}
