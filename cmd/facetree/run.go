package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"facetree/internal/service"
	"facetree/internal/tui"
)

var runTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute distances, cluster them and print the tree",
	Args:  cobra.NoArgs,
	RunE:  runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addInputFlags(runCmd)
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show live progress and browse the result interactively")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	out, closeOut, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()
	in := inputsFromFlags(cmd)

	var res *service.Result
	if runTUI {
		// log lines would tear the alternate screen
		prev := globalLogger.Writer()
		globalLogger.SetOutput(io.Discard)
		defer globalLogger.SetOutput(prev)
		model := tui.New("facetree", globalConfig.Cluster.ColorFraction)
		res, err = tui.Run(cmd.Context(), model, func(ctx context.Context, progress func(service.Event)) (*service.Result, error) {
			return globalService.Run(ctx, in, out, progress)
		})
	} else {
		res, err = globalService.Run(cmd.Context(), in, out, nil)
	}
	if err != nil {
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	if res.Run != nil {
		globalLogger.Printf("run id %s", res.Run.ID)
	}
	if runTUI {
		return nil
	}
	return printTree(cmd.OutOrStdout(), res.Tree, res.Clustered.Names())
}
