package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Long:  "List runs saved in the configured result store, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runListRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show (0 for all)")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runs, err := globalService.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %d facets  %s\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), len(r.Facets), strings.Join(r.Facets, ","))
	}
	return nil
}
