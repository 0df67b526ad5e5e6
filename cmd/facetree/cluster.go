package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	clusterRunID     string
	clusterReportOut string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster [report]",
	Short: "Cluster a distance report or a stored run",
	Long: `Read a distance report (default output.report), drop ignored facets and
build the merge tree. With --run, rebuild a stored run's matrix and print its
tree; --out also writes that matrix back as a distance report.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	clusterCmd.Flags().StringVar(&clusterRunID, "run", "", "Stored run id, or \"latest\"")
	clusterCmd.Flags().StringVarP(&clusterReportOut, "out", "o", "", "With --run, write the stored distances as a report (- for stdout)")
}

func runCluster(cmd *cobra.Command, args []string) error {
	if clusterRunID != "" {
		res, err := globalService.RestoreRun(cmd.Context(), clusterRunID)
		if err != nil {
			return err
		}
		if clusterReportOut != "" {
			if err := writeStoredReport(cmd, clusterReportOut, res.Matrix); err != nil {
				return err
			}
		}
		return printTree(cmd.OutOrStdout(), res.Tree, res.Clustered.Names())
	}
	if clusterReportOut != "" {
		return fmt.Errorf("--out needs --run")
	}

	path := globalConfig.Output.Report
	if len(args) == 1 {
		path = args[0]
	}
	res, err := globalService.ClusterReport(cmd.Context(), path)
	if err != nil {
		return err
	}
	return printTree(cmd.OutOrStdout(), res.Tree, res.Clustered.Names())
}
