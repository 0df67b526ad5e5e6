package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var distanceCmd = &cobra.Command{
	Use:   "distance",
	Short: "Compute the pairwise facet distance report",
	Long:  "Score every ordered pair of facets over the vocabulary and write one \"a b distance: x\" line per pair.",
	Args:  cobra.NoArgs,
	RunE:  runDistance,
}

func init() {
	rootCmd.AddCommand(distanceCmd)
	addInputFlags(distanceCmd)
}

func runDistance(cmd *cobra.Command, args []string) error {
	out, closeOut, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()
	if out == nil {
		return fmt.Errorf("no report destination: set output.report or --out")
	}

	ds, err := globalService.Load(inputsFromFlags(cmd))
	if err != nil {
		return err
	}
	m, err := globalService.Distances(cmd.Context(), ds, out, nil)
	if err != nil {
		return err
	}
	if err := m.VerifySymmetric(); err != nil {
		return err
	}
	globalLogger.Printf("wrote %d distances for %d facets", m.Size()*m.Size(), m.Size())
	return closeOut()
}
