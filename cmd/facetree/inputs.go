package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"facetree/internal/cluster"
	"facetree/internal/matrix"
	"facetree/internal/report"
	"facetree/internal/service"
)

// Input path flags shared by distance and run.
var (
	embeddingsFlag   string
	globalFreqFlag   string
	facetFreqFlag    string
	facetsFlag       string
	vocabularyFlag   string
	reportOutFlag    string
	keepDiagonalFlag bool
)

func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&embeddingsFlag, "embeddings", "", "Embedding file (tag word v1 v2 ...)")
	f.StringVar(&globalFreqFlag, "global", "", "Global frequency file (count word)")
	f.StringVar(&facetFreqFlag, "facet-counts", "", "Glob of per-facet frequency files (word count)")
	f.StringVar(&facetsFlag, "facets", "", "Facet list, one per line (default: every tag in the embedding file)")
	f.StringVar(&vocabularyFlag, "vocabulary", "", "Vocabulary to score, one word per line")
	f.StringVarP(&reportOutFlag, "out", "o", "", "Distance report path, - for stdout")
	f.BoolVar(&keepDiagonalFlag, "keep-diagonal", false, "Keep computed self-distances instead of 0")
}

func inputsFromFlags(cmd *cobra.Command) service.Inputs {
	in := service.Inputs{
		Embeddings:      globalConfig.Inputs.Embeddings,
		GlobalFrequency: globalConfig.Inputs.GlobalFrequency,
		FacetFrequency:  globalConfig.Inputs.FacetFrequency,
		Facets:          globalConfig.Inputs.Facets,
		Vocabulary:      globalConfig.Inputs.Vocabulary,
	}
	flags := cmd.Flags()
	if flags.Changed("embeddings") {
		in.Embeddings = embeddingsFlag
	}
	if flags.Changed("global") {
		in.GlobalFrequency = globalFreqFlag
	}
	if flags.Changed("facet-counts") {
		in.FacetFrequency = facetFreqFlag
	}
	if flags.Changed("facets") {
		in.Facets = facetsFlag
	}
	if flags.Changed("vocabulary") {
		in.Vocabulary = vocabularyFlag
	}
	return in
}

// reportWriter opens the distance report destination. The returned close
// func is always non-nil.
func reportWriter(cmd *cobra.Command) (io.Writer, func() error, error) {
	path := globalConfig.Output.Report
	if cmd.Flags().Changed("out") {
		path = reportOutFlag
	}
	switch path {
	case "":
		return nil, func() error { return nil }, nil
	case "-":
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating report: %w", err)
	}
	return f, f.Close, nil
}

func writeStoredReport(cmd *cobra.Command, path string, m *matrix.Matrix) error {
	if path == "-" {
		return globalService.WriteReport(cmd.OutOrStdout(), m)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := globalService.WriteReport(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printTree(w io.Writer, tree *cluster.MergeTree, facets []string) error {
	doc := report.NewTreeDocument(tree, facets, globalConfig.Cluster.ColorFraction)
	return report.WriteTree(w, doc, globalConfig.Output.Format)
}
