package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"facetree/internal/cluster"
	"facetree/internal/config"
	"facetree/internal/resultstore"
	"facetree/internal/resultstore/memory"
	"facetree/internal/resultstore/sqlite"
	"facetree/internal/service"
)

var (
	globalConfig  *config.AppConfig
	globalStore   resultstore.Storage
	globalService *service.Service
	globalLogger  *log.Logger
)

// Flags shared by every subcommand.
var (
	cfgPath     string
	quiet       bool
	workersFlag int
	linkageFlag string
	storeFlag   string
	formatFlag  string
	ignoreFlag  []string
)

var rootCmd = &cobra.Command{
	Use:   "facetree",
	Short: "Compare facets of a corpus and cluster them into a tree",
	Long: `facetree scores how differently groups of a corpus (countries, authors,
periods) use a shared vocabulary, builds the pairwise distance matrix and
clusters it hierarchically.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		_ = godotenv.Load()

		var cfg *config.AppConfig
		var err error
		if cfgPath == "" {
			cfg, _, err = config.LoadDefault()
		} else {
			cfg, err = config.Load(cfgPath)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlags(cmd, cfg)
		globalConfig = cfg

		var out io.Writer = os.Stderr
		if quiet {
			out = io.Discard
		}
		globalLogger = log.New(out, "facetree: ", log.LstdFlags)

		store, err := openStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open result store: %w", err)
		}
		globalStore = store

		linkage, err := cluster.ParseLinkage(cfg.Cluster.Linkage)
		if err != nil {
			return err
		}
		globalService = service.New(service.Options{
			Baseline:     cfg.Engine.Baseline,
			MinFields:    cfg.Engine.MinFields,
			Workers:      cfg.Engine.Workers,
			KeepDiagonal: cfg.Engine.KeepDiagonal,
			Linkage:      linkage,
			Ignore:       cfg.Cluster.Ignore,
		}, store, globalLogger)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "Path to YAML config file (default ./facetree.yaml or ~/.config/facetree/config.yaml)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress logging")
	pf.IntVar(&workersFlag, "workers", 0, "Parallel workers per facet pair")
	pf.StringVar(&linkageFlag, "linkage", "", "Linkage: ward, single, complete, average, weighted")
	pf.StringVar(&storeFlag, "store", "", "Result store: none, memory or sqlite")
	pf.StringVar(&formatFlag, "format", "", "Tree output format: text, json, yaml or newick")
	pf.StringSliceVar(&ignoreFlag, "ignore", nil, "Facets to leave out of clustering")
}

func closeStore() {
	if globalStore != nil {
		_ = globalStore.Close()
		globalStore = nil
	}
}

func applyFlags(cmd *cobra.Command, cfg *config.AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("workers") && workersFlag > 0 {
		cfg.Engine.Workers = workersFlag
	}
	if flags.Changed("linkage") {
		cfg.Cluster.Linkage = linkageFlag
	}
	if flags.Changed("store") {
		cfg.Store.Type = storeFlag
	}
	if flags.Changed("format") {
		cfg.Output.Format = formatFlag
	}
	if flags.Changed("keep-diagonal") {
		cfg.Engine.KeepDiagonal = keepDiagonalFlag
	}
	if flags.Changed("ignore") {
		cfg.Cluster.Ignore = ignoreFlag
	}
}

func openStore(cfg config.StoreConfig) (resultstore.Storage, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite":
		path := ""
		if cfg.SQLite != nil {
			path = cfg.SQLite.Path
		}
		return sqlite.NewStorage(sqlite.Config{Path: path})
	default:
		return nil, fmt.Errorf("unknown result store: %s", cfg.Type)
	}
}
