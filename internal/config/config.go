package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// InputsConfig points at the flat files produced by the external collaborators.
type InputsConfig struct {
	Embeddings      string `yaml:"embeddings"`
	GlobalFrequency string `yaml:"global_frequency"`
	// FacetFrequency is a glob; each match holds "word count" lines for the
	// facet named by the file's base name.
	FacetFrequency string `yaml:"facet_frequency"`
	// Facets lists the facets to compare. Empty means every tag in Embeddings.
	Facets     string `yaml:"facets"`
	Vocabulary string `yaml:"vocabulary"`
}

// EngineConfig tunes the pairwise distance computation.
type EngineConfig struct {
	Workers   int    `yaml:"workers"`
	Baseline  string `yaml:"baseline"`
	MinFields int    `yaml:"min_fields"`
	// KeepDiagonal preserves computed self-distances instead of forcing 0.
	KeepDiagonal bool `yaml:"keep_diagonal"`
}

// ClusterConfig selects the linkage criterion and report thresholds.
type ClusterConfig struct {
	Linkage       string   `yaml:"linkage"`
	ColorFraction float64  `yaml:"color_fraction"`
	Ignore        []string `yaml:"ignore"`
}

// SQLiteConfig contains the database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig selects where finished runs are kept.
type StoreConfig struct {
	Type   string        `yaml:"type"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// OutputConfig controls what the CLI writes.
type OutputConfig struct {
	Report string `yaml:"report"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Inputs  InputsConfig  `yaml:"inputs"`
	Engine  EngineConfig  `yaml:"engine"`
	Cluster ClusterConfig `yaml:"cluster"`
	Store   StoreConfig   `yaml:"store"`
	Output  OutputConfig  `yaml:"output"`
}

// Environment variables that override the file.
const (
	EnvWorkers = "FACETREE_WORKERS"
	EnvLinkage = "FACETREE_LINKAGE"
	EnvStore   = "FACETREE_STORE"
	EnvConfig  = "FACETREE_CONFIG"
)

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			if err := applyEnvOverrides(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries $FACETREE_CONFIG, then ./facetree.yaml, then
// ~/.config/facetree/config.yaml. If none exists, it writes defaults to the
// user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		cfg, err := Load(p)
		return cfg, p, err
	}
	cwdPath := "facetree.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "facetree", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Inputs: InputsConfig{
			Embeddings:      "out.embeddings",
			GlobalFrequency: "vocabulary.100.dat",
			FacetFrequency:  "counts/*.counts",
			Vocabulary:      "focused.dat",
		},
		Engine:  EngineConfig{Workers: 4, Baseline: "MAIN", MinFields: 3},
		Cluster: ClusterConfig{Linkage: "ward", ColorFraction: 0.65},
		Store:   StoreConfig{Type: "none"},
		Output:  OutputConfig{Report: "pairwise.distance.out", Format: "text"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.Baseline == "" {
		cfg.Engine.Baseline = "MAIN"
	}
	if cfg.Engine.MinFields < 3 {
		cfg.Engine.MinFields = 3
	}
	if cfg.Cluster.Linkage == "" {
		cfg.Cluster.Linkage = "ward"
	}
	if cfg.Cluster.ColorFraction <= 0 {
		cfg.Cluster.ColorFraction = 0.65
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "none"
	}
	if cfg.Store.Type == "sqlite" && cfg.Store.SQLite == nil {
		cfg.Store.SQLite = &SQLiteConfig{}
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "text"
	}
}

func applyEnvOverrides(cfg *AppConfig) error {
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvWorkers, v)
		}
		cfg.Engine.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvLinkage)); v != "" {
		cfg.Cluster.Linkage = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStore)); v != "" {
		cfg.Store.Type = v
		if v == "sqlite" && cfg.Store.SQLite == nil {
			cfg.Store.SQLite = &SQLiteConfig{}
		}
	}
	return nil
}
