package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultLogLevel      = "info"
	DefaultConfigDir     = "config"
	DefaultDataDir       = "data"
	DefaultConfigFile    = "config.toml"
	DefaultGenesisFile   = "genesis.json"
	DefaultIndexerDBName = "indexer.db"
	MaxBps               = 10000
)

type OracleConfig struct {
	ProposerBond     uint64        `mapstructure:"proposer_bond"`
	ChallengerBond   uint64        `mapstructure:"challenger_bond"`
	ReviewerBond     uint64        `mapstructure:"reviewer_bond"`
	ReviewWindow     time.Duration `mapstructure:"review_window"`
	ReviewQuorum     uint64        `mapstructure:"review_quorum"`
	ReviewerShareBps uint64        `mapstructure:"reviewer_share_bps"`
}

func DefaultOracleConfig() *OracleConfig {
	return &OracleConfig{
		ProposerBond:     100,
		ChallengerBond:   100,
		ReviewerBond:     10,
		ReviewWindow:     24 * time.Hour,
		ReviewQuorum:     0,
		ReviewerShareBps: 2000,
	}
}

func (c *OracleConfig) ValidateBasic() error {
	if c.ProposerBond == 0 || c.ChallengerBond == 0 || c.ReviewerBond == 0 {
		return errors.New("bonds must be positive")
	}
	if c.ReviewWindow <= 0 {
		return errors.New("review_window must be positive")
	}
	if c.ReviewerShareBps > MaxBps {
		return fmt.Errorf("reviewer_share_bps cannot exceed %d", MaxBps)
	}
	return nil
}

type APIConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	Metrics       bool   `mapstructure:"metrics"`
}

type ScoringConfig struct {
	URL      string        `mapstructure:"url"`
	RetryMax int           `mapstructure:"retry_max"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type IndexerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type UpkeepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Home     string `mapstructure:"-"`
	ChainID  string `mapstructure:"chain_id"`
	LogLevel string `mapstructure:"log_level"`

	Oracle  *OracleConfig  `mapstructure:"oracle"`
	API     *APIConfig     `mapstructure:"api"`
	Scoring *ScoringConfig `mapstructure:"scoring"`
	Indexer *IndexerConfig `mapstructure:"indexer"`
	Upkeep  *UpkeepConfig  `mapstructure:"upkeep"`
}

func DefaultConfig(home string) *Config {
	if len(home) == 0 {
		home = os.ExpandEnv("$HOME/.oracle")
	}
	return &Config{
		Home:     home,
		LogLevel: DefaultLogLevel,
		Oracle:   DefaultOracleConfig(),
		API: &APIConfig{
			ListenAddress: "127.0.0.1:8645",
			Metrics:       true,
		},
		Scoring: &ScoringConfig{
			RetryMax: 3,
			Timeout:  10 * time.Second,
		},
		Indexer: &IndexerConfig{
			Enabled: true,
			DBPath:  DefaultIndexerDBName,
		},
		Upkeep: &UpkeepConfig{
			Interval: 5 * time.Second,
		},
	}
}

func (c *Config) SetRoot(home string) {
	c.Home = home
}

func (c *Config) ValidateBasic() error {
	if err := c.Oracle.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [oracle] section: %w", err)
	}
	if c.API.ListenAddress == "" {
		return errors.New("error in [api] section: listen_address is empty")
	}
	if c.Scoring.RetryMax < 0 {
		return errors.New("error in [scoring] section: retry_max cannot be negative")
	}
	if c.Upkeep.Interval <= 0 {
		return errors.New("error in [upkeep] section: interval must be positive")
	}
	return nil
}

func (c *Config) ConfigFile() string {
	return filepath.Join(c.Home, DefaultConfigDir, DefaultConfigFile)
}

func (c *Config) GenesisFile() string {
	return filepath.Join(c.Home, DefaultConfigDir, DefaultGenesisFile)
}

func (c *Config) DBDir() string {
	return filepath.Join(c.Home, DefaultDataDir)
}

// IndexerDBPath resolves a relative indexer path against the data dir.
func (c *Config) IndexerDBPath() string {
	if filepath.IsAbs(c.Indexer.DBPath) || c.Indexer.DBPath == ":memory:" {
		return c.Indexer.DBPath
	}
	return filepath.Join(c.DBDir(), c.Indexer.DBPath)
}

// EnsureDirs creates the config and data directories under Home.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{filepath.Join(c.Home, DefaultConfigDir), c.DBDir()} {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("could not create directory %q: %w", dir, err)
		}
	}
	return nil
}
