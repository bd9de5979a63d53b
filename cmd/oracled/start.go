package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/calehh/oracle-node/app"
	"github.com/calehh/oracle-node/config"
	"github.com/calehh/oracle-node/types"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
)

var homeDir string

var rootCmd = &cobra.Command{
	Use:   "oracled",
	Short: "Optimistic oracle node",
	Long: `An optimistic oracle: requesters escrow rewards for questions,
proposers answer under bond, and disputed answers are settled by review.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&homeDir, FlagHome, "d", "", "home directory")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the oracle node",
	Args:  cobra.NoArgs,
	RunE:  startRun,
}

func startRun(cmd *cobra.Command, args []string) error {
	home := homeDir
	if home == "" {
		home = config.DefaultConfig("").Home
	}
	cfg, err := config.LoadConfig(home)
	if err != nil {
		return err
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(cfg.LogLevel, logger, config.DefaultLogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	genesis, err := types.GenesisDocFromFile(cfg.GenesisFile())
	if err != nil {
		return err
	}
	if cfg.ChainID == "" {
		cfg.ChainID = genesis.ChainID
	}

	oracleApp, err := app.NewOracleApp(cfg, genesis, logger)
	if err != nil {
		return fmt.Errorf("new app: %w", err)
	}
	defer oracleApp.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err = oracleApp.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}
	srv := app.NewServer(oracleApp, cfg.API, logger)
	err = oracleApp.Run(ctx, srv)
	logger.Info("shut down", "err", err)
	return err
}
