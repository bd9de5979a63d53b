package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/calehh/oracle-node/config"
	"github.com/calehh/oracle-node/types"
	cmtos "github.com/cometbft/cometbft/libs/os"
	"github.com/spf13/cobra"
)

type printInfo struct {
	ChainID  string `json:"chain_id"`
	Home     string `json:"home"`
	Accounts int    `json:"accounts"`
}

func displayInfo(info printInfo) error {
	out, err := json.MarshalIndent(info, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stderr, "%s\n", out)
	return err
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the node configuration and genesis files",
	Long: `Write config/config.toml and config/genesis.json under the home directory.
Accounts are funded at genesis with --account <address>=<balance>.`,
	Args: cobra.NoArgs,
	RunE: initRun,
}

func init() {
	initCmd.Flags().BoolP(FlagOverwrite, "o", false, "overwrite the genesis.json file")
	initCmd.Flags().String(FlagChainID, "", "genesis file chain-id, if left blank will be randomly created")
	initCmd.Flags().StringSlice(FlagAccount, nil, "genesis account as address=balance, balance defaults to "+strconv.Itoa(types.DefaultGenesisBalance))
}

func parseGenesisAccount(s string) (acc types.GenesisAccount, err error) {
	addr, balance, found := strings.Cut(s, "=")
	acc.Address = addr
	acc.Balance = types.DefaultGenesisBalance
	if found {
		acc.Balance, err = strconv.ParseUint(balance, 10, 64)
		if err != nil {
			return acc, fmt.Errorf("invalid balance in %q: %w", s, err)
		}
	}
	return
}

func initRun(cmd *cobra.Command, args []string) error {
	chainID, _ := cmd.Flags().GetString(FlagChainID)
	overwrite, _ := cmd.Flags().GetBool(FlagOverwrite)
	accountArgs, _ := cmd.Flags().GetStringSlice(FlagAccount)
	if chainID == "" {
		chainID = fmt.Sprintf("oracle-chain-%v", rand.Uint64())
	}

	cfg := config.DefaultConfig(homeDir)
	cfg.ChainID = chainID
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	genFile := cfg.GenesisFile()
	if cmtos.FileExists(genFile) && !overwrite {
		return fmt.Errorf("genesis file %s already exists, use --%s to replace it", genFile, FlagOverwrite)
	}
	genesis := &types.GenesisDoc{
		GenesisTime: time.Now(),
		ChainID:     chainID,
	}
	for _, s := range accountArgs {
		acc, err := parseGenesisAccount(s)
		if err != nil {
			return err
		}
		genesis.Accounts = append(genesis.Accounts, acc)
	}
	if err := types.ExportGenesisFile(genesis, genFile); err != nil {
		return fmt.Errorf("failed to export genesis file: %w", err)
	}
	if err := config.WriteConfigFile(cfg.ConfigFile(), cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return displayInfo(printInfo{ChainID: chainID, Home: cfg.Home, Accounts: len(genesis.Accounts)})
}
