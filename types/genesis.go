package types

import (
	"errors"
	"fmt"
	"os"
	"time"

	cmtjson "github.com/cometbft/cometbft/libs/json"
	"github.com/ethereum/go-ethereum/common"
)

const OracleModuleName = "oracle"
const DefaultGenesisBalance = 10000

// GenesisAccount keeps the address as a hex string so the genesis file
// stays readable under cmtjson.
type GenesisAccount struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Name    string `json:"name,omitempty"`
}

func (a GenesisAccount) Addr() common.Address {
	return common.HexToAddress(a.Address)
}

// GenesisDoc defines the initial conditions of an oracle node, in particular
// the balances funded into the ledger on first start.
type GenesisDoc struct {
	GenesisTime time.Time        `json:"genesis_time"`
	ChainID     string           `json:"chain_id"`
	Accounts    []GenesisAccount `json:"accounts"`
}

// SaveAs is a utility method for saving GenesisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := cmtjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, genDocBytes, 0o600)
}

func (ag *GenesisDoc) ValidateAndComplete() error {
	if ag.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}

	seen := make(map[common.Address]struct{}, len(ag.Accounts))
	for i, acc := range ag.Accounts {
		if !common.IsHexAddress(acc.Address) || acc.Addr() == (common.Address{}) {
			return fmt.Errorf("genesis account %d has an invalid address %q", i, acc.Address)
		}
		if _, ok := seen[acc.Addr()]; ok {
			return fmt.Errorf("duplicate genesis account %v", acc.Address)
		}
		seen[acc.Addr()] = struct{}{}
	}

	if ag.GenesisTime.IsZero() {
		ag.GenesisTime = time.Now().Round(0).UTC()
	}

	return nil
}

func GenesisDocFromFile(genFile string) (*GenesisDoc, error) {
	bz, err := os.ReadFile(genFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read genesis file: %w", err)
	}
	genDoc := new(GenesisDoc)
	if err := cmtjson.Unmarshal(bz, genDoc); err != nil {
		return nil, fmt.Errorf("error reading genesis doc at %s: %w", genFile, err)
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return genDoc, nil
}

func ExportGenesisFile(genesis *GenesisDoc, genFile string) error {
	if err := genesis.ValidateAndComplete(); err != nil {
		return err
	}
	return genesis.SaveAs(genFile)
}
