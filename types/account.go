package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Account is a party's position in the escrow ledger. Locked is the sum of
// all open locks owned by the party and is not spendable.
type Account struct {
	Address common.Address `json:"address"`
	Balance uint64         `json:"balance"`
	Locked  uint64         `json:"locked"`
	Frozen  bool           `json:"frozen,omitempty"`
}

func (a *Account) Clone() *Account {
	n := *a
	return &n
}

type LockKind uint8

const (
	LockKindReward         LockKind = 1
	LockKindProposerBond   LockKind = 2
	LockKindChallengerBond LockKind = 3
	LockKindReviewerBond   LockKind = 4
)

func (k LockKind) String() string {
	switch k {
	case LockKindReward:
		return "reward"
	case LockKindProposerBond:
		return "proposer"
	case LockKindChallengerBond:
		return "challenger"
	case LockKindReviewerBond:
		return "reviewer"
	}
	return fmt.Sprintf("LockKind(%d)", uint8(k))
}

// Lock is funds held under a tag until released or forfeited.
type Lock struct {
	Tag    string         `json:"tag"`
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount"`
	Kind   LockKind       `json:"kind"`
}

func (l *Lock) Clone() *Lock {
	n := *l
	return &n
}

func RewardTag(id common.Address) string {
	return fmt.Sprintf("%s/reward", id.Hex())
}

func ProposerBondTag(id common.Address) string {
	return fmt.Sprintf("%s/proposer", id.Hex())
}

func ChallengerBondTag(id common.Address) string {
	return fmt.Sprintf("%s/challenger", id.Hex())
}

func ReviewerBondTag(id common.Address, reviewer common.Address) string {
	return fmt.Sprintf("%s/review/%s", id.Hex(), reviewer.Hex())
}
