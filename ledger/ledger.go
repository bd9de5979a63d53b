package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrLockNotFound         = errors.New("lock not found")
	ErrLockExists           = errors.New("lock already exists")
	ErrAccountFrozen        = errors.New("account frozen")
	ErrUnbalancedSettlement = errors.New("settlement does not balance")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidRecipient     = errors.New("invalid recipient")
	ErrBalanceOverflow      = errors.New("balance overflow")
	ErrReceiptReverted      = errors.New("receipt already reverted")
)

// Store persists ledger changes. A nil Store keeps the ledger in memory.
type Store interface {
	LoadLedger() ([]*types.Account, []*types.Lock, error)
	SaveLedger(accounts []*types.Account, locks []*types.Lock, released []string) error
}

// Ledger holds party balances and the funds locked under tags. Balances
// never go negative and every operation either applies fully or not at all.
type Ledger struct {
	mtx sync.Mutex

	logger cmtlog.Logger
	store  Store

	accounts map[common.Address]*types.Account
	locks    map[string]*types.Lock
	receipts uint64
}

func NewLedger(store Store, logger cmtlog.Logger) (l *Ledger, err error) {
	l = &Ledger{
		logger:   logger.With("module", "ledger"),
		store:    store,
		accounts: make(map[common.Address]*types.Account),
		locks:    make(map[string]*types.Lock),
	}
	if store == nil {
		return
	}
	accounts, locks, err := store.LoadLedger()
	if err != nil {
		return nil, err
	}
	for _, acnt := range accounts {
		l.accounts[acnt.Address] = acnt
	}
	for _, lock := range locks {
		l.locks[lock.Tag] = lock
	}
	l.logger.Info("ledger loaded", "accounts", len(accounts), "locks", len(locks))
	return
}

// batch stages changes on copies so a failing operation leaves the ledger
// untouched.
type batch struct {
	l        *Ledger
	accounts map[common.Address]*types.Account
	locks    map[string]*types.Lock
	released map[string]struct{}
}

func (l *Ledger) newBatch() *batch {
	return &batch{
		l:        l,
		accounts: make(map[common.Address]*types.Account),
		locks:    make(map[string]*types.Lock),
		released: make(map[string]struct{}),
	}
}

func (b *batch) account(addr common.Address) *types.Account {
	if acnt, ok := b.accounts[addr]; ok {
		return acnt
	}
	acnt, ok := b.l.accounts[addr]
	if ok {
		acnt = acnt.Clone()
	} else {
		acnt = &types.Account{Address: addr}
	}
	b.accounts[addr] = acnt
	return acnt
}

func (b *batch) lock(tag string) (*types.Lock, bool) {
	if _, ok := b.released[tag]; ok {
		return nil, false
	}
	if lock, ok := b.locks[tag]; ok {
		return lock, true
	}
	lock, ok := b.l.locks[tag]
	return lock, ok
}

func (b *batch) debit(addr common.Address, amount uint64) error {
	acnt := b.account(addr)
	if acnt.Balance < amount {
		return fmt.Errorf("%w: %v has %d, needs %d", ErrInsufficientFunds, addr, acnt.Balance, amount)
	}
	acnt.Balance -= amount
	return nil
}

func (b *batch) credit(addr common.Address, amount uint64) error {
	acnt := b.account(addr)
	if acnt.Frozen {
		return fmt.Errorf("%w: %v", ErrAccountFrozen, addr)
	}
	if acnt.Balance+amount < acnt.Balance {
		return fmt.Errorf("%w: %v", ErrBalanceOverflow, addr)
	}
	acnt.Balance += amount
	return nil
}

func (b *batch) hold(owner common.Address, amount uint64, tag string, kind types.LockKind) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if _, ok := b.lock(tag); ok {
		return fmt.Errorf("%w: %s", ErrLockExists, tag)
	}
	if err := b.debit(owner, amount); err != nil {
		return err
	}
	b.account(owner).Locked += amount
	delete(b.released, tag)
	b.locks[tag] = &types.Lock{Tag: tag, Owner: owner, Amount: amount, Kind: kind}
	return nil
}

// take removes the lock under tag and returns it. The owner's locked total
// drops by the lock amount.
func (b *batch) take(tag string) (*types.Lock, error) {
	lock, ok := b.lock(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockNotFound, tag)
	}
	owner := b.account(lock.Owner)
	if owner.Locked < lock.Amount {
		return nil, fmt.Errorf("%w: locked total of %v below lock %s", ErrInsufficientFunds, lock.Owner, tag)
	}
	owner.Locked -= lock.Amount
	delete(b.locks, tag)
	b.released[tag] = struct{}{}
	return lock, nil
}

// commit persists the batch and then installs it. Caller holds mtx.
func (l *Ledger) commit(b *batch) error {
	if l.store != nil {
		accounts := make([]*types.Account, 0, len(b.accounts))
		for _, acnt := range b.accounts {
			accounts = append(accounts, acnt)
		}
		sort.Slice(accounts, func(i, j int) bool {
			return accounts[i].Address.Cmp(accounts[j].Address) < 0
		})
		locks := make([]*types.Lock, 0, len(b.locks))
		for _, lock := range b.locks {
			locks = append(locks, lock)
		}
		released := make([]string, 0, len(b.released))
		for tag := range b.released {
			if _, ok := l.locks[tag]; ok {
				released = append(released, tag)
			}
		}
		if err := l.store.SaveLedger(accounts, locks, released); err != nil {
			return err
		}
	}
	for addr, acnt := range b.accounts {
		l.accounts[addr] = acnt
	}
	for tag := range b.released {
		delete(l.locks, tag)
	}
	for tag, lock := range b.locks {
		l.locks[tag] = lock
	}
	return nil
}

// Deposit credits freshly funded tokens to party.
func (l *Ledger) Deposit(party common.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	b := l.newBatch()
	if err := b.credit(party, amount); err != nil {
		return err
	}
	if err := l.commit(b); err != nil {
		return err
	}
	l.logger.Debug("deposit", "party", party, "amount", amount)
	return nil
}

// Escrow holds a requester's reward under tag.
func (l *Ledger) Escrow(party common.Address, amount uint64, tag string) error {
	return l.Lock(party, amount, tag, types.LockKindReward)
}

// Lock moves amount from party's balance into a lock under tag.
func (l *Ledger) Lock(party common.Address, amount uint64, tag string, kind types.LockKind) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	b := l.newBatch()
	if err := b.hold(party, amount, tag, kind); err != nil {
		return err
	}
	if err := l.commit(b); err != nil {
		return err
	}
	l.logger.Debug("lock", "party", party, "amount", amount, "tag", tag, "kind", kind)
	return nil
}

func (l *Ledger) transfer(tag string, recipient *common.Address, forfeit bool) (amount uint64, err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	b := l.newBatch()
	lock, err := b.take(tag)
	if err != nil {
		return 0, err
	}
	to := lock.Owner
	if recipient != nil {
		to = *recipient
	}
	if to == (common.Address{}) || (forfeit && to == lock.Owner) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRecipient, to)
	}
	if err = b.credit(to, lock.Amount); err != nil {
		return 0, err
	}
	if err = l.commit(b); err != nil {
		return 0, err
	}
	l.logger.Debug("unlock", "tag", tag, "recipient", to, "amount", lock.Amount, "forfeit", forfeit)
	return lock.Amount, nil
}

// Release pays the lock under tag to recipient.
func (l *Ledger) Release(tag string, recipient common.Address) (uint64, error) {
	return l.transfer(tag, &recipient, false)
}

// Forfeit pays the lock under tag to a recipient other than its owner.
func (l *Ledger) Forfeit(tag string, recipient common.Address) (uint64, error) {
	return l.transfer(tag, &recipient, true)
}

// Refund returns the lock under tag to its owner.
func (l *Ledger) Refund(tag string) (uint64, error) {
	return l.transfer(tag, nil, false)
}

func (l *Ledger) setFrozen(party common.Address, frozen bool) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	b := l.newBatch()
	b.account(party).Frozen = frozen
	if err := l.commit(b); err != nil {
		return err
	}
	l.logger.Info("account frozen state changed", "party", party, "frozen", frozen)
	return nil
}

// Freeze blocks every credit to party until Unfreeze.
func (l *Ledger) Freeze(party common.Address) error {
	return l.setFrozen(party, true)
}

func (l *Ledger) Unfreeze(party common.Address) error {
	return l.setFrozen(party, false)
}

// Balance returns party's spendable balance.
func (l *Ledger) Balance(party common.Address) uint64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if acnt, ok := l.accounts[party]; ok {
		return acnt.Balance
	}
	return 0
}

// Account returns a copy of party's account.
func (l *Ledger) Account(party common.Address) *types.Account {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if acnt, ok := l.accounts[party]; ok {
		return acnt.Clone()
	}
	return &types.Account{Address: party}
}

// Locked returns the amount held under tag.
func (l *Ledger) Locked(tag string) (uint64, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	lock, ok := l.locks[tag]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrLockNotFound, tag)
	}
	return lock.Amount, nil
}

// Supply is the sum of all balances and all locks.
func (l *Ledger) Supply() (total uint64) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for _, acnt := range l.accounts {
		total += acnt.Balance
	}
	for _, lock := range l.locks {
		total += lock.Amount
	}
	return
}
