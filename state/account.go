package state

import (
	"fmt"

	"github.com/calehh/oracle-node/types"
	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/rlp"
)

func accountKey(acnt *types.Account) []byte {
	return []byte(fmt.Sprintf(KeyAccountBody, acnt.Address.Bytes()))
}

func lockKey(tag string) []byte {
	return []byte(fmt.Sprintf(KeyLockBody, tag))
}

// LoadLedger reads every stored account and open lock.
func (db *StateDB) LoadLedger() (accounts []*types.Account, locks []*types.Lock, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	err = db.iteratePrefix([]byte(KeyAccountPrefix), func(_, value []byte) error {
		acnt := new(types.Account)
		if err := rlp.DecodeBytes(value, acnt); err != nil {
			return err
		}
		accounts = append(accounts, acnt)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	err = db.iteratePrefix([]byte(KeyLockPrefix), func(_, value []byte) error {
		lock := new(types.Lock)
		if err := rlp.DecodeBytes(value, lock); err != nil {
			return err
		}
		locks = append(locks, lock)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return
}

// SaveLedger writes the given accounts and locks and drops the released
// lock tags in a single version.
func (db *StateDB) SaveLedger(accounts []*types.Account, locks []*types.Lock, released []string) error {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	return db.commit(func(tree *iavl.MutableTree, _ *StateHeader) error {
		for _, acnt := range accounts {
			val, err := rlp.EncodeToBytes(acnt)
			if err != nil {
				return err
			}
			if _, err = tree.Set(accountKey(acnt), val); err != nil {
				return err
			}
		}
		for _, lock := range locks {
			val, err := rlp.EncodeToBytes(lock)
			if err != nil {
				return err
			}
			if _, err = tree.Set(lockKey(lock.Tag), val); err != nil {
				return err
			}
		}
		for _, tag := range released {
			if _, _, err := tree.Remove(lockKey(tag)); err != nil {
				return err
			}
		}
		return nil
	})
}
