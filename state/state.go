package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/calehh/oracle-node/types"
	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/common"
)

var (
	KeyState         = "s"
	KeyRequestBody   = "r%x"
	KeyRequestPrefix = "r"
	KeyStatusIndex   = "q%02d/%016x/%x"
	KeyStatusPrefix  = "q%02d/"
	KeyAccountBody   = "a%x"
	KeyAccountPrefix = "a"
	KeyLockBody      = "l%s"
	KeyLockPrefix    = "l"
)

var (
	ErrStatusRegression = errors.New("request status cannot move backwards")
	ErrRequestIDChanged = errors.New("request index does not match stored record")
)

func requestKey(id common.Address) []byte {
	return []byte(fmt.Sprintf(KeyRequestBody, id.Bytes()))
}

func statusKey(r *types.Request) []byte {
	return []byte(fmt.Sprintf(KeyStatusIndex, uint64(r.Status), r.Index, r.ID.Bytes()))
}

// AllocSequence reserves the next request sequence number. Numbers are never
// reused even when the request they were reserved for is never stored.
func (db *StateDB) AllocSequence() (seq uint64, err error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	err = db.commit(func(_ *iavl.MutableTree, header *StateHeader) error {
		header.Sequence++
		seq = header.Sequence
		return nil
	})
	return
}

func (db *StateDB) GetRequest(id common.Address) (*types.Request, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.getRequest(id)
}

func (db *StateDB) getRequest(id common.Address) (*types.Request, error) {
	val, err := db.get(requestKey(id))
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRequestNotFound, id)
	}
	r := new(types.Request)
	if err = json.Unmarshal(val, r); err != nil {
		return nil, err
	}
	return r, nil
}

// PutRequest stores r and keeps the status index in step with it. A status
// that is not a forward transition of the stored one is rejected.
func (db *StateDB) PutRequest(r *types.Request) error {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	prev, err := db.getRequest(r.ID)
	if err != nil && !errors.Is(err, types.ErrRequestNotFound) {
		return err
	}
	if prev != nil {
		if prev.Index != r.Index {
			return fmt.Errorf("%w: %v", ErrRequestIDChanged, r.ID)
		}
		if prev.Status != r.Status && !prev.Status.CanTransition(r.Status) {
			return fmt.Errorf("%w: %v -> %v", ErrStatusRegression, prev.Status, r.Status)
		}
	}
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return db.commit(func(tree *iavl.MutableTree, _ *StateHeader) error {
		if prev != nil && prev.Status != r.Status {
			if _, _, err := tree.Remove(statusKey(prev)); err != nil {
				return err
			}
		}
		if _, err := tree.Set(requestKey(r.ID), body); err != nil {
			return err
		}
		_, err := tree.Set(statusKey(r), r.ID.Bytes())
		return err
	})
}

// ListRequests returns requests in creation order. A zero status lists all.
func (db *StateDB) ListRequests(status types.RequestStatus) (requests []*types.Request, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	if status == 0 {
		err = db.iteratePrefix([]byte(KeyRequestPrefix), func(_, value []byte) error {
			r := new(types.Request)
			if err := json.Unmarshal(value, r); err != nil {
				return err
			}
			requests = append(requests, r)
			return nil
		})
		sort.Slice(requests, func(i, j int) bool {
			return requests[i].Index < requests[j].Index
		})
		return
	}
	var ids []common.Address
	prefix := []byte(fmt.Sprintf(KeyStatusPrefix, uint64(status)))
	err = db.iteratePrefix(prefix, func(_, value []byte) error {
		ids = append(ids, common.BytesToAddress(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		r, err := db.getRequest(id)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return
}
