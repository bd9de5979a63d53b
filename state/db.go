package state

import (
	"errors"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cosmos/iavl"
	dbm "github.com/cosmos/iavl/db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
)

const (
	DBName      = "oracle"
	DBBackend   = "goleveldb"
	DBCacheSize = 128
)

// StateHeader is the committed summary of the store, rewritten on every
// commit.
type StateHeader struct {
	Version  uint64
	Sequence uint64
	RootHash []byte
	Hash     common.Hash
}

// StateDB is the versioned store behind the oracle. Every mutation is
// committed as a new iavl version; a failed mutation rolls the working tree
// back so nothing partial is ever visible.
type StateDB struct {
	mtx sync.RWMutex

	dir    string
	logger cmtlog.Logger
	db     *iavl.MutableTree

	header *StateHeader
}

func NewStateDB(dir string, logger cmtlog.Logger) (db *StateDB, err error) {
	ldb, err := dbm.NewDB(DBName, DBBackend, dir)
	if err != nil {
		return nil, err
	}
	return newStateDB(dir, ldb, logger)
}

// NewMemStateDB opens a state db that lives only in memory.
func NewMemStateDB(logger cmtlog.Logger) (*StateDB, error) {
	return newStateDB("", dbm.NewMemDB(), logger)
}

func newStateDB(dir string, ldb dbm.DB, logger cmtlog.Logger) (db *StateDB, err error) {
	logger = logger.With("module", "statedb")
	tdb := iavl.NewMutableTree(ldb, DBCacheSize, true, Cometbft2CosmosLogger(logger))
	version, err := tdb.Load()
	if err != nil {
		return nil, err
	}
	logger.Info("load db success", "version", version)
	db = &StateDB{
		dir:    dir,
		logger: logger,
		db:     tdb,
		header: new(StateHeader),
	}
	if err = db.loadHeader(); err != nil {
		logger.Error("load state header fail", "err", err)
		return nil, err
	}
	return
}

func (db *StateDB) Close() (err error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	err = db.db.Close()
	return
}

func (db *StateDB) Header() StateHeader {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return *db.header
}

func (db *StateDB) Hash() common.Hash {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.header.Hash
}

func (db *StateDB) loadHeader() error {
	val, err := db.get([]byte(KeyState))
	if err != nil || val == nil {
		return err
	}
	if err = rlp.DecodeBytes(val, db.header); err != nil {
		return err
	}
	if h := db.db.Hash(); h != nil {
		db.header.RootHash = h
		db.header.Hash = crypto.Keccak256Hash(h)
	}
	return nil
}

func (db *StateDB) get(key []byte) ([]byte, error) {
	val, err := db.db.Get(key)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return val, nil
}

// commit applies fn to the working tree and a copy of the header, then
// saves a new version. Any error from fn or from saving discards the working
// changes. Caller holds mtx.
func (db *StateDB) commit(fn func(tree *iavl.MutableTree, header *StateHeader) error) (err error) {
	saved := false
	defer func() {
		if !saved {
			db.db.Rollback()
		}
	}()
	header := *db.header
	if err = fn(db.db, &header); err != nil {
		return
	}
	header.Version = uint64(db.db.Version()) + 1
	val, err := rlp.EncodeToBytes(&header)
	if err != nil {
		return
	}
	if _, err = db.db.Set([]byte(KeyState), val); err != nil {
		return
	}
	rootHash, _, err := db.db.SaveVersion()
	if err != nil {
		return
	}
	saved = true
	header.RootHash = rootHash
	header.Hash = crypto.Keccak256Hash(rootHash)
	db.header = &header
	return
}

func PrefixEndBytes(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}

	end := make([]byte, len(prefix))
	copy(end, prefix)

	for {
		if end[len(end)-1] != byte(255) {
			end[len(end)-1]++
			break
		}

		end = end[:len(end)-1]

		if len(end) == 0 {
			end = nil
			break
		}
	}

	return end
}

// iteratePrefix calls fn for every key under prefix in ascending order.
// Caller holds mtx.
func (db *StateDB) iteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	it, err := db.db.Iterator(prefix, PrefixEndBytes(prefix), true)
	if err != nil {
		return err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}
