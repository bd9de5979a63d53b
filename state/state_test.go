package state

import (
	"testing"
	"time"

	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requester = common.HexToAddress("0x0000000000000000000000000000000000000a11")

func newTestDB(t *testing.T) *StateDB {
	db, err := NewMemStateDB(cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRequest(t *testing.T, db *StateDB) *types.Request {
	seq, err := db.AllocSequence()
	require.NoError(t, err)
	return &types.Request{
		ID:              crypto.CreateAddress(requester, seq),
		Index:           seq,
		Requester:       requester,
		Question:        "Will it rain tomorrow?",
		Context:         "city weather",
		AnswerType:      types.AnswerTypeBoolean,
		RewardAmount:    100,
		ChallengeWindow: 60,
		Status:          types.RequestStatusOpen,
		CreatedAt:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestAllocSequence(t *testing.T) {
	db := newTestDB(t)
	first, err := db.AllocSequence()
	require.NoError(t, err)
	second, err := db.AllocSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
	assert.Equal(t, uint64(2), db.Header().Sequence)
	assert.NotEqual(t, common.Hash{}, db.Hash())
}

func TestRequestRoundTrip(t *testing.T) {
	db := newTestDB(t)
	r := newTestRequest(t, db)
	require.NoError(t, db.PutRequest(r))

	got, err := db.GetRequest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = db.GetRequest(common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, types.ErrRequestNotFound)
}

func TestStatusIndexFollowsRequest(t *testing.T) {
	db := newTestDB(t)
	a := newTestRequest(t, db)
	b := newTestRequest(t, db)
	require.NoError(t, db.PutRequest(a))
	require.NoError(t, db.PutRequest(b))

	a.Status = types.RequestStatusProposed
	a.Proposal = &types.Proposal{Proposer: common.HexToAddress("0xb0b"), Answer: "Yes", CreatedAt: a.CreatedAt}
	require.NoError(t, db.PutRequest(a))

	open, err := db.ListRequests(types.RequestStatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, b.ID, open[0].ID)

	proposed, err := db.ListRequests(types.RequestStatusProposed)
	require.NoError(t, err)
	require.Len(t, proposed, 1)
	assert.Equal(t, "Yes", proposed[0].Proposal.Answer)

	all, err := db.ListRequests(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.Index, all[0].Index)
	assert.Equal(t, b.Index, all[1].Index)
}

func TestPutRequestRejectsRegression(t *testing.T) {
	db := newTestDB(t)
	r := newTestRequest(t, db)
	r.Status = types.RequestStatusProposed
	require.NoError(t, db.PutRequest(r))
	before := db.Hash()

	r.Status = types.RequestStatusOpen
	err := db.PutRequest(r)
	assert.ErrorIs(t, err, ErrStatusRegression)
	assert.Equal(t, before, db.Hash())

	stored, err := db.GetRequest(r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusProposed, stored.Status)
}

func TestLedgerPersistence(t *testing.T) {
	db := newTestDB(t)
	alice := &types.Account{Address: requester, Balance: 900, Locked: 100}
	lock := &types.Lock{Tag: "0x01/reward", Owner: requester, Amount: 100, Kind: types.LockKindReward}
	require.NoError(t, db.SaveLedger([]*types.Account{alice}, []*types.Lock{lock}, nil))

	accounts, locks, err := db.LoadLedger()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Len(t, locks, 1)
	assert.Equal(t, alice, accounts[0])
	assert.Equal(t, lock, locks[0])

	alice.Locked = 0
	alice.Balance = 1000
	require.NoError(t, db.SaveLedger([]*types.Account{alice}, nil, []string{lock.Tag}))
	accounts, locks, err = db.LoadLedger()
	require.NoError(t, err)
	assert.Empty(t, locks)
	assert.Equal(t, uint64(1000), accounts[0].Balance)
}

func TestPrefixEndBytes(t *testing.T) {
	assert.Equal(t, []byte("b"), PrefixEndBytes([]byte("a")))
	assert.Equal(t, []byte{0x02}, PrefixEndBytes([]byte{0x01, 0xff}))
	assert.Nil(t, PrefixEndBytes([]byte{0xff}))
	assert.Nil(t, PrefixEndBytes(nil))
}
