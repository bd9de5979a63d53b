package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/calehh/oracle-node/ledger"
	"github.com/calehh/oracle-node/oracle"
	"github.com/calehh/oracle-node/state"
	"github.com/calehh/oracle-node/tx"
	"github.com/calehh/oracle-node/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

func (app *OracleApp) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	path := req.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	q, ok := app.queriers[path]
	if !ok {
		res = &abcitypes.ResponseQuery{}
		res.Code = tx.CodeTypeNotFound
		res.Log = "unknown query path"
		return
	}
	res, err = q.Query(ctx, req)
	return
}

type Querier interface {
	Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error)
}

type AccountQuerier struct {
	ledger *ledger.Ledger
	logger cmtlog.Logger
}

func NewAccountQuerier(ldg *ledger.Ledger, logger cmtlog.Logger) (q *AccountQuerier) {
	q = &AccountQuerier{
		ledger: ldg,
		logger: logger,
	}
	return
}

// Query returns the account behind a 20 byte address. Unknown addresses
// report an empty account.
func (q *AccountQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	if len(req.Data) != common.AddressLength {
		res.Code = tx.CodeTypeInput
		res.Log = "address must be 20 bytes"
		return
	}
	acnt := q.ledger.Account(common.BytesToAddress(req.Data))
	res.Value, err = json.Marshal(acnt)
	if err != nil {
		q.logger.Error("marshal account fail", "err", err)
		res.Code = tx.CodeTypeInternal
		err = nil
	}
	return
}

type RequestQuerier struct {
	oracle *oracle.Coordinator
	logger cmtlog.Logger
}

func NewRequestQuerier(c *oracle.Coordinator, logger cmtlog.Logger) (q *RequestQuerier) {
	q = &RequestQuerier{
		oracle: c,
		logger: logger,
	}
	return
}

// Query answers three shapes of data: a 20 byte request id, a single status
// byte, or nothing to list every request.
func (q *RequestQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	var v any
	switch len(req.Data) {
	case common.AddressLength:
		v, err = q.oracle.GetRequest(common.BytesToAddress(req.Data))
	case 0:
		v, err = q.oracle.ListRequests(0)
	case 1:
		v, err = q.oracle.ListRequests(types.RequestStatus(req.Data[0]))
	default:
		res.Code = tx.CodeTypeInput
		res.Log = "malformed request query"
		return
	}
	if err != nil {
		res.Code = tx.CodeOf(err)
		res.Codespace = types.CodeOf(err)
		res.Log = err.Error()
		err = nil
		return
	}
	res.Value, err = json.Marshal(v)
	if err != nil {
		q.logger.Error("marshal requests fail", "err", err)
		res.Code = tx.CodeTypeInternal
		err = nil
	}
	return
}

type StatusQuerier struct {
	db      *state.StateDB
	chainID string
}

func NewStatusQuerier(db *state.StateDB, chainID string) *StatusQuerier {
	return &StatusQuerier{db: db, chainID: chainID}
}

type NodeStatus struct {
	ChainID  string      `json:"chain_id"`
	Version  uint64      `json:"version"`
	Sequence uint64      `json:"sequence"`
	Hash     common.Hash `json:"hash"`
}

func (q *StatusQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	header := q.db.Header()
	res.Height = int64(header.Version)
	res.Value, err = json.Marshal(NodeStatus{
		ChainID:  q.chainID,
		Version:  header.Version,
		Sequence: header.Sequence,
		Hash:     header.Hash,
	})
	return
}
