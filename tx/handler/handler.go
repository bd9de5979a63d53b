package handler

import (
	"context"
	"encoding/json"

	"github.com/calehh/oracle-node/oracle"
	"github.com/calehh/oracle-node/tx"
	"github.com/calehh/oracle-node/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
)

type TxHandler interface {
	Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error)
	Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error)
}

// Oracle is the coordinator surface the handlers drive.
type Oracle interface {
	CheckCreateRequest(requester common.Address, params oracle.CreateRequestParams) error
	CreateRequest(ctx context.Context, requester common.Address, params oracle.CreateRequestParams) (*types.Request, error)
	CheckProposeAnswer(proposer common.Address, id common.Address, answer string) error
	ProposeAnswer(ctx context.Context, proposer common.Address, id common.Address, answer string) (*types.Proposal, error)
	CheckChallengeAnswer(challenger common.Address, id common.Address, counterAnswer, reason string) error
	ChallengeAnswer(ctx context.Context, challenger common.Address, id common.Address, counterAnswer, reason string) (*types.Challenge, error)
	CheckSubmitReview(reviewer common.Address, id common.Address) error
	SubmitReview(ctx context.Context, reviewer common.Address, id common.Address, reason string, supportsChallenge bool) (*types.Review, error)
	CheckFinalize(id common.Address) error
	Finalize(ctx context.Context, id common.Address) (*types.Request, error)
	CheckCancelRequest(caller common.Address, id common.Address) error
	CancelRequest(ctx context.Context, caller common.Address, id common.Address) (*types.Request, error)
	AttachScore(ctx context.Context, id common.Address) (*types.RiskScore, error)
	GetRequest(id common.Address) (*types.Request, error)
}

var _ Oracle = (*oracle.Coordinator)(nil)

func checkResult(err error) *abcitypes.ResponseCheckTx {
	res := &abcitypes.ResponseCheckTx{Code: tx.CodeTypeOK}
	if err != nil {
		res.Code = tx.CodeOf(err)
		res.Codespace = types.CodeOf(err)
		res.Log = err.Error()
	}
	return res
}

func execResult(v any) (res *abcitypes.ExecTxResult, err error) {
	res = &abcitypes.ExecTxResult{Code: tx.CodeTypeOK}
	res.Data, err = json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return
}
