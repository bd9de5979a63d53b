package handler

import (
	"context"
	"fmt"

	"github.com/calehh/oracle-node/oracle"
	"github.com/calehh/oracle-node/tx"
	"github.com/calehh/oracle-node/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

type CreateRequestTxHandler struct {
	logger cmtlog.Logger
	oracle Oracle
}

func NewCreateRequestTxHandler(o Oracle, logger cmtlog.Logger) (h *CreateRequestTxHandler) {
	logger = logger.With("module", "requestTx")
	h = &CreateRequestTxHandler{
		logger: logger,
		oracle: o,
	}
	return
}

func createRequestParams(rtx *tx.CreateRequestTx) (params oracle.CreateRequestParams, err error) {
	answerType, ok := types.ParseAnswerType(rtx.AnswerType)
	if !ok {
		err = fmt.Errorf("%w: unknown answer type %q", types.ErrInvalidParameters, rtx.AnswerType)
		return
	}
	params = oracle.CreateRequestParams{
		Question:        rtx.Question,
		Context:         rtx.Context,
		TruthMeaning:    rtx.TruthMeaning,
		AnswerType:      answerType,
		ChallengeWindow: rtx.ChallengeWindow,
		RewardAmount:    rtx.Reward,
	}
	return
}

func (h *CreateRequestTxHandler) Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error) {
	params, err1 := createRequestParams(btx.Tx.(*tx.CreateRequestTx))
	if err1 == nil {
		err1 = h.oracle.CheckCreateRequest(sender, params)
	}
	if err1 != nil {
		h.logger.Info("CheckTx CreateRequestTx fail", "err", err1)
	}
	return checkResult(err1), nil
}

func (h *CreateRequestTxHandler) Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error) {
	params, err := createRequestParams(btx.Tx.(*tx.CreateRequestTx))
	if err != nil {
		return nil, err
	}
	r, err := h.oracle.CreateRequest(ctx, sender, params)
	if err != nil {
		return nil, err
	}
	return execResult(r)
}

type CancelTxHandler struct {
	logger cmtlog.Logger
	oracle Oracle
}

func NewCancelTxHandler(o Oracle, logger cmtlog.Logger) (h *CancelTxHandler) {
	logger = logger.With("module", "cancelTx")
	h = &CancelTxHandler{
		logger: logger,
		oracle: o,
	}
	return
}

func (h *CancelTxHandler) Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error) {
	wtx := btx.Tx.(*tx.CancelTx)
	err1 := h.oracle.CheckCancelRequest(sender, wtx.Request)
	if err1 != nil {
		h.logger.Info("CheckTx CancelTx fail", "err", err1)
	}
	return checkResult(err1), nil
}

func (h *CancelTxHandler) Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error) {
	wtx := btx.Tx.(*tx.CancelTx)
	r, err := h.oracle.CancelRequest(ctx, sender, wtx.Request)
	if err != nil {
		return nil, err
	}
	return execResult(r)
}

// ScoreTxHandler attaches an advisory risk score. Anyone may ask for one.
type ScoreTxHandler struct {
	logger cmtlog.Logger
	oracle Oracle
}

func NewScoreTxHandler(o Oracle, logger cmtlog.Logger) (h *ScoreTxHandler) {
	logger = logger.With("module", "scoreTx")
	h = &ScoreTxHandler{
		logger: logger,
		oracle: o,
	}
	return
}

func (h *ScoreTxHandler) Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error) {
	stx := btx.Tx.(*tx.ScoreTx)
	_, err1 := h.oracle.GetRequest(stx.Request)
	return checkResult(err1), nil
}

func (h *ScoreTxHandler) Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error) {
	stx := btx.Tx.(*tx.ScoreTx)
	score, err := h.oracle.AttachScore(ctx, stx.Request)
	if err != nil {
		return nil, err
	}
	return execResult(score)
}
