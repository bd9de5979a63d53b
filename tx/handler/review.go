package handler

import (
	"context"

	"github.com/calehh/oracle-node/tx"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

type ReviewTxHandler struct {
	logger cmtlog.Logger
	oracle Oracle
}

func NewReviewTxHandler(o Oracle, logger cmtlog.Logger) (h *ReviewTxHandler) {
	logger = logger.With("module", "reviewTx")
	h = &ReviewTxHandler{
		logger: logger,
		oracle: o,
	}
	return
}

func (h *ReviewTxHandler) Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error) {
	rtx := btx.Tx.(*tx.ReviewTx)
	err1 := h.oracle.CheckSubmitReview(sender, rtx.Request)
	if err1 != nil {
		h.logger.Info("CheckTx ReviewTx fail", "err", err1)
	}
	return checkResult(err1), nil
}

func (h *ReviewTxHandler) Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error) {
	rtx := btx.Tx.(*tx.ReviewTx)
	review, err := h.oracle.SubmitReview(ctx, sender, rtx.Request, rtx.Reason, rtx.SupportsChallenge)
	if err != nil {
		return nil, err
	}
	return execResult(review)
}

// FinalizeTxHandler resolves a request on behalf of anyone; the sender
// does not matter.
type FinalizeTxHandler struct {
	logger cmtlog.Logger
	oracle Oracle
}

func NewFinalizeTxHandler(o Oracle, logger cmtlog.Logger) (h *FinalizeTxHandler) {
	logger = logger.With("module", "finalizeTx")
	h = &FinalizeTxHandler{
		logger: logger,
		oracle: o,
	}
	return
}

func (h *FinalizeTxHandler) Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error) {
	ftx := btx.Tx.(*tx.FinalizeTx)
	err1 := h.oracle.CheckFinalize(ftx.Request)
	if err1 != nil {
		h.logger.Debug("CheckTx FinalizeTx fail", "err", err1)
	}
	return checkResult(err1), nil
}

func (h *FinalizeTxHandler) Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error) {
	ftx := btx.Tx.(*tx.FinalizeTx)
	r, err := h.oracle.Finalize(ctx, ftx.Request)
	if err != nil {
		return nil, err
	}
	return execResult(r)
}
