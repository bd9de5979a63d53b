package handler

import (
	"context"

	"github.com/calehh/oracle-node/tx"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

type ProposeTxHandler struct {
	logger cmtlog.Logger
	oracle Oracle
}

func NewProposeTxHandler(o Oracle, logger cmtlog.Logger) (h *ProposeTxHandler) {
	logger = logger.With("module", "proposeTx")
	h = &ProposeTxHandler{
		logger: logger,
		oracle: o,
	}
	return
}

func (h *ProposeTxHandler) Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error) {
	ptx := btx.Tx.(*tx.ProposeTx)
	err1 := h.oracle.CheckProposeAnswer(sender, ptx.Request, ptx.Answer)
	if err1 != nil {
		h.logger.Info("CheckTx ProposeTx fail", "err", err1)
	}
	return checkResult(err1), nil
}

func (h *ProposeTxHandler) Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error) {
	ptx := btx.Tx.(*tx.ProposeTx)
	p, err := h.oracle.ProposeAnswer(ctx, sender, ptx.Request, ptx.Answer)
	if err != nil {
		return nil, err
	}
	return execResult(p)
}

type ChallengeTxHandler struct {
	logger cmtlog.Logger
	oracle Oracle
}

func NewChallengeTxHandler(o Oracle, logger cmtlog.Logger) (h *ChallengeTxHandler) {
	logger = logger.With("module", "challengeTx")
	h = &ChallengeTxHandler{
		logger: logger,
		oracle: o,
	}
	return
}

func (h *ChallengeTxHandler) Check(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ResponseCheckTx, err error) {
	wtx := btx.Tx.(*tx.ChallengeTx)
	err1 := h.oracle.CheckChallengeAnswer(sender, wtx.Request, wtx.Answer, wtx.Reason)
	if err1 != nil {
		h.logger.Info("CheckTx ChallengeTx fail", "err", err1)
	}
	return checkResult(err1), nil
}

func (h *ChallengeTxHandler) Deliver(ctx context.Context, sender common.Address, btx *tx.OracleTx) (res *abcitypes.ExecTxResult, err error) {
	wtx := btx.Tx.(*tx.ChallengeTx)
	ch, err := h.oracle.ChallengeAnswer(ctx, sender, wtx.Request, wtx.Answer, wtx.Reason)
	if err != nil {
		return nil, err
	}
	return execResult(ch)
}
