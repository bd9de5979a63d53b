package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type CreateRequestParams struct {
	Question        string           `json:"question"`
	Context         string           `json:"context"`
	TruthMeaning    string           `json:"truthMeaning"`
	AnswerType      types.AnswerType `json:"answerType"`
	ChallengeWindow uint64           `json:"challengeWindow"`
	RewardAmount    uint64           `json:"rewardAmount"`
}

func (p *CreateRequestParams) validate(requester common.Address) error {
	if requester == (common.Address{}) {
		return fmt.Errorf("%w: requester", types.ErrInvalidParty)
	}
	if p.RewardAmount == 0 {
		return fmt.Errorf("%w: reward must be positive", types.ErrInvalidParameters)
	}
	if p.ChallengeWindow == 0 {
		return fmt.Errorf("%w: challenge window must be positive", types.ErrInvalidParameters)
	}
	if p.ChallengeWindow > types.MaxChallengeWindow {
		return fmt.Errorf("%w: challenge window exceeds %d seconds", types.ErrInvalidParameters, types.MaxChallengeWindow)
	}
	if strings.TrimSpace(p.Question) == "" {
		return fmt.Errorf("%w: question is empty", types.ErrInvalidParameters)
	}
	if strings.TrimSpace(p.Context) == "" {
		return fmt.Errorf("%w: context is empty", types.ErrInvalidParameters)
	}
	if !p.AnswerType.Valid() {
		return fmt.Errorf("%w: unknown answer type %v", types.ErrInvalidParameters, p.AnswerType)
	}
	return nil
}

// CheckCreateRequest validates a request without touching funds or storage.
func (c *Coordinator) CheckCreateRequest(requester common.Address, params CreateRequestParams) error {
	return params.validate(requester)
}

// CreateRequest escrows the reward and stores an Open request. If the
// reward cannot be escrowed nothing is stored.
func (c *Coordinator) CreateRequest(ctx context.Context, requester common.Address, params CreateRequestParams) (*types.Request, error) {
	if err := params.validate(requester); err != nil {
		return nil, err
	}
	seq, err := c.repo.AllocSequence()
	if err != nil {
		return nil, err
	}
	r := &types.Request{
		ID:              crypto.CreateAddress(requester, seq),
		Index:           seq,
		Requester:       requester,
		Question:        params.Question,
		Context:         params.Context,
		TruthMeaning:    params.TruthMeaning,
		AnswerType:      params.AnswerType,
		RewardAmount:    params.RewardAmount,
		ChallengeWindow: params.ChallengeWindow,
		Status:          types.RequestStatusPending,
		CreatedAt:       c.now(),
	}
	unlock := c.locks.lock(r.ID)
	defer unlock()

	tag := types.RewardTag(r.ID)
	if err = c.ledger.Escrow(requester, r.RewardAmount, tag); err != nil {
		c.logger.Info("escrow reward fail", "request", r.ID, "requester", requester, "err", err)
		return nil, fmt.Errorf("%w: %w", types.ErrEscrowFailed, err)
	}
	r.Status = types.RequestStatusOpen
	if err = c.repo.PutRequest(r); err != nil {
		c.refund(tag)
		return nil, err
	}
	c.logger.Info("request registered", "request", r.ID, "requester", requester, "reward", r.RewardAmount, "window", r.ChallengeWindow)
	c.emit(ctx, &types.EventRequestRegistered{
		Request:         r.ID,
		Requester:       requester,
		Question:        r.Question,
		AnswerType:      r.AnswerType,
		Reward:          r.RewardAmount,
		ChallengeWindow: r.ChallengeWindow,
		Timestamp:       r.CreatedAt.Unix(),
	})
	return r, nil
}

func (c *Coordinator) checkCancel(r *types.Request, caller common.Address) error {
	if caller != r.Requester {
		return fmt.Errorf("%w: %v is not the requester of %v", types.ErrNotRequester, caller, r.ID)
	}
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: %v", types.ErrAlreadyResolved, r.Status)
	}
	if r.Status != types.RequestStatusOpen {
		return fmt.Errorf("%w: status %v", types.ErrRequestNotOpen, r.Status)
	}
	return nil
}

func (c *Coordinator) CheckCancelRequest(caller common.Address, id common.Address) error {
	r, err := c.repo.GetRequest(id)
	if err != nil {
		return err
	}
	return c.checkCancel(r, caller)
}

// CancelRequest withdraws an Open request that nobody has answered yet.
// The reward goes back to the requester and the request ends Failed.
func (c *Coordinator) CancelRequest(ctx context.Context, caller common.Address, id common.Address) (*types.Request, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	r, err := c.repo.GetRequest(id)
	if err != nil {
		return nil, err
	}
	if err = c.checkCancel(r, caller); err != nil {
		return nil, err
	}
	tag := types.RewardTag(id)
	refunded, err := c.ledger.Refund(tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrPayoutFailed, err)
	}
	next := r.Clone()
	next.Status = types.RequestStatusFailed
	next.ResolvedAt = c.now()
	if err = c.repo.PutRequest(next); err != nil {
		if lerr := c.ledger.Escrow(r.Requester, refunded, tag); lerr != nil {
			c.logger.Error("re-escrow after failed cancel fail", "request", id, "err", lerr)
		}
		return nil, err
	}
	c.logger.Info("request cancelled", "request", id, "refund", refunded)
	c.emit(ctx, &types.EventRequestCancelled{
		Request:   id,
		Requester: r.Requester,
		Refund:    refunded,
		Timestamp: next.ResolvedAt.Unix(),
	})
	return next, nil
}

// AttachScore asks the risk scorer about the request and stores the
// result. The score is metadata only; status is never changed.
func (c *Coordinator) AttachScore(ctx context.Context, id common.Address) (*types.RiskScore, error) {
	if c.scorer == nil {
		return nil, ErrScoringDisabled
	}
	r, err := c.repo.GetRequest(id)
	if err != nil {
		return nil, err
	}
	score, err := c.scorer.Score(ctx, r.Question, r.Context)
	if err != nil {
		c.logger.Info("score request fail", "request", id, "err", err)
		return nil, err
	}

	unlock := c.locks.lock(id)
	defer unlock()
	r, err = c.repo.GetRequest(id)
	if err != nil {
		return nil, err
	}
	next := r.Clone()
	next.Scoring = score
	if err = c.repo.PutRequest(next); err != nil {
		return nil, err
	}
	c.logger.Info("risk score attached", "request", id, "score", score.Score, "decision", score.FinalDecision)
	return score, nil
}
