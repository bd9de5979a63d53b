package oracle

import (
	"context"
	"fmt"

	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
)

func (c *Coordinator) checkPropose(r *types.Request, proposer common.Address, answer string) (canonical string, err error) {
	if proposer == (common.Address{}) {
		err = fmt.Errorf("%w: proposer", types.ErrInvalidParty)
		return
	}
	if r.Status != types.RequestStatusOpen {
		err = fmt.Errorf("%w: status %v", types.ErrRequestNotOpen, r.Status)
		return
	}
	if proposer == r.Requester {
		err = fmt.Errorf("%w: requester cannot propose on own request", types.ErrSelfDealingForbidden)
		return
	}
	canonical, err = r.AnswerType.CanonicalAnswer(answer)
	return
}

// CheckProposeAnswer runs every precondition of ProposeAnswer without
// locking funds.
func (c *Coordinator) CheckProposeAnswer(proposer common.Address, id common.Address, answer string) error {
	r, err := c.repo.GetRequest(id)
	if err != nil {
		return err
	}
	_, err = c.checkPropose(r, proposer, answer)
	return err
}

// ProposeAnswer bonds the proposer and attaches the answer. Exactly one
// proposal is ever accepted per request.
func (c *Coordinator) ProposeAnswer(ctx context.Context, proposer common.Address, id common.Address, answer string) (*types.Proposal, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	r, err := c.repo.GetRequest(id)
	if err != nil {
		return nil, err
	}
	canonical, err := c.checkPropose(r, proposer, answer)
	if err != nil {
		return nil, err
	}
	bond := c.params.ProposerBond
	tag := types.ProposerBondTag(id)
	if err = c.ledger.Lock(proposer, bond, tag, types.LockKindProposerBond); err != nil {
		return nil, fmt.Errorf("%w: proposer bond %d: %w", types.ErrInsufficientBond, bond, err)
	}
	next := r.Clone()
	next.Proposal = &types.Proposal{
		Proposer:  proposer,
		Answer:    canonical,
		Bond:      bond,
		CreatedAt: c.now(),
	}
	next.Status = types.RequestStatusProposed
	if err = c.repo.PutRequest(next); err != nil {
		c.refund(tag)
		return nil, err
	}
	c.logger.Info("answer proposed", "request", id, "proposer", proposer, "answer", canonical)
	c.emit(ctx, &types.EventAnswerProposed{
		Request:   id,
		Proposer:  proposer,
		Answer:    canonical,
		Bond:      bond,
		Timestamp: next.Proposal.CreatedAt.Unix(),
	})
	return next.Proposal, nil
}
