package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
)

func (c *Coordinator) checkChallenge(r *types.Request, challenger common.Address, counterAnswer, reason string, now time.Time) (canonical string, err error) {
	if challenger == (common.Address{}) {
		err = fmt.Errorf("%w: challenger", types.ErrInvalidParty)
		return
	}
	switch {
	case r.Status.IsTerminal():
		err = fmt.Errorf("%w: %v", types.ErrAlreadyResolved, r.Status)
		return
	case r.Status == types.RequestStatusChallenged:
		err = fmt.Errorf("%w: by %v", types.ErrAlreadyChallenged, r.Challenge().Challenger)
		return
	case r.Status != types.RequestStatusProposed:
		err = fmt.Errorf("%w: status %v", types.ErrRequestNotProposed, r.Status)
		return
	}
	if deadline := r.ChallengeDeadline(); now.After(deadline) {
		err = fmt.Errorf("%w: deadline %v", types.ErrWindowExpired, deadline.Unix())
		return
	}
	if challenger == r.Requester || challenger == r.Proposal.Proposer {
		err = fmt.Errorf("%w: %v is already a party to %v", types.ErrSelfDealingForbidden, challenger, r.ID)
		return
	}
	canonical, err = r.AnswerType.CanonicalAnswer(counterAnswer)
	if err != nil {
		return
	}
	if canonical == r.Proposal.Answer {
		err = fmt.Errorf("%w: %q", types.ErrSameAnswer, canonical)
		return
	}
	if strings.TrimSpace(reason) == "" {
		err = types.ErrEmptyReason
		return
	}
	return
}

func (c *Coordinator) CheckChallengeAnswer(challenger common.Address, id common.Address, counterAnswer, reason string) error {
	r, err := c.repo.GetRequest(id)
	if err != nil {
		return err
	}
	_, err = c.checkChallenge(r, challenger, counterAnswer, reason, c.now())
	return err
}

// ChallengeAnswer disputes the proposal with a different answer. The
// challenge window is inclusive of its last second.
func (c *Coordinator) ChallengeAnswer(ctx context.Context, challenger common.Address, id common.Address, counterAnswer, reason string) (*types.Challenge, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	r, err := c.repo.GetRequest(id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	canonical, err := c.checkChallenge(r, challenger, counterAnswer, reason, now)
	if err != nil {
		return nil, err
	}
	bond := c.params.ChallengerBond
	tag := types.ChallengerBondTag(id)
	if err = c.ledger.Lock(challenger, bond, tag, types.LockKindChallengerBond); err != nil {
		return nil, fmt.Errorf("%w: challenger bond %d: %w", types.ErrInsufficientBond, bond, err)
	}
	next := r.Clone()
	next.Proposal.IsChallenged = true
	next.Proposal.Challenge = &types.Challenge{
		Challenger: challenger,
		Answer:     canonical,
		Reason:     reason,
		Bond:       bond,
		CreatedAt:  now,
	}
	next.Status = types.RequestStatusChallenged
	if err = c.repo.PutRequest(next); err != nil {
		c.refund(tag)
		return nil, err
	}
	c.logger.Info("answer challenged", "request", id, "challenger", challenger, "answer", canonical)
	c.emit(ctx, &types.EventChallengeSubmitted{
		Request:    id,
		Challenger: challenger,
		Answer:     canonical,
		Reason:     reason,
		Bond:       bond,
		Timestamp:  now.Unix(),
	})
	return next.Proposal.Challenge, nil
}
