package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
)

// finalizable reports how r can be resolved at now. It fails with the
// precondition that blocks resolution.
func (c *Coordinator) finalizable(r *types.Request, now time.Time) (types.Outcome, error) {
	switch r.Status {
	case types.RequestStatusResolved, types.RequestStatusFailed:
		return types.OutcomeNone, fmt.Errorf("%w: %v", types.ErrAlreadyResolved, r.Status)
	case types.RequestStatusProposed:
		if deadline := r.ChallengeDeadline(); !now.After(deadline) {
			return types.OutcomeNone, fmt.Errorf("%w: challenge window open until %v", types.ErrNotYetFinalizable, deadline.Unix())
		}
		return types.OutcomeUnchallenged, nil
	case types.RequestStatusChallenged:
		ch := r.Challenge()
		if deadline := c.reviewDeadline(ch); !now.After(deadline) && !c.quorumReached(ch) {
			return types.OutcomeNone, fmt.Errorf("%w: review window open until %v", types.ErrNotYetFinalizable, deadline.Unix())
		}
		return Tally(ch), nil
	}
	return types.OutcomeNone, fmt.Errorf("%w: status %v", types.ErrRequestNotProposed, r.Status)
}

// IsFinalizable reports whether Finalize would resolve r right now.
func (c *Coordinator) IsFinalizable(r *types.Request) bool {
	_, err := c.finalizable(r, c.now())
	return err == nil
}

// FinalizeUnchallenged resolves a proposal whose challenge window passed
// without a challenge.
func (c *Coordinator) FinalizeUnchallenged(ctx context.Context, id common.Address) (*types.Request, error) {
	return c.resolve(ctx, id, func(r *types.Request) error {
		switch {
		case r.Status == types.RequestStatusChallenged:
			return fmt.Errorf("%w: use dispute resolution", types.ErrAlreadyChallenged)
		case r.Status.IsTerminal() || r.Status == types.RequestStatusProposed:
			return nil
		}
		return fmt.Errorf("%w: status %v", types.ErrRequestNotProposed, r.Status)
	})
}

// ResolveDispute resolves a challenged proposal once the review window
// closed or the review quorum is reached.
func (c *Coordinator) ResolveDispute(ctx context.Context, id common.Address) (*types.Request, error) {
	return c.resolve(ctx, id, func(r *types.Request) error {
		switch {
		case r.Status == types.RequestStatusProposed:
			return fmt.Errorf("%w: status %v", types.ErrNotChallenged, r.Status)
		case r.Status.IsTerminal() || r.Status == types.RequestStatusChallenged:
			return nil
		}
		return fmt.Errorf("%w: status %v", types.ErrRequestNotProposed, r.Status)
	})
}

// Finalize resolves r by whichever path applies to its status.
func (c *Coordinator) Finalize(ctx context.Context, id common.Address) (*types.Request, error) {
	return c.resolve(ctx, id, nil)
}

func (c *Coordinator) CheckFinalize(id common.Address) error {
	r, err := c.repo.GetRequest(id)
	if err != nil {
		return err
	}
	_, err = c.finalizable(r, c.now())
	return err
}

// resolve settles r in one ledger operation and then stores it Resolved.
// A failed payout leaves r untouched so the call can be retried; a failed
// write reverts the payouts.
func (c *Coordinator) resolve(ctx context.Context, id common.Address, guard func(*types.Request) error) (*types.Request, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	r, err := c.repo.GetRequest(id)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err = guard(r); err != nil {
			return nil, err
		}
	}
	now := c.now()
	outcome, err := c.finalizable(r, now)
	if err != nil {
		return nil, err
	}
	settlement, err := BuildSettlement(r, outcome, c.params.ReviewerShareBps)
	if err != nil {
		c.logger.Error("build settlement fail", "request", id, "err", err)
		return nil, err
	}
	receipt, err := c.ledger.Settle(settlement.Plan())
	if err != nil {
		c.logger.Info("settlement payout fail", "request", id, "outcome", outcome, "err", err)
		return nil, fmt.Errorf("%w: %w", types.ErrPayoutFailed, err)
	}
	next := r.Clone()
	next.Status = types.RequestStatusResolved
	next.Outcome = outcome
	next.CanonicalAnswer = settlement.CanonicalAnswer
	next.ResolvedAt = now
	if err = c.repo.PutRequest(next); err != nil {
		if rerr := c.ledger.Revert(receipt); rerr != nil {
			c.logger.Error("revert settlement fail", "request", id, "receipt", receipt.ID, "err", rerr)
		}
		return nil, err
	}
	c.logger.Info("request resolved", "request", id, "outcome", outcome, "winner", settlement.Winner, "paid", settlement.Paid())
	c.emit(ctx, settlement.Events(next, now.Unix())...)
	return next, nil
}
