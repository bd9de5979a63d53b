package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
)

// Tally decides a dispute. The challenger needs a strict majority of the
// submitted reviews; every tie, 0:0 included, keeps the proposer's answer.
func Tally(ch *types.Challenge) types.Outcome {
	if ch.VotesFor > ch.VotesAgainst {
		return types.OutcomeChallenger
	}
	return types.OutcomeProposer
}

func (c *Coordinator) reviewDeadline(ch *types.Challenge) time.Time {
	return ch.CreatedAt.Add(c.params.ReviewWindow)
}

func (c *Coordinator) quorumReached(ch *types.Challenge) bool {
	return c.params.ReviewQuorum > 0 && uint64(len(ch.Reviews)) >= c.params.ReviewQuorum
}

func (c *Coordinator) checkReview(r *types.Request, reviewer common.Address, now time.Time) error {
	if reviewer == (common.Address{}) {
		return fmt.Errorf("%w: reviewer", types.ErrInvalidParty)
	}
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: %v", types.ErrAlreadyResolved, r.Status)
	}
	if r.Status != types.RequestStatusChallenged {
		return fmt.Errorf("%w: status %v", types.ErrNotChallenged, r.Status)
	}
	ch := r.Challenge()
	if deadline := c.reviewDeadline(ch); now.After(deadline) {
		return fmt.Errorf("%w: deadline %v", types.ErrReviewWindowExpired, deadline.Unix())
	}
	if c.quorumReached(ch) {
		return fmt.Errorf("%w: quorum of %d reviews reached", types.ErrReviewWindowExpired, c.params.ReviewQuorum)
	}
	if ch.HasReviewed(reviewer) {
		return fmt.Errorf("%w: %v", types.ErrDuplicateReview, reviewer)
	}
	if r.IsParty(reviewer) {
		return fmt.Errorf("%w: %v is a party to %v", types.ErrConflictOfInterest, reviewer, r.ID)
	}
	return nil
}

func (c *Coordinator) CheckSubmitReview(reviewer common.Address, id common.Address) error {
	r, err := c.repo.GetRequest(id)
	if err != nil {
		return err
	}
	return c.checkReview(r, reviewer, c.now())
}

// SubmitReview bonds a reviewer and records their vote on the dispute.
func (c *Coordinator) SubmitReview(ctx context.Context, reviewer common.Address, id common.Address, reason string, supportsChallenge bool) (*types.Review, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	r, err := c.repo.GetRequest(id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err = c.checkReview(r, reviewer, now); err != nil {
		return nil, err
	}
	bond := c.params.ReviewerBond
	tag := types.ReviewerBondTag(id, reviewer)
	if err = c.ledger.Lock(reviewer, bond, tag, types.LockKindReviewerBond); err != nil {
		return nil, fmt.Errorf("%w: reviewer bond %d: %w", types.ErrInsufficientBond, bond, err)
	}
	next := r.Clone()
	ch := next.Challenge()
	review := types.Review{
		Reviewer:          reviewer,
		Reason:            reason,
		Bond:              bond,
		CreatedAt:         now,
		SupportsChallenge: supportsChallenge,
	}
	ch.Reviews = append(ch.Reviews, review)
	if supportsChallenge {
		ch.VotesFor++
	} else {
		ch.VotesAgainst++
	}
	if err = c.repo.PutRequest(next); err != nil {
		c.refund(tag)
		return nil, err
	}
	c.logger.Info("review submitted", "request", id, "reviewer", reviewer, "supports", supportsChallenge, "for", ch.VotesFor, "against", ch.VotesAgainst)
	c.emit(ctx, &types.EventReviewSubmitted{
		Request:           id,
		Reviewer:          reviewer,
		SupportsChallenge: supportsChallenge,
		Bond:              bond,
		VotesFor:          ch.VotesFor,
		VotesAgainst:      ch.VotesAgainst,
		Timestamp:         now.Unix(),
	})
	return &review, nil
}
