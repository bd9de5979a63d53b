package oracle

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/calehh/oracle-node/config"
	"github.com/calehh/oracle-node/ledger"
	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
)

var ErrSettlementImbalance = errors.New("settlement payouts do not match locked funds")

// Share is what one participant takes out of a resolution. Bond is the
// part of their own collateral returned; Reward is everything on top.
type Share struct {
	Recipient common.Address
	Role      string
	Bond      uint64
	Reward    uint64
}

func (s Share) Total() uint64 {
	return s.Bond + s.Reward
}

// Settlement is the complete payout plan of one resolution, computed
// before any funds move.
type Settlement struct {
	Outcome         types.Outcome
	Winner          common.Address
	Loser           common.Address
	CanonicalAnswer string
	Consume         []string
	Shares          []Share
	Locked          uint64
}

func (s *Settlement) Paid() (total uint64) {
	for _, sh := range s.Shares {
		total += sh.Total()
	}
	return
}

// Plan merges the shares into ledger payouts. Zero shares are dropped.
func (s *Settlement) Plan() ledger.Plan {
	plan := ledger.Plan{Consume: append([]string(nil), s.Consume...)}
	for _, sh := range s.Shares {
		if sh.Total() == 0 {
			continue
		}
		plan.Payouts = append(plan.Payouts, ledger.Payout{Recipient: sh.Recipient, Amount: sh.Total()})
	}
	return plan
}

// Events lists the transition event followed by one event per returned
// bond and per reward.
func (s *Settlement) Events(r *types.Request, ts int64) []types.Event {
	resolved := &types.EventRequestResolved{
		Request:         r.ID,
		Outcome:         s.Outcome,
		Winner:          s.Winner,
		Loser:           s.Loser,
		CanonicalAnswer: s.CanonicalAnswer,
		Total:           s.Paid(),
		Timestamp:       ts,
	}
	if ch := r.Challenge(); ch != nil {
		resolved.VotesFor = ch.VotesFor
		resolved.VotesAgainst = ch.VotesAgainst
	}
	evs := []types.Event{resolved}
	for _, sh := range s.Shares {
		if sh.Bond > 0 {
			evs = append(evs, &types.EventBondRefunded{Request: r.ID, Recipient: sh.Recipient, Role: sh.Role, Amount: sh.Bond, Timestamp: ts})
		}
		if sh.Reward > 0 {
			evs = append(evs, &types.EventRewardDistributed{Request: r.ID, Recipient: sh.Recipient, Role: sh.Role, Amount: sh.Reward, Timestamp: ts})
		}
	}
	return evs
}

// mulBps returns amount*bps/10000 without overflowing. bps must not exceed
// config.MaxBps.
func mulBps(amount, bps uint64) uint64 {
	hi, lo := bits.Mul64(amount, bps)
	q, _ := bits.Div64(hi, lo, config.MaxBps)
	return q
}

// BuildSettlement computes the payouts for resolving r with outcome.
//
// Unchallenged: the proposer takes the reward and their bond back.
// Disputed: the spoils are the reward, the losing party's bond and the
// losing reviewers' bonds. Winning reviewers split ReviewerShareBps of the
// spoils evenly and get their bonds back; the remainder, including the
// rounding dust, goes to the winning party with its bond.
func BuildSettlement(r *types.Request, outcome types.Outcome, reviewerShareBps uint64) (*Settlement, error) {
	if r.Proposal == nil {
		return nil, fmt.Errorf("%w: request has no proposal", types.ErrRequestNotProposed)
	}
	p := r.Proposal
	s := &Settlement{
		Outcome: outcome,
		Consume: []string{types.RewardTag(r.ID), types.ProposerBondTag(r.ID)},
		Locked:  r.RewardAmount + p.Bond,
	}
	if outcome == types.OutcomeUnchallenged {
		s.Winner = p.Proposer
		s.CanonicalAnswer = p.Answer
		s.Shares = []Share{{Recipient: p.Proposer, Role: types.RoleProposer, Bond: p.Bond, Reward: r.RewardAmount}}
		return s, s.verify()
	}
	ch := p.Challenge
	if ch == nil {
		return nil, fmt.Errorf("%w: request has no challenge", types.ErrNotChallenged)
	}
	s.Consume = append(s.Consume, types.ChallengerBondTag(r.ID))
	s.Locked += ch.Bond

	challengerWins := outcome == types.OutcomeChallenger
	winner := Share{Recipient: p.Proposer, Role: types.RoleProposer, Bond: p.Bond}
	loserBond := ch.Bond
	s.Loser = ch.Challenger
	s.CanonicalAnswer = p.Answer
	if challengerWins {
		winner = Share{Recipient: ch.Challenger, Role: types.RoleChallenger, Bond: ch.Bond}
		loserBond = p.Bond
		s.Loser = p.Proposer
		s.CanonicalAnswer = ch.Answer
	}
	s.Winner = winner.Recipient

	spoils := r.RewardAmount + loserBond
	var winners []int
	reviewers := make([]Share, len(ch.Reviews))
	for i, rv := range ch.Reviews {
		s.Consume = append(s.Consume, types.ReviewerBondTag(r.ID, rv.Reviewer))
		s.Locked += rv.Bond
		reviewers[i] = Share{Recipient: rv.Reviewer, Role: types.RoleReviewer}
		if rv.SupportsChallenge == challengerWins {
			reviewers[i].Bond = rv.Bond
			winners = append(winners, i)
		} else {
			spoils += rv.Bond
		}
	}
	var slice uint64
	if n := uint64(len(winners)); n > 0 {
		slice = mulBps(spoils, reviewerShareBps) / n
		for _, i := range winners {
			reviewers[i].Reward = slice
		}
	}
	winner.Reward = spoils - slice*uint64(len(winners))
	s.Shares = append([]Share{winner}, reviewers...)
	return s, s.verify()
}

func (s *Settlement) verify() error {
	if paid := s.Paid(); paid != s.Locked {
		return fmt.Errorf("%w: locked %d, paid %d", ErrSettlementImbalance, s.Locked, paid)
	}
	return nil
}
