package oracle

import (
	"math"
	"testing"

	"github.com/calehh/oracle-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func disputed(reward uint64, votes ...bool) *types.Request {
	id := common.HexToAddress("0xabc")
	ch := &types.Challenge{Challenger: challenger, Answer: "No", Bond: 100}
	reviewers := []common.Address{reviewer1, reviewer2, reviewer3}
	for i, v := range votes {
		ch.Reviews = append(ch.Reviews, types.Review{Reviewer: reviewers[i], Bond: 10, SupportsChallenge: v})
		if v {
			ch.VotesFor++
		} else {
			ch.VotesAgainst++
		}
	}
	return &types.Request{
		ID:           id,
		Requester:    requester,
		RewardAmount: reward,
		Status:       types.RequestStatusChallenged,
		Proposal: &types.Proposal{
			Proposer:     proposer,
			Answer:       "Yes",
			Bond:         100,
			IsChallenged: true,
			Challenge:    ch,
		},
	}
}

func shareOf(t *testing.T, s *Settlement, addr common.Address) Share {
	for _, sh := range s.Shares {
		if sh.Recipient == addr {
			return sh
		}
	}
	t.Fatalf("no share for %v", addr)
	return Share{}
}

func TestTally(t *testing.T) {
	require.Equal(t, types.OutcomeProposer, Tally(&types.Challenge{}))
	require.Equal(t, types.OutcomeProposer, Tally(&types.Challenge{VotesFor: 2, VotesAgainst: 2}))
	require.Equal(t, types.OutcomeProposer, Tally(&types.Challenge{VotesFor: 1, VotesAgainst: 3}))
	require.Equal(t, types.OutcomeChallenger, Tally(&types.Challenge{VotesFor: 1}))
}

func TestBuildSettlementUnchallenged(t *testing.T) {
	r := disputed(100)
	r.Proposal.Challenge = nil
	r.Proposal.IsChallenged = false
	s, err := BuildSettlement(r, types.OutcomeUnchallenged, 2000)
	require.NoError(t, err)
	require.Equal(t, proposer, s.Winner)
	require.Equal(t, "Yes", s.CanonicalAnswer)
	require.Len(t, s.Consume, 2)
	require.Equal(t, uint64(200), s.Paid())

	plan := s.Plan()
	require.Len(t, plan.Payouts, 1)
	require.Equal(t, uint64(200), plan.Payouts[0].Amount)

	evs := s.Events(r, 10)
	require.Len(t, evs, 3)
	require.Equal(t, types.EventRequestResolvedType, evs[0].EventType())
	require.Equal(t, uint64(200), evs[0].(*types.EventRequestResolved).Total)
}

func TestBuildSettlementChallengerWins(t *testing.T) {
	s, err := BuildSettlement(disputed(100, true, true, false), types.OutcomeChallenger, 2000)
	require.NoError(t, err)
	require.Equal(t, challenger, s.Winner)
	require.Equal(t, proposer, s.Loser)
	require.Equal(t, "No", s.CanonicalAnswer)
	require.Len(t, s.Consume, 6)
	require.Equal(t, uint64(330), s.Locked)

	require.Equal(t, Share{Recipient: challenger, Role: types.RoleChallenger, Bond: 100, Reward: 168}, shareOf(t, s, challenger))
	require.Equal(t, uint64(31), shareOf(t, s, reviewer1).Total())
	require.Equal(t, uint64(31), shareOf(t, s, reviewer2).Total())
	require.Zero(t, shareOf(t, s, reviewer3).Total())

	// the losing reviewer gets no payout and no event
	require.Len(t, s.Plan().Payouts, 3)
	for _, ev := range s.Events(disputed(100, true, true, false), 10)[1:] {
		switch e := ev.(type) {
		case *types.EventBondRefunded:
			require.NotEqual(t, reviewer3, e.Recipient)
		case *types.EventRewardDistributed:
			require.NotEqual(t, reviewer3, e.Recipient)
		}
	}
}

func TestBuildSettlementProposerWins(t *testing.T) {
	s, err := BuildSettlement(disputed(100, false, true), types.OutcomeProposer, 2000)
	require.NoError(t, err)
	require.Equal(t, proposer, s.Winner)
	require.Equal(t, "Yes", s.CanonicalAnswer)
	// spoils 100 + 100 + 10, one winning reviewer takes 20%
	require.Equal(t, uint64(10+42), shareOf(t, s, reviewer1).Total())
	require.Equal(t, uint64(100+168), shareOf(t, s, proposer).Total())
	require.Zero(t, shareOf(t, s, reviewer2).Total())
}

func TestBuildSettlementRoundingDust(t *testing.T) {
	s, err := BuildSettlement(disputed(101, true, true, true), types.OutcomeChallenger, 3333)
	require.NoError(t, err)
	// spoils 201, pool 66, slice 22 each
	require.Equal(t, uint64(22), shareOf(t, s, reviewer1).Reward)
	require.Equal(t, uint64(201-66), shareOf(t, s, challenger).Reward)
	require.Equal(t, s.Locked, s.Paid())
}

func TestBuildSettlementNoShare(t *testing.T) {
	s, err := BuildSettlement(disputed(100, true), types.OutcomeChallenger, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), shareOf(t, s, reviewer1).Total())
	require.Equal(t, uint64(300), shareOf(t, s, challenger).Total())
}

func TestBuildSettlementErrors(t *testing.T) {
	r := disputed(100)
	r.Proposal = nil
	_, err := BuildSettlement(r, types.OutcomeUnchallenged, 2000)
	require.ErrorIs(t, err, types.ErrRequestNotProposed)

	r = disputed(100)
	r.Proposal.Challenge = nil
	_, err = BuildSettlement(r, types.OutcomeProposer, 2000)
	require.ErrorIs(t, err, types.ErrNotChallenged)
}

func TestMulBps(t *testing.T) {
	require.Equal(t, uint64(42), mulBps(210, 2000))
	require.Equal(t, uint64(0), mulBps(4, 2000))
	require.Equal(t, uint64(math.MaxUint64), mulBps(math.MaxUint64, 10000))
	require.Equal(t, uint64(math.MaxUint64/2), mulBps(math.MaxUint64, 5000))
}
