package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/calehh/oracle-node/config"
	"github.com/calehh/oracle-node/ledger"
	"github.com/calehh/oracle-node/scoring"
	"github.com/calehh/oracle-node/state"
	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
)

var (
	requester  = common.HexToAddress("0x0000000000000000000000000000000000001001")
	proposer   = common.HexToAddress("0x0000000000000000000000000000000000001002")
	challenger = common.HexToAddress("0x0000000000000000000000000000000000001003")
	reviewer1  = common.HexToAddress("0x0000000000000000000000000000000000001004")
	reviewer2  = common.HexToAddress("0x0000000000000000000000000000000000001005")
	reviewer3  = common.HexToAddress("0x0000000000000000000000000000000000001006")
)

const startBalance = 1000

type fakeClock struct {
	mtx sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.now = f.now.Add(d)
}

type recorder struct {
	mtx    sync.Mutex
	events []types.Event
}

func (r *recorder) Emit(_ context.Context, ev types.Event) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() (out []string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, ev := range r.events {
		out = append(out, ev.EventType())
	}
	return
}

func (r *recorder) reset() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.events = nil
}

// flakyRepo fails PutRequest for the given status once armed.
type flakyRepo struct {
	Repository
	failOn types.RequestStatus
}

func (f *flakyRepo) PutRequest(r *types.Request) error {
	if f.failOn != 0 && r.Status == f.failOn {
		return errors.New("disk unavailable")
	}
	return f.Repository.PutRequest(r)
}

type OracleSuite struct {
	suite.Suite
	ctx    context.Context
	db     *state.StateDB
	repo   *flakyRepo
	ledger *ledger.Ledger
	clock  *fakeClock
	events *recorder
	scorer *scoring.MockClient
	params config.OracleConfig
	oracle *Coordinator
}

func TestOracleSuite(t *testing.T) {
	suite.Run(t, new(OracleSuite))
}

func (s *OracleSuite) SetupTest() {
	s.ctx = context.Background()
	logger := cmtlog.NewNopLogger()
	db, err := state.NewMemStateDB(logger)
	s.Require().NoError(err)
	s.db = db
	s.repo = &flakyRepo{Repository: db}
	s.ledger, err = ledger.NewLedger(db, logger)
	s.Require().NoError(err)
	for _, party := range []common.Address{requester, proposer, challenger, reviewer1, reviewer2, reviewer3} {
		s.Require().NoError(s.ledger.Deposit(party, startBalance))
	}
	s.clock = &fakeClock{now: time.Unix(1700000000, 0)}
	s.events = &recorder{}
	s.scorer = scoring.NewMockClient()
	s.params = *config.DefaultOracleConfig()
	s.newCoordinator()
}

func (s *OracleSuite) newCoordinator() {
	var err error
	s.oracle, err = NewCoordinator(s.params, s.repo, s.ledger,
		WithClock(s.clock),
		WithEventSink(s.events),
		WithScorer(s.scorer),
	)
	s.Require().NoError(err)
}

func (s *OracleSuite) TearDownTest() {
	s.db.Close()
}

func (s *OracleSuite) createRequest(window uint64) *types.Request {
	r, err := s.oracle.CreateRequest(s.ctx, requester, CreateRequestParams{
		Question:        "Will it rain in Berlin tomorrow?",
		Context:         "weather service report at noon",
		AnswerType:      types.AnswerTypeBoolean,
		ChallengeWindow: window,
		RewardAmount:    100,
	})
	s.Require().NoError(err)
	return r
}

func (s *OracleSuite) proposed(window uint64) *types.Request {
	r := s.createRequest(window)
	_, err := s.oracle.ProposeAnswer(s.ctx, proposer, r.ID, "yes")
	s.Require().NoError(err)
	return r
}

func (s *OracleSuite) challenged() *types.Request {
	r := s.proposed(60)
	_, err := s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "no", "the report says dry")
	s.Require().NoError(err)
	return r
}

func (s *OracleSuite) review(id common.Address, reviewer common.Address, supports bool) {
	_, err := s.oracle.SubmitReview(s.ctx, reviewer, id, "checked the report", supports)
	s.Require().NoError(err)
}

func (s *OracleSuite) balances() map[common.Address]uint64 {
	out := make(map[common.Address]uint64)
	for _, party := range []common.Address{requester, proposer, challenger, reviewer1, reviewer2, reviewer3} {
		out[party] = s.ledger.Balance(party)
	}
	return out
}

func (s *OracleSuite) TestCreateRequest() {
	r := s.createRequest(60)
	s.Equal(types.RequestStatusOpen, r.Status)
	s.Equal(uint64(900), s.ledger.Balance(requester))
	locked, err := s.ledger.Locked(types.RewardTag(r.ID))
	s.Require().NoError(err)
	s.Equal(uint64(100), locked)

	stored, err := s.oracle.GetRequest(r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, stored.ID)
	s.Equal([]string{types.EventRequestRegisteredType}, s.events.types())

	other := s.createRequest(60)
	s.NotEqual(r.ID, other.ID)
	s.Greater(other.Index, r.Index)
}

func (s *OracleSuite) TestCreateRequestInvalid() {
	cases := map[string]CreateRequestParams{
		"reward":   {Question: "q", Context: "c", AnswerType: types.AnswerTypeBoolean, ChallengeWindow: 1},
		"window":   {Question: "q", Context: "c", AnswerType: types.AnswerTypeBoolean, RewardAmount: 1},
		"question": {Question: " ", Context: "c", AnswerType: types.AnswerTypeBoolean, ChallengeWindow: 1, RewardAmount: 1},
		"context":  {Question: "q", AnswerType: types.AnswerTypeBoolean, ChallengeWindow: 1, RewardAmount: 1},
		"type":     {Question: "q", Context: "c", ChallengeWindow: 1, RewardAmount: 1},
		"long":     {Question: "q", Context: "c", AnswerType: types.AnswerTypeBoolean, ChallengeWindow: types.MaxChallengeWindow + 1, RewardAmount: 1},
		"max":      {Question: "q", Context: "c", AnswerType: types.AnswerTypeBoolean, ChallengeWindow: math.MaxUint64, RewardAmount: 1},
	}
	for name, params := range cases {
		_, err := s.oracle.CreateRequest(s.ctx, requester, params)
		s.ErrorIs(err, types.ErrInvalidParameters, name)
		s.ErrorIs(err, types.ErrInput, name)
	}
	s.Equal(uint64(startBalance), s.ledger.Balance(requester))
	s.Empty(s.events.types())
}

func (s *OracleSuite) TestCreateRequestEscrowFailure() {
	_, err := s.oracle.CreateRequest(s.ctx, requester, CreateRequestParams{
		Question: "q", Context: "c", AnswerType: types.AnswerTypeNumeric, ChallengeWindow: 60, RewardAmount: startBalance + 1,
	})
	s.ErrorIs(err, types.ErrEscrowFailed)
	s.ErrorIs(err, types.ErrResource)
	all, err := s.oracle.ListRequests(0)
	s.Require().NoError(err)
	s.Empty(all)
	s.Equal(uint64(startBalance), s.ledger.Balance(requester))
}

func (s *OracleSuite) TestScenarioUnchallenged() {
	r := s.proposed(60)
	s.Equal(uint64(900), s.ledger.Balance(proposer))

	_, err := s.oracle.FinalizeUnchallenged(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrNotYetFinalizable)

	s.clock.Advance(61 * time.Second)
	resolved, err := s.oracle.FinalizeUnchallenged(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(types.RequestStatusResolved, resolved.Status)
	s.Equal(types.OutcomeUnchallenged, resolved.Outcome)
	s.Equal("Yes", resolved.CanonicalAnswer)
	s.Equal(uint64(startBalance+100), s.ledger.Balance(proposer))
	s.Equal(uint64(startBalance-100), s.ledger.Balance(requester))
	s.Equal([]string{
		types.EventRequestRegisteredType,
		types.EventAnswerProposedType,
		types.EventRequestResolvedType,
		types.EventBondRefundedType,
		types.EventRewardDistributedType,
	}, s.events.types())
}

func (s *OracleSuite) TestScenarioChallengerWinsTwoToOne() {
	r := s.challenged()
	s.review(r.ID, reviewer1, true)
	s.review(r.ID, reviewer2, true)
	s.review(r.ID, reviewer3, false)
	total := s.ledger.Supply()

	s.clock.Advance(s.params.ReviewWindow + time.Second)
	resolved, err := s.oracle.ResolveDispute(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeChallenger, resolved.Outcome)
	s.Equal("No", resolved.CanonicalAnswer)

	// spoils 100 reward + 100 proposer bond + 10 losing reviewer bond = 210,
	// reviewers split 20% of it.
	s.Equal(uint64(startBalance-100+268), s.ledger.Balance(challenger))
	s.Equal(uint64(startBalance-10+31), s.ledger.Balance(reviewer1))
	s.Equal(uint64(startBalance-10+31), s.ledger.Balance(reviewer2))
	s.Equal(uint64(startBalance-10), s.ledger.Balance(reviewer3))
	s.Equal(uint64(startBalance-100), s.ledger.Balance(proposer))
	s.Equal(total, s.ledger.Supply())
}

func (s *OracleSuite) TestTieGoesToProposer() {
	s.Run("one to one", func() {
		r := s.challenged()
		s.review(r.ID, reviewer1, true)
		s.review(r.ID, reviewer2, false)
		s.clock.Advance(s.params.ReviewWindow + time.Second)

		resolved, err := s.oracle.ResolveDispute(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal(types.OutcomeProposer, resolved.Outcome)
		s.Equal("Yes", resolved.CanonicalAnswer)
	})
	s.Run("zero to zero", func() {
		before := s.ledger.Balance(proposer)
		r := s.challenged()
		s.clock.Advance(s.params.ReviewWindow + time.Second)

		resolved, err := s.oracle.ResolveDispute(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal(types.OutcomeProposer, resolved.Outcome)
		// own bond back plus reward and the forfeited challenger bond
		s.Equal(before+200, s.ledger.Balance(proposer))
	})
}

func (s *OracleSuite) TestConservation() {
	votes := [][]bool{
		{},
		{true},
		{false},
		{true, false},
		{true, true, false},
		{false, false, true},
		{true, true, true},
	}
	s.params.ReviewerShareBps = 3333
	s.newCoordinator()
	reviewers := []common.Address{reviewer1, reviewer2, reviewer3}
	for _, pattern := range votes {
		supply := s.ledger.Supply()
		r := s.challenged()
		for i, v := range pattern {
			s.review(r.ID, reviewers[i], v)
		}
		s.clock.Advance(s.params.ReviewWindow + time.Second)
		_, err := s.oracle.Finalize(s.ctx, r.ID)
		s.Require().NoError(err, fmt.Sprint(pattern))
		s.Equal(supply, s.ledger.Supply(), fmt.Sprint(pattern))
		for _, tag := range []string{types.RewardTag(r.ID), types.ProposerBondTag(r.ID), types.ChallengerBondTag(r.ID)} {
			_, err = s.ledger.Locked(tag)
			s.ErrorIs(err, ledger.ErrLockNotFound)
		}
	}
}

func (s *OracleSuite) TestIdempotentFinalize() {
	r := s.proposed(60)
	s.clock.Advance(time.Hour)
	_, err := s.oracle.FinalizeUnchallenged(s.ctx, r.ID)
	s.Require().NoError(err)
	before := s.balances()
	s.events.reset()

	_, err = s.oracle.FinalizeUnchallenged(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrAlreadyResolved)
	_, err = s.oracle.Finalize(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrAlreadyResolved)
	_, err = s.oracle.ResolveDispute(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrAlreadyResolved)
	s.Equal(before, s.balances())
	s.Empty(s.events.types())
}

func (s *OracleSuite) TestSelfDealingRejected() {
	r := s.createRequest(60)
	supply := s.ledger.Supply()
	hash := s.db.Hash()

	_, err := s.oracle.ProposeAnswer(s.ctx, requester, r.ID, "yes")
	s.ErrorIs(err, types.ErrSelfDealingForbidden)
	s.ErrorIs(err, types.ErrAuthorization)

	stored, err := s.oracle.GetRequest(r.ID)
	s.Require().NoError(err)
	s.Equal(types.RequestStatusOpen, stored.Status)
	s.Nil(stored.Proposal)
	s.Equal(uint64(startBalance-100), s.ledger.Balance(requester))
	s.Equal(supply, s.ledger.Supply())
	s.Equal(hash, s.db.Hash())

	_, err = s.oracle.ProposeAnswer(s.ctx, proposer, r.ID, "yes")
	s.Require().NoError(err)
	for _, party := range []common.Address{requester, proposer} {
		_, err = s.oracle.ChallengeAnswer(s.ctx, party, r.ID, "no", "disagree")
		s.ErrorIs(err, types.ErrSelfDealingForbidden)
	}
}

func (s *OracleSuite) TestConcurrentProposals() {
	r := s.createRequest(60)
	parties := []common.Address{proposer, challenger, reviewer1, reviewer2, reviewer3}

	var wg sync.WaitGroup
	errs := make([]error, len(parties))
	for i, party := range parties {
		wg.Add(1)
		go func(i int, party common.Address) {
			defer wg.Done()
			_, errs[i] = s.oracle.ProposeAnswer(s.ctx, party, r.ID, "no")
		}(i, party)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		s.ErrorIs(err, types.ErrRequestNotOpen)
	}
	s.Equal(1, accepted)

	stored, err := s.oracle.GetRequest(r.ID)
	s.Require().NoError(err)
	locked := 0
	for _, party := range parties {
		if s.ledger.Balance(party) == startBalance-s.params.ProposerBond {
			locked++
			s.Equal(party, stored.Proposal.Proposer)
		}
	}
	s.Equal(1, locked)
}

func (s *OracleSuite) TestChallengeWindowBoundary() {
	r := s.proposed(60)
	s.clock.Advance(59 * time.Second)
	s.NoError(s.oracle.CheckChallengeAnswer(challenger, r.ID, "no", "late report"))

	s.clock.Advance(2 * time.Second)
	_, err := s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "no", "late report")
	s.ErrorIs(err, types.ErrWindowExpired)
	s.Equal(uint64(startBalance), s.ledger.Balance(challenger))

	other := s.proposed(60)
	s.clock.Advance(59 * time.Second)
	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, other.ID, "no", "in time")
	s.NoError(err)

	last := s.proposed(60)
	s.clock.Advance(60 * time.Second)
	_, err = s.oracle.FinalizeUnchallenged(s.ctx, last.ID)
	s.ErrorIs(err, types.ErrNotYetFinalizable)
	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, last.ID, "no", "at the deadline")
	s.NoError(err)
}

func (s *OracleSuite) TestLongestChallengeWindow() {
	r := s.proposed(types.MaxChallengeWindow)
	stored, err := s.oracle.GetRequest(r.ID)
	s.Require().NoError(err)
	s.True(stored.ChallengeDeadline().After(stored.Proposal.CreatedAt))

	s.clock.Advance(time.Second)
	_, err = s.oracle.FinalizeUnchallenged(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrNotYetFinalizable)
	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "no", "still open")
	s.NoError(err)
}

func (s *OracleSuite) TestChallengeRejections() {
	open := s.createRequest(60)
	_, err := s.oracle.ChallengeAnswer(s.ctx, challenger, open.ID, "no", "r")
	s.ErrorIs(err, types.ErrRequestNotProposed)

	r := s.proposed(60)
	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "TRUE", "r")
	s.ErrorIs(err, types.ErrSameAnswer)
	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "maybe", "r")
	s.ErrorIs(err, types.ErrInvalidAnswer)
	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "no", "  ")
	s.ErrorIs(err, types.ErrEmptyReason)

	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "no", "r")
	s.Require().NoError(err)
	_, err = s.oracle.ChallengeAnswer(s.ctx, reviewer1, r.ID, "no", "r")
	s.ErrorIs(err, types.ErrAlreadyChallenged)
	_, err = s.oracle.FinalizeUnchallenged(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrAlreadyChallenged)
}

func (s *OracleSuite) TestReviewRejections() {
	r := s.proposed(60)
	_, err := s.oracle.SubmitReview(s.ctx, reviewer1, r.ID, "", true)
	s.ErrorIs(err, types.ErrNotChallenged)

	_, err = s.oracle.ChallengeAnswer(s.ctx, challenger, r.ID, "no", "r")
	s.Require().NoError(err)
	for _, party := range []common.Address{requester, proposer, challenger} {
		_, err = s.oracle.SubmitReview(s.ctx, party, r.ID, "", true)
		s.ErrorIs(err, types.ErrConflictOfInterest)
	}
	s.review(r.ID, reviewer1, true)
	_, err = s.oracle.SubmitReview(s.ctx, reviewer1, r.ID, "again", false)
	s.ErrorIs(err, types.ErrDuplicateReview)

	s.clock.Advance(s.params.ReviewWindow + time.Second)
	_, err = s.oracle.SubmitReview(s.ctx, reviewer2, r.ID, "late", true)
	s.ErrorIs(err, types.ErrReviewWindowExpired)

	stored, err := s.oracle.GetRequest(r.ID)
	s.Require().NoError(err)
	s.Equal(uint64(1), stored.Challenge().VotesFor)
	s.Zero(stored.Challenge().VotesAgainst)
}

func (s *OracleSuite) TestReviewQuorum() {
	s.params.ReviewQuorum = 2
	s.newCoordinator()
	r := s.challenged()
	s.review(r.ID, reviewer1, false)
	_, err := s.oracle.ResolveDispute(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrNotYetFinalizable)

	s.review(r.ID, reviewer2, false)
	_, err = s.oracle.SubmitReview(s.ctx, reviewer3, r.ID, "", true)
	s.ErrorIs(err, types.ErrReviewWindowExpired)

	resolved, err := s.oracle.ResolveDispute(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeProposer, resolved.Outcome)
}

func (s *OracleSuite) TestFrozenAccountKeepsRequestRetryable() {
	r := s.challenged()
	s.review(r.ID, reviewer1, true)
	s.clock.Advance(s.params.ReviewWindow + time.Second)
	s.Require().NoError(s.ledger.Freeze(reviewer1))
	before := s.balances()
	s.events.reset()

	_, err := s.oracle.ResolveDispute(s.ctx, r.ID)
	s.ErrorIs(err, types.ErrPayoutFailed)
	s.ErrorIs(err, ledger.ErrAccountFrozen)
	stored, err := s.oracle.GetRequest(r.ID)
	s.Require().NoError(err)
	s.Equal(types.RequestStatusChallenged, stored.Status)
	s.Equal(before, s.balances())
	s.Empty(s.events.types())

	s.Require().NoError(s.ledger.Unfreeze(reviewer1))
	resolved, err := s.oracle.ResolveDispute(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeChallenger, resolved.Outcome)
}

func (s *OracleSuite) TestFailedWriteRevertsSettlement() {
	r := s.proposed(60)
	s.clock.Advance(time.Hour)
	before := s.balances()
	supply := s.ledger.Supply()

	s.repo.failOn = types.RequestStatusResolved
	_, err := s.oracle.Finalize(s.ctx, r.ID)
	s.Error(err)
	s.Equal(before, s.balances())
	s.Equal(supply, s.ledger.Supply())

	s.repo.failOn = 0
	_, err = s.oracle.Finalize(s.ctx, r.ID)
	s.NoError(err)
}

func (s *OracleSuite) TestFailedWriteRefundsBond() {
	r := s.createRequest(60)
	s.repo.failOn = types.RequestStatusProposed
	_, err := s.oracle.ProposeAnswer(s.ctx, proposer, r.ID, "yes")
	s.Error(err)
	s.Equal(uint64(startBalance), s.ledger.Balance(proposer))
	_, err = s.ledger.Locked(types.ProposerBondTag(r.ID))
	s.ErrorIs(err, ledger.ErrLockNotFound)
}

func (s *OracleSuite) TestInsufficientBond() {
	s.params.ProposerBond = startBalance + 1
	s.newCoordinator()
	r := s.createRequest(60)
	_, err := s.oracle.ProposeAnswer(s.ctx, proposer, r.ID, "yes")
	s.ErrorIs(err, types.ErrInsufficientBond)
	s.ErrorIs(err, ledger.ErrInsufficientFunds)
}

func (s *OracleSuite) TestCancelRequest() {
	r := s.createRequest(60)
	_, err := s.oracle.CancelRequest(s.ctx, proposer, r.ID)
	s.ErrorIs(err, types.ErrNotRequester)

	cancelled, err := s.oracle.CancelRequest(s.ctx, requester, r.ID)
	s.Require().NoError(err)
	s.Equal(types.RequestStatusFailed, cancelled.Status)
	s.Equal(uint64(startBalance), s.ledger.Balance(requester))

	_, err = s.oracle.CancelRequest(s.ctx, requester, r.ID)
	s.ErrorIs(err, types.ErrAlreadyResolved)
	_, err = s.oracle.ProposeAnswer(s.ctx, proposer, r.ID, "yes")
	s.ErrorIs(err, types.ErrRequestNotOpen)

	p := s.proposed(60)
	_, err = s.oracle.CancelRequest(s.ctx, requester, p.ID)
	s.ErrorIs(err, types.ErrRequestNotOpen)
}

func (s *OracleSuite) TestAttachScore() {
	r := s.createRequest(60)
	s.scorer.Resp = types.RiskScore{Score: 81, FinalDecision: types.DecisionConfident, Heatmap: map[string]any{"ambiguity": 0.1}}
	score, err := s.oracle.AttachScore(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(int64(81), score.Score)

	stored, err := s.oracle.GetRequest(r.ID)
	s.Require().NoError(err)
	s.Equal(types.RequestStatusOpen, stored.Status)
	s.Equal(types.DecisionConfident, stored.Scoring.FinalDecision)

	s.scorer.Err = scoring.ErrScoringUnavailable
	_, err = s.oracle.AttachScore(s.ctx, r.ID)
	s.ErrorIs(err, scoring.ErrScoringUnavailable)
	_, err = s.oracle.ProposeAnswer(s.ctx, proposer, r.ID, "no")
	s.NoError(err)
}

func (s *OracleSuite) TestFinalizeDispatch() {
	open := s.createRequest(60)
	_, err := s.oracle.Finalize(s.ctx, open.ID)
	s.ErrorIs(err, types.ErrRequestNotProposed)

	proposedReq := s.proposed(60)
	contested := s.challenged()
	stored, err := s.oracle.GetRequest(proposedReq.ID)
	s.Require().NoError(err)
	s.False(s.oracle.IsFinalizable(stored))
	s.ErrorIs(s.oracle.CheckFinalize(proposedReq.ID), types.ErrNotYetFinalizable)
	s.clock.Advance(s.params.ReviewWindow + time.Second)

	for _, id := range []common.Address{proposedReq.ID, contested.ID} {
		r, err := s.oracle.GetRequest(id)
		s.Require().NoError(err)
		s.True(s.oracle.IsFinalizable(r))
		s.NoError(s.oracle.CheckFinalize(id))
		_, err = s.oracle.Finalize(s.ctx, id)
		s.NoError(err)
	}
	_, err = s.oracle.GetRequest(common.HexToAddress("0x1234"))
	s.ErrorIs(err, types.ErrRequestNotFound)
}
