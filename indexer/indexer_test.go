package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calehh/oracle-node/events"
	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

var (
	requestID  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	requester  = common.HexToAddress("0x0000000000000000000000000000000000001001")
	proposer   = common.HexToAddress("0x0000000000000000000000000000000000001002")
	challenger = common.HexToAddress("0x0000000000000000000000000000000000001003")
	reviewer1  = common.HexToAddress("0x0000000000000000000000000000000000001004")
	reviewer2  = common.HexToAddress("0x0000000000000000000000000000000000001005")
)

// disputeEvents is a 1:1 dispute; the tie keeps the proposer's answer.
func disputeEvents() []types.Event {
	return []types.Event{
		&types.EventRequestRegistered{Request: requestID, Requester: requester, Question: "q", AnswerType: types.AnswerTypeBoolean, Reward: 100, ChallengeWindow: 60, Timestamp: 1},
		&types.EventAnswerProposed{Request: requestID, Proposer: proposer, Answer: "Yes", Bond: 100, Timestamp: 2},
		&types.EventChallengeSubmitted{Request: requestID, Challenger: challenger, Answer: "No", Reason: "r", Bond: 100, Timestamp: 3},
		&types.EventReviewSubmitted{Request: requestID, Reviewer: reviewer1, SupportsChallenge: false, Bond: 10, VotesAgainst: 1, Timestamp: 4},
		&types.EventReviewSubmitted{Request: requestID, Reviewer: reviewer2, SupportsChallenge: true, Bond: 10, VotesFor: 1, VotesAgainst: 1, Timestamp: 5},
		&types.EventRequestResolved{Request: requestID, Outcome: types.OutcomeProposer, Winner: proposer, Loser: challenger, CanonicalAnswer: "Yes", VotesFor: 1, VotesAgainst: 1, Total: 320, Timestamp: 6},
		&types.EventBondRefunded{Request: requestID, Recipient: proposer, Role: types.RoleProposer, Amount: 100, Timestamp: 6},
		&types.EventRewardDistributed{Request: requestID, Recipient: proposer, Role: types.RoleProposer, Amount: 168, Timestamp: 6},
		&types.EventBondRefunded{Request: requestID, Recipient: reviewer1, Role: types.RoleReviewer, Amount: 10, Timestamp: 6},
		&types.EventRewardDistributed{Request: requestID, Recipient: reviewer1, Role: types.RoleReviewer, Amount: 42, Timestamp: 6},
	}
}

type IndexerSuite struct {
	suite.Suite
	indexer *Indexer
	engine  *gin.Engine
}

func TestIndexerSuite(t *testing.T) {
	suite.Run(t, new(IndexerSuite))
}

func (s *IndexerSuite) SetupTest() {
	idx, err := NewIndexer(cmtlog.NewNopLogger(), ":memory:")
	s.Require().NoError(err)
	s.indexer = idx
	gin.SetMode(gin.TestMode)
	s.engine = gin.New()
	NewService(idx).Register(s.engine)
}

func (s *IndexerSuite) TearDownTest() {
	s.NoError(s.indexer.Close())
}

func (s *IndexerSuite) apply(evs ...types.Event) {
	for _, ev := range evs {
		s.Require().NoError(s.indexer.HandleEvent(ev), ev.EventType())
	}
}

func (s *IndexerSuite) get(path string, out any) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.engine.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func (s *IndexerSuite) stat(addr common.Address, role string) PartyStat {
	stats, err := s.indexer.getPartyStats(addr.Hex())
	s.Require().NoError(err)
	for _, st := range stats {
		if st.Role == role {
			return st
		}
	}
	s.FailNow("missing stat", "%v %s", addr, role)
	return PartyStat{}
}

func (s *IndexerSuite) TestFoldDispute() {
	s.apply(disputeEvents()...)

	record, err := s.indexer.getRequestById(requestID.Hex())
	s.Require().NoError(err)
	s.Equal(types.RequestStatusResolved.String(), record.Status)
	s.Equal(types.OutcomeProposer.String(), record.Outcome)
	s.Equal(proposer.Hex(), record.Winner)
	s.Equal(challenger.Hex(), record.Challenger)
	s.Equal(uint64(1), record.VotesFor)
	s.Equal(uint64(320), record.Paid)

	p := s.stat(proposer, types.RoleProposer)
	s.Equal(uint64(1), p.Wins)
	s.Equal(uint64(168), p.Earnings)
	s.Equal(uint64(100), p.Bonded)
	s.Equal(uint64(1), s.stat(challenger, types.RoleChallenger).Losses)
	s.Equal(uint64(1), s.stat(reviewer1, types.RoleReviewer).Wins)
	s.Equal(uint64(42), s.stat(reviewer1, types.RoleReviewer).Earnings)
	s.Equal(uint64(1), s.stat(reviewer2, types.RoleReviewer).Losses)
	s.Equal(uint64(1), s.stat(requester, types.RoleRequester).Count)

	d, err := s.indexer.getDashboard()
	s.Require().NoError(err)
	s.Equal(Dashboard{Id: dashboardID, Requests: 1, Proposals: 1, Challenges: 1, Reviews: 2, Resolved: 1, Rewards: 210, Refunds: 110}, d)
}

func (s *IndexerSuite) TestCancelled() {
	s.apply(
		&types.EventRequestRegistered{Request: requestID, Requester: requester, Reward: 50, AnswerType: types.AnswerTypeNumeric, Timestamp: 1},
		&types.EventRequestCancelled{Request: requestID, Requester: requester, Refund: 50, Timestamp: 2},
	)
	record, err := s.indexer.getRequestById(requestID.Hex())
	s.Require().NoError(err)
	s.Equal(types.RequestStatusFailed.String(), record.Status)
	d, err := s.indexer.getDashboard()
	s.Require().NoError(err)
	s.Equal(uint64(1), d.Cancelled)
	s.Zero(d.Escrowed)
}

func (s *IndexerSuite) TestUnknownRequestRollsBack() {
	err := s.indexer.HandleEvent(&types.EventAnswerProposed{Request: requestID, Proposer: proposer, Bond: 100})
	s.Error(err)
	d, err := s.indexer.getDashboard()
	s.Require().NoError(err)
	s.Zero(d.Proposals)
	stats, err := s.indexer.getPartyStats(proposer.Hex())
	s.Require().NoError(err)
	s.Empty(stats)
}

func (s *IndexerSuite) TestFollowBus() {
	bus := events.NewBus(cmtlog.NewNopLogger())
	s.Require().NoError(bus.Start())
	defer bus.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := s.indexer.Attach(ctx, bus)
	s.Require().NoError(err)
	done := make(chan error, 1)
	go func() { done <- s.indexer.Run(ctx, sub) }()

	for _, ev := range disputeEvents() {
		s.Require().NoError(bus.Emit(ctx, ev))
	}
	s.Eventually(func() bool {
		d, err := s.indexer.getDashboard()
		return err == nil && d.Refunds == 110
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func (s *IndexerSuite) TestResubscribeWhenBehind() {
	bus := events.NewBus(cmtlog.NewNopLogger())
	s.Require().NoError(bus.Start())
	defer bus.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := s.indexer.Attach(ctx, bus)
	s.Require().NoError(err)

	// nobody reads yet, so the bus drops the subscriber once Out is full
	for i := 0; i < events.DefaultOutCapacity+100; i++ {
		id := common.BytesToAddress([]byte{0x10, byte(i >> 8), byte(i)})
		s.Require().NoError(bus.Emit(ctx, &types.EventRequestRegistered{Request: id, Requester: requester, Question: "q", AnswerType: types.AnswerTypeBoolean, ChallengeWindow: 60, Timestamp: 1}))
	}
	s.Eventually(func() bool { return sub.Err() != nil }, 5*time.Second, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.indexer.Run(ctx, sub) }()
	s.Eventually(func() bool { return s.indexer.Lagged() == 1 }, 5*time.Second, 10*time.Millisecond)

	for _, ev := range disputeEvents() {
		s.Require().NoError(bus.Emit(ctx, ev))
	}
	s.Eventually(func() bool {
		d, err := s.indexer.getDashboard()
		return err == nil && d.Refunds == 110
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func (s *IndexerSuite) TestService() {
	s.apply(disputeEvents()...)

	var requests GetRequestsResponse
	s.Equal(http.StatusOK, s.get("/requests?status=Resolved", &requests))
	s.Equal(uint64(1), requests.Total)
	s.Equal(requestID.Hex(), requests.Requests[0].Id)

	s.Equal(http.StatusOK, s.get("/requests?status=Open", &requests))
	s.Zero(requests.Total)
	s.Empty(requests.Requests)

	s.Equal(http.StatusOK, s.get("/requests?party="+challenger.Hex(), &requests))
	s.Equal(uint64(1), requests.Total)
	s.Equal(http.StatusBadRequest, s.get("/requests?party=nope", nil))

	var reviews GetReviewsResponse
	s.Equal(http.StatusOK, s.get("/requests/"+requestID.Hex()+"/reviews", &reviews))
	s.Len(reviews.Reviews, 2)
	s.Equal(reviewer1.Hex(), reviews.Reviews[0].Reviewer)
	s.Equal(http.StatusNotFound, s.get("/requests/"+requester.Hex()+"/reviews", nil))

	var party GetPartyResponse
	s.Equal(http.StatusOK, s.get("/parties/"+reviewer1.Hex(), &party))
	s.Require().Len(party.Roles, 1)
	s.True(decimal.NewFromInt(1).Equal(party.Roles[0].SuccessRate))

	var d Dashboard
	s.Equal(http.StatusOK, s.get("/dashboard", &d))
	s.Equal(uint64(2), d.Reviews)
}

func (s *IndexerSuite) TestWinRate() {
	s.True(decimal.Zero.Equal(PartyStat{}.WinRate()))
	s.Equal("0.6667", PartyStat{Wins: 2, Losses: 1}.WinRate().String())
}
