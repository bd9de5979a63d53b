package types

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventRequestRegisteredType  = "RequestRegistered"
	EventAnswerProposedType     = "AnswerProposed"
	EventChallengeSubmittedType = "ChallengeSubmitted"
	EventReviewSubmittedType    = "ReviewSubmitted"
	EventRequestResolvedType    = "RequestResolved"
	EventRewardDistributedType  = "RewardDistributed"
	EventBondRefundedType       = "BondRefunded"
	EventRequestCancelledType   = "RequestCancelled"
)

const (
	RoleRequester  = "requester"
	RoleProposer   = "proposer"
	RoleChallenger = "challenger"
	RoleReviewer   = "reviewer"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedEvent   = errors.New("malformed event")
)

// Event is a domain event emitted once per state transition.
type Event interface {
	EventType() string
	RequestID() common.Address
}

type EventRequestRegistered struct {
	Request         common.Address `json:"request"`
	Requester       common.Address `json:"requester"`
	Question        string         `json:"question"`
	AnswerType      AnswerType     `json:"answerType"`
	Reward          uint64         `json:"reward"`
	ChallengeWindow uint64         `json:"challengeWindow"`
	Timestamp       int64          `json:"timestamp"`
}

type EventAnswerProposed struct {
	Request   common.Address `json:"request"`
	Proposer  common.Address `json:"proposer"`
	Answer    string         `json:"answer"`
	Bond      uint64         `json:"bond"`
	Timestamp int64          `json:"timestamp"`
}

type EventChallengeSubmitted struct {
	Request    common.Address `json:"request"`
	Challenger common.Address `json:"challenger"`
	Answer     string         `json:"answer"`
	Reason     string         `json:"reason"`
	Bond       uint64         `json:"bond"`
	Timestamp  int64          `json:"timestamp"`
}

type EventReviewSubmitted struct {
	Request           common.Address `json:"request"`
	Reviewer          common.Address `json:"reviewer"`
	SupportsChallenge bool           `json:"supportsChallenge"`
	Bond              uint64         `json:"bond"`
	VotesFor          uint64         `json:"votesFor"`
	VotesAgainst      uint64         `json:"votesAgainst"`
	Timestamp         int64          `json:"timestamp"`
}

type EventRequestResolved struct {
	Request         common.Address `json:"request"`
	Outcome         Outcome        `json:"outcome"`
	Winner          common.Address `json:"winner"`
	Loser           common.Address `json:"loser"`
	CanonicalAnswer string         `json:"canonicalAnswer"`
	VotesFor        uint64         `json:"votesFor"`
	VotesAgainst    uint64         `json:"votesAgainst"`
	Total           uint64         `json:"total"`
	Timestamp       int64          `json:"timestamp"`
}

type EventRewardDistributed struct {
	Request   common.Address `json:"request"`
	Recipient common.Address `json:"recipient"`
	Role      string         `json:"role"`
	Amount    uint64         `json:"amount"`
	Timestamp int64          `json:"timestamp"`
}

type EventBondRefunded struct {
	Request   common.Address `json:"request"`
	Recipient common.Address `json:"recipient"`
	Role      string         `json:"role"`
	Amount    uint64         `json:"amount"`
	Timestamp int64          `json:"timestamp"`
}

type EventRequestCancelled struct {
	Request   common.Address `json:"request"`
	Requester common.Address `json:"requester"`
	Refund    uint64         `json:"refund"`
	Timestamp int64          `json:"timestamp"`
}

func (e *EventRequestRegistered) EventType() string  { return EventRequestRegisteredType }
func (e *EventAnswerProposed) EventType() string     { return EventAnswerProposedType }
func (e *EventChallengeSubmitted) EventType() string { return EventChallengeSubmittedType }
func (e *EventReviewSubmitted) EventType() string    { return EventReviewSubmittedType }
func (e *EventRequestResolved) EventType() string    { return EventRequestResolvedType }
func (e *EventRewardDistributed) EventType() string  { return EventRewardDistributedType }
func (e *EventBondRefunded) EventType() string       { return EventBondRefundedType }
func (e *EventRequestCancelled) EventType() string   { return EventRequestCancelledType }

func (e *EventRequestRegistered) RequestID() common.Address  { return e.Request }
func (e *EventAnswerProposed) RequestID() common.Address     { return e.Request }
func (e *EventChallengeSubmitted) RequestID() common.Address { return e.Request }
func (e *EventReviewSubmitted) RequestID() common.Address    { return e.Request }
func (e *EventRequestResolved) RequestID() common.Address    { return e.Request }
func (e *EventRewardDistributed) RequestID() common.Address  { return e.Request }
func (e *EventBondRefunded) RequestID() common.Address       { return e.Request }
func (e *EventRequestCancelled) RequestID() common.Address   { return e.Request }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
func i64(v int64) string  { return strconv.FormatInt(v, 10) }

// EncodeEvent converts a domain event to its abci wire form. Attributes
// flagged Index are the ones subscribers may query on.
func EncodeEvent(ev Event) abci.Event {
	var attrs []abci.EventAttribute
	switch e := ev.(type) {
	case *EventRequestRegistered:
		attrs = []abci.EventAttribute{
			{Key: "request", Value: e.Request.Hex(), Index: true},
			{Key: "requester", Value: e.Requester.Hex(), Index: true},
			{Key: "question", Value: e.Question, Index: false},
			{Key: "answerType", Value: u64(uint64(e.AnswerType)), Index: false},
			{Key: "reward", Value: u64(e.Reward), Index: false},
			{Key: "challengeWindow", Value: u64(e.ChallengeWindow), Index: false},
			{Key: "timestamp", Value: i64(e.Timestamp), Index: false},
		}
	case *EventAnswerProposed:
		attrs = []abci.EventAttribute{
			{Key: "request", Value: e.Request.Hex(), Index: true},
			{Key: "proposer", Value: e.Proposer.Hex(), Index: true},
			{Key: "answer", Value: e.Answer, Index: false},
			{Key: "bond", Value: u64(e.Bond), Index: false},
			{Key: "timestamp", Value: i64(e.Timestamp), Index: false},
		}
	case *EventChallengeSubmitted:
		attrs = []abci.EventAttribute{
			{Key: "request", Value: e.Request.Hex(), Index: true},
			{Key: "challenger", Value: e.Challenger.Hex(), Index: true},
			{Key: "answer", Value: e.Answer, Index: false},
			{Key: "reason", Value: e.Reason, Index: false},
			{Key: "bond", Value: u64(e.Bond), Index: false},
			{Key: "timestamp", Value: i64(e.Timestamp), Index: false},
		}
	case *EventReviewSubmitted:
		attrs = []abci.EventAttribute{
			{Key: "request", Value: e.Request.Hex(), Index: true},
			{Key: "reviewer", Value: e.Reviewer.Hex(), Index: true},
			{Key: "supportsChallenge", Value: strconv.FormatBool(e.SupportsChallenge), Index: false},
			{Key: "bond", Value: u64(e.Bond), Index: false},
			{Key: "votesFor", Value: u64(e.VotesFor), Index: false},
			{Key: "votesAgainst", Value: u64(e.VotesAgainst), Index: false},
			{Key: "timestamp", Value: i64(e.Timestamp), Index: false},
		}
	case *EventRequestResolved:
		attrs = []abci.EventAttribute{
			{Key: "request", Value: e.Request.Hex(), Index: true},
			{Key: "outcome", Value: u64(uint64(e.Outcome)), Index: true},
			{Key: "winner", Value: e.Winner.Hex(), Index: true},
			{Key: "loser", Value: e.Loser.Hex(), Index: false},
			{Key: "canonicalAnswer", Value: e.CanonicalAnswer, Index: false},
			{Key: "votesFor", Value: u64(e.VotesFor), Index: false},
			{Key: "votesAgainst", Value: u64(e.VotesAgainst), Index: false},
			{Key: "total", Value: u64(e.Total), Index: false},
			{Key: "timestamp", Value: i64(e.Timestamp), Index: false},
		}
	case *EventRewardDistributed:
		attrs = payoutAttributes(e.Request, e.Recipient, e.Role, e.Amount, e.Timestamp)
	case *EventBondRefunded:
		attrs = payoutAttributes(e.Request, e.Recipient, e.Role, e.Amount, e.Timestamp)
	case *EventRequestCancelled:
		attrs = []abci.EventAttribute{
			{Key: "request", Value: e.Request.Hex(), Index: true},
			{Key: "requester", Value: e.Requester.Hex(), Index: true},
			{Key: "refund", Value: u64(e.Refund), Index: false},
			{Key: "timestamp", Value: i64(e.Timestamp), Index: false},
		}
	}
	return abci.Event{Type: ev.EventType(), Attributes: attrs}
}

func payoutAttributes(request, recipient common.Address, role string, amount uint64, ts int64) []abci.EventAttribute {
	return []abci.EventAttribute{
		{Key: "request", Value: request.Hex(), Index: true},
		{Key: "recipient", Value: recipient.Hex(), Index: true},
		{Key: "role", Value: role, Index: false},
		{Key: "amount", Value: u64(amount), Index: false},
		{Key: "timestamp", Value: i64(ts), Index: false},
	}
}

// attrReader collects the first parse failure so decoders stay linear.
type attrReader struct {
	kv  map[string]string
	err error
}

func newAttrReader(ev abci.Event) *attrReader {
	r := &attrReader{kv: make(map[string]string, len(ev.Attributes))}
	for _, a := range ev.Attributes {
		r.kv[a.Key] = a.Value
	}
	return r
}

func (r *attrReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: attribute %q: %v", ErrMalformedEvent, key, err)
	}
}

func (r *attrReader) str(key string) string {
	return r.kv[key]
}

func (r *attrReader) addr(key string) common.Address {
	v := r.kv[key]
	if !common.IsHexAddress(v) {
		r.fail(key, fmt.Errorf("not an address: %q", v))
		return common.Address{}
	}
	return common.HexToAddress(v)
}

func (r *attrReader) uint(key string) uint64 {
	v, err := strconv.ParseUint(r.kv[key], 10, 64)
	if err != nil {
		r.fail(key, err)
	}
	return v
}

func (r *attrReader) int(key string) int64 {
	v, err := strconv.ParseInt(r.kv[key], 10, 64)
	if err != nil {
		r.fail(key, err)
	}
	return v
}

func (r *attrReader) bool(key string) bool {
	v, err := strconv.ParseBool(r.kv[key])
	if err != nil {
		r.fail(key, err)
	}
	return v
}

// DecodeEvent parses an abci event produced by EncodeEvent.
func DecodeEvent(originEvent abci.Event) (Event, error) {
	r := newAttrReader(originEvent)
	var ev Event
	switch originEvent.Type {
	case EventRequestRegisteredType:
		ev = &EventRequestRegistered{
			Request:         r.addr("request"),
			Requester:       r.addr("requester"),
			Question:        r.str("question"),
			AnswerType:      AnswerType(r.uint("answerType")),
			Reward:          r.uint("reward"),
			ChallengeWindow: r.uint("challengeWindow"),
			Timestamp:       r.int("timestamp"),
		}
	case EventAnswerProposedType:
		ev = &EventAnswerProposed{
			Request:   r.addr("request"),
			Proposer:  r.addr("proposer"),
			Answer:    r.str("answer"),
			Bond:      r.uint("bond"),
			Timestamp: r.int("timestamp"),
		}
	case EventChallengeSubmittedType:
		ev = &EventChallengeSubmitted{
			Request:    r.addr("request"),
			Challenger: r.addr("challenger"),
			Answer:     r.str("answer"),
			Reason:     r.str("reason"),
			Bond:       r.uint("bond"),
			Timestamp:  r.int("timestamp"),
		}
	case EventReviewSubmittedType:
		ev = &EventReviewSubmitted{
			Request:           r.addr("request"),
			Reviewer:          r.addr("reviewer"),
			SupportsChallenge: r.bool("supportsChallenge"),
			Bond:              r.uint("bond"),
			VotesFor:          r.uint("votesFor"),
			VotesAgainst:      r.uint("votesAgainst"),
			Timestamp:         r.int("timestamp"),
		}
	case EventRequestResolvedType:
		ev = &EventRequestResolved{
			Request:         r.addr("request"),
			Outcome:         Outcome(r.uint("outcome")),
			Winner:          r.addr("winner"),
			Loser:           r.addr("loser"),
			CanonicalAnswer: r.str("canonicalAnswer"),
			VotesFor:        r.uint("votesFor"),
			VotesAgainst:    r.uint("votesAgainst"),
			Total:           r.uint("total"),
			Timestamp:       r.int("timestamp"),
		}
	case EventRewardDistributedType:
		ev = &EventRewardDistributed{
			Request:   r.addr("request"),
			Recipient: r.addr("recipient"),
			Role:      r.str("role"),
			Amount:    r.uint("amount"),
			Timestamp: r.int("timestamp"),
		}
	case EventBondRefundedType:
		ev = &EventBondRefunded{
			Request:   r.addr("request"),
			Recipient: r.addr("recipient"),
			Role:      r.str("role"),
			Amount:    r.uint("amount"),
			Timestamp: r.int("timestamp"),
		}
	case EventRequestCancelledType:
		ev = &EventRequestCancelled{
			Request:   r.addr("request"),
			Requester: r.addr("requester"),
			Refund:    r.uint("refund"),
			Timestamp: r.int("timestamp"),
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, originEvent.Type)
	}
	if r.err != nil {
		return nil, r.err
	}
	return ev, nil
}

// EventTime converts an event timestamp back to a time.
func EventTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}
