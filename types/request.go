package types

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MaxChallengeWindow is the longest challenge window, in seconds, that
// still fits a time.Duration.
const MaxChallengeWindow = uint64(math.MaxInt64 / int64(time.Second))

type RequestStatus uint64

const (
	RequestStatusPending    RequestStatus = 1
	RequestStatusOpen       RequestStatus = 2
	RequestStatusProposed   RequestStatus = 3
	RequestStatusChallenged RequestStatus = 4
	RequestStatusResolved   RequestStatus = 5
	RequestStatusFailed     RequestStatus = 6
)

var requestStatusNames = map[RequestStatus]string{
	RequestStatusPending:    "Pending",
	RequestStatusOpen:       "Open",
	RequestStatusProposed:   "Proposed",
	RequestStatusChallenged: "Challenged",
	RequestStatusResolved:   "Resolved",
	RequestStatusFailed:     "Failed",
}

func (s RequestStatus) String() string {
	if n, ok := requestStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("RequestStatus(%d)", uint64(s))
}

func ParseRequestStatus(s string) (RequestStatus, bool) {
	for k, v := range requestStatusNames {
		if strings.EqualFold(v, s) {
			return k, true
		}
	}
	return 0, false
}

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusResolved || s == RequestStatusFailed
}

// CanTransition reports whether next is a legal successor of s.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case RequestStatusPending:
		return next == RequestStatusOpen || next == RequestStatusFailed
	case RequestStatusOpen:
		return next == RequestStatusProposed || next == RequestStatusFailed
	case RequestStatusProposed:
		return next == RequestStatusResolved || next == RequestStatusChallenged
	case RequestStatusChallenged:
		return next == RequestStatusResolved || next == RequestStatusFailed
	}
	return false
}

type AnswerType uint8

const (
	AnswerTypeBoolean AnswerType = 1
	AnswerTypeNumeric AnswerType = 2
)

func (t AnswerType) String() string {
	switch t {
	case AnswerTypeBoolean:
		return "Boolean"
	case AnswerTypeNumeric:
		return "Numeric"
	}
	return fmt.Sprintf("AnswerType(%d)", uint8(t))
}

func ParseAnswerType(s string) (AnswerType, bool) {
	switch strings.ToLower(s) {
	case "boolean", "bool":
		return AnswerTypeBoolean, true
	case "numeric", "number":
		return AnswerTypeNumeric, true
	}
	return 0, false
}

func (t AnswerType) Valid() bool {
	return t == AnswerTypeBoolean || t == AnswerTypeNumeric
}

// CanonicalAnswer normalises an answer of type t. Boolean answers become
// "Yes" or "No"; numeric answers are printed as the shortest decimal.
func (t AnswerType) CanonicalAnswer(answer string) (string, error) {
	answer = strings.TrimSpace(answer)
	switch t {
	case AnswerTypeBoolean:
		switch strings.ToLower(answer) {
		case "yes", "true":
			return "Yes", nil
		case "no", "false":
			return "No", nil
		}
	case AnswerTypeNumeric:
		d, err := decimal.NewFromString(answer)
		if err == nil {
			return d.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %q is not a %v answer", ErrInvalidAnswer, answer, t)
}

type Outcome uint8

const (
	OutcomeNone         Outcome = 0
	OutcomeUnchallenged Outcome = 1
	OutcomeChallenger   Outcome = 2
	OutcomeProposer     Outcome = 3
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchallenged:
		return "Unchallenged"
	case OutcomeChallenger:
		return "ChallengerWins"
	case OutcomeProposer:
		return "ProposerWins"
	}
	return "None"
}

type Decision string

const (
	DecisionConfident Decision = "confident"
	DecisionModerate  Decision = "moderate"
	DecisionUncertain Decision = "uncertain"
)

func (d Decision) Valid() bool {
	return d == DecisionConfident || d == DecisionModerate || d == DecisionUncertain
}

// RiskScore is advisory metadata produced by the external scoring service.
type RiskScore struct {
	Score         int64          `json:"score"`
	Heatmap       map[string]any `json:"heatmap,omitempty"`
	FinalDecision Decision       `json:"final_decision"`
}

type Request struct {
	ID              common.Address `json:"id"`
	Index           uint64         `json:"index"`
	Requester       common.Address `json:"requester"`
	Question        string         `json:"question"`
	Context         string         `json:"context"`
	TruthMeaning    string         `json:"truth_meaning,omitempty"`
	AnswerType      AnswerType     `json:"answer_type"`
	RewardAmount    uint64         `json:"reward_amount"`
	ChallengeWindow uint64         `json:"challenge_window"`
	Status          RequestStatus  `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	Scoring         *RiskScore     `json:"scoring,omitempty"`
	Proposal        *Proposal      `json:"proposal,omitempty"`
	Outcome         Outcome        `json:"outcome"`
	CanonicalAnswer string         `json:"canonical_answer,omitempty"`
	ResolvedAt      time.Time      `json:"resolved_at,omitempty"`
}

type Proposal struct {
	Proposer     common.Address `json:"proposer"`
	Answer       string         `json:"answer"`
	Bond         uint64         `json:"bond"`
	CreatedAt    time.Time      `json:"created_at"`
	IsChallenged bool           `json:"is_challenged"`
	Challenge    *Challenge     `json:"challenge,omitempty"`
}

type Challenge struct {
	Challenger   common.Address `json:"challenger"`
	Answer       string         `json:"answer"`
	Reason       string         `json:"reason"`
	Bond         uint64         `json:"bond"`
	CreatedAt    time.Time      `json:"created_at"`
	VotesFor     uint64         `json:"votes_for"`
	VotesAgainst uint64         `json:"votes_against"`
	Reviews      []Review       `json:"reviews,omitempty"`
}

type Review struct {
	Reviewer          common.Address `json:"reviewer"`
	Reason            string         `json:"reason"`
	Bond              uint64         `json:"bond"`
	CreatedAt         time.Time      `json:"created_at"`
	SupportsChallenge bool           `json:"supports_challenge"`
}

// ChallengeDeadline is the last instant a challenge is accepted.
func (r *Request) ChallengeDeadline() time.Time {
	if r.Proposal == nil {
		return time.Time{}
	}
	window := r.ChallengeWindow
	if window > MaxChallengeWindow {
		window = MaxChallengeWindow
	}
	return r.Proposal.CreatedAt.Add(time.Duration(window) * time.Second)
}

// Challenge returns the attached challenge, if any.
func (r *Request) Challenge() *Challenge {
	if r.Proposal == nil {
		return nil
	}
	return r.Proposal.Challenge
}

func (c *Challenge) HasReviewed(reviewer common.Address) bool {
	for _, rv := range c.Reviews {
		if rv.Reviewer == reviewer {
			return true
		}
	}
	return false
}

// IsParty reports whether addr is the requester, proposer or challenger.
func (r *Request) IsParty(addr common.Address) bool {
	if addr == r.Requester {
		return true
	}
	if r.Proposal == nil {
		return false
	}
	if addr == r.Proposal.Proposer {
		return true
	}
	c := r.Proposal.Challenge
	return c != nil && addr == c.Challenger
}

func (r *Request) Clone() *Request {
	n := *r
	if r.Scoring != nil {
		s := *r.Scoring
		if r.Scoring.Heatmap != nil {
			s.Heatmap = make(map[string]any, len(r.Scoring.Heatmap))
			for k, v := range r.Scoring.Heatmap {
				s.Heatmap[k] = v
			}
		}
		n.Scoring = &s
	}
	if r.Proposal != nil {
		p := *r.Proposal
		if p.Challenge != nil {
			c := *p.Challenge
			c.Reviews = append([]Review(nil), p.Challenge.Reviews...)
			p.Challenge = &c
		}
		n.Proposal = &p
	}
	return &n
}
