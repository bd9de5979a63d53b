package types

import "errors"

// Kind groups oracle errors by the class of invariant they protect.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPrecondition
	KindAuthorization
	KindResource
	KindInput
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "PreconditionViolation"
	case KindAuthorization:
		return "AuthorizationViolation"
	case KindResource:
		return "ResourceViolation"
	case KindInput:
		return "InputViolation"
	default:
		return "Unknown"
	}
}

// Kind sentinels, matched with errors.Is against any *Error of that kind.
var (
	ErrPrecondition  = &kindError{KindPrecondition}
	ErrAuthorization = &kindError{KindAuthorization}
	ErrResource      = &kindError{KindResource}
	ErrInput         = &kindError{KindInput}
)

type kindError struct {
	kind Kind
}

func (e *kindError) Error() string {
	return e.kind.String()
}

// Error is a classified oracle error. Code is the short machine readable
// name returned to callers alongside the kind.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Is(target error) bool {
	if k, ok := target.(*kindError); ok {
		return k.kind == e.Kind
	}
	return target == error(e)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first classified error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var (
	ErrRequestNotFound     = errors.New("request not found")
	ErrRequestNotOpen      = newError(KindPrecondition, "RequestNotOpen", "request is not open")
	ErrRequestNotProposed  = newError(KindPrecondition, "RequestNotProposed", "request has no proposal")
	ErrAlreadyChallenged   = newError(KindPrecondition, "AlreadyChallenged", "proposal already challenged")
	ErrNotChallenged       = newError(KindPrecondition, "NotChallenged", "request is not challenged")
	ErrWindowExpired       = newError(KindPrecondition, "WindowExpired", "challenge window expired")
	ErrReviewWindowExpired = newError(KindPrecondition, "ReviewWindowExpired", "review window expired")
	ErrNotYetFinalizable   = newError(KindPrecondition, "NotYetFinalizable", "request not yet finalizable")
	ErrAlreadyResolved     = newError(KindPrecondition, "AlreadyResolved", "request already resolved")
	ErrDuplicateReview     = newError(KindPrecondition, "DuplicateReview", "reviewer already reviewed this request")

	ErrSelfDealingForbidden = newError(KindAuthorization, "SelfDealingForbidden", "self dealing forbidden")
	ErrConflictOfInterest   = newError(KindAuthorization, "ConflictOfInterest", "reviewer has a conflict of interest")
	ErrNotRequester         = newError(KindAuthorization, "NotRequester", "only the requester may do this")

	ErrInsufficientBond = newError(KindResource, "InsufficientBond", "insufficient funds for bond")
	ErrEscrowFailed     = newError(KindResource, "EscrowFailed", "reward escrow failed")
	ErrPayoutFailed     = newError(KindResource, "PayoutFailed", "settlement payout failed")

	ErrInvalidParameters = newError(KindInput, "InvalidParameters", "invalid request parameters")
	ErrInvalidAnswer     = newError(KindInput, "InvalidAnswer", "answer does not match answer type")
	ErrSameAnswer        = newError(KindInput, "SameAnswer", "counter answer equals proposed answer")
	ErrEmptyReason       = newError(KindInput, "EmptyReason", "reason is empty")
	ErrInvalidParty      = newError(KindInput, "InvalidParty", "party address is empty")
)
