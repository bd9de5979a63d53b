package tx

import (
	"errors"
	"strings"

	"github.com/calehh/oracle-node/types"
)

type OracleTxType uint8

const (
	OracleTxTypeUnknown       OracleTxType = 0
	OracleTxTypeCreateRequest OracleTxType = 1
	OracleTxTypePropose       OracleTxType = 2
	OracleTxTypeChallenge     OracleTxType = 3
	OracleTxTypeReview        OracleTxType = 4
	OracleTxTypeFinalize      OracleTxType = 5
	OracleTxTypeCancel        OracleTxType = 6
	OracleTxTypeScore         OracleTxType = 7
)

var txTypeNames = map[OracleTxType]string{
	OracleTxTypeCreateRequest: "create_request",
	OracleTxTypePropose:       "propose",
	OracleTxTypeChallenge:     "challenge",
	OracleTxTypeReview:        "review",
	OracleTxTypeFinalize:      "finalize",
	OracleTxTypeCancel:        "cancel",
	OracleTxTypeScore:         "score",
}

func (t OracleTxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func ParseOracleTxType(s string) OracleTxType {
	s = strings.ToLower(s)
	for t, name := range txTypeNames {
		if name == s {
			return t
		}
	}
	return OracleTxTypeUnknown
}

const (
	OracleTxVersion0 uint8 = 0
)

// Result codes carried by check and deliver responses.
const (
	CodeTypeOK            uint32 = 0
	CodeTypeInternal      uint32 = 1
	CodeTypeEncoding      uint32 = 2
	CodeTypePrecondition  uint32 = 3
	CodeTypeAuthorization uint32 = 4
	CodeTypeResource      uint32 = 5
	CodeTypeInput         uint32 = 6
	CodeTypeNotFound      uint32 = 7
)

var (
	ErrInvalidTx            = errors.New("invalid tx")
	ErrUnsupportedTxType    = errors.New("unsupported tx type")
	ErrUnsupportedTxVersion = errors.New("unsupported tx version")
	ErrInvalidSender        = errors.New("invalid sender")
)

// CodeOf maps err to the result code reported to clients.
func CodeOf(err error) uint32 {
	if err == nil {
		return CodeTypeOK
	}
	switch {
	case errors.Is(err, types.ErrRequestNotFound):
		return CodeTypeNotFound
	case errors.Is(err, ErrInvalidTx), errors.Is(err, ErrUnsupportedTxType),
		errors.Is(err, ErrUnsupportedTxVersion):
		return CodeTypeEncoding
	case errors.Is(err, ErrInvalidSender):
		return CodeTypeAuthorization
	}
	switch types.KindOf(err) {
	case types.KindPrecondition:
		return CodeTypePrecondition
	case types.KindAuthorization:
		return CodeTypeAuthorization
	case types.KindResource:
		return CodeTypeResource
	case types.KindInput:
		return CodeTypeInput
	}
	return CodeTypeInternal
}
