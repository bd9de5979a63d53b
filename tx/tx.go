package tx

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OracleTx is the envelope of every state-changing call. The acting
// party is not part of it; the transport supplies the sender.
type OracleTx struct {
	Version uint8        `json:"version"`
	Type    OracleTxType `json:"type"`
	Tx      any          `json:"tx"`
}

type CreateRequestTx struct {
	Question        string `json:"question"`
	Context         string `json:"context"`
	TruthMeaning    string `json:"truthMeaning,omitempty"`
	AnswerType      string `json:"answerType"`
	ChallengeWindow uint64 `json:"challengeWindow"`
	Reward          uint64 `json:"reward"`
}

type ProposeTx struct {
	Request common.Address `json:"request"`
	Answer  string         `json:"answer"`
}

type ChallengeTx struct {
	Request common.Address `json:"request"`
	Answer  string         `json:"answer"`
	Reason  string         `json:"reason"`
}

type ReviewTx struct {
	Request           common.Address `json:"request"`
	Reason            string         `json:"reason,omitempty"`
	SupportsChallenge bool           `json:"supportsChallenge"`
}

type FinalizeTx struct {
	Request common.Address `json:"request"`
}

type CancelTx struct {
	Request common.Address `json:"request"`
}

type ScoreTx struct {
	Request common.Address `json:"request"`
}

type oracleTxTmpl[Tx any] struct {
	Version uint8        `json:"version"`
	Type    OracleTxType `json:"type"`
	Tx      Tx           `json:"tx"`
}

func parseOracleTxType(dat []byte) OracleTxType {
	var tx struct {
		Type OracleTxType `json:"type"`
	}
	err := json.Unmarshal(dat, &tx)
	if err != nil {
		return OracleTxTypeUnknown
	}
	return tx.Type
}

func unmarshalOracleTx[Tx any](dat []byte) (btx *OracleTx, err error) {
	var txt oracleTxTmpl[Tx]
	err = json.Unmarshal(dat, &txt)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidTx, err)
		return
	}
	if txt.Version != OracleTxVersion0 {
		err = fmt.Errorf("%w: %d", ErrUnsupportedTxVersion, txt.Version)
		return
	}
	btx = new(OracleTx)
	btx.Version = txt.Version
	btx.Type = txt.Type
	btx.Tx = &txt.Tx
	return
}

func UnmarshalOracleTx(dat []byte) (btx *OracleTx, err error) {
	tp := parseOracleTxType(dat)
	switch tp {
	case OracleTxTypeCreateRequest:
		return unmarshalOracleTx[CreateRequestTx](dat)
	case OracleTxTypePropose:
		return unmarshalOracleTx[ProposeTx](dat)
	case OracleTxTypeChallenge:
		return unmarshalOracleTx[ChallengeTx](dat)
	case OracleTxTypeReview:
		return unmarshalOracleTx[ReviewTx](dat)
	case OracleTxTypeFinalize:
		return unmarshalOracleTx[FinalizeTx](dat)
	case OracleTxTypeCancel:
		return unmarshalOracleTx[CancelTx](dat)
	case OracleTxTypeScore:
		return unmarshalOracleTx[ScoreTx](dat)
	default:
		err = fmt.Errorf("%w: %d", ErrUnsupportedTxType, tp)
	}
	return
}

func MarshalOracleTx(btx *OracleTx) (dat []byte, err error) {
	return json.Marshal(btx)
}

// NewOracleTx wraps payload in a version 0 envelope of type tp.
func NewOracleTx(tp OracleTxType, payload any) *OracleTx {
	return &OracleTx{Version: OracleTxVersion0, Type: tp, Tx: payload}
}
