package indexer

// sqlite models

type RequestRecord struct {
	Id               string `gorm:"primary_key" json:"id"`
	Requester        string `gorm:"index" json:"requester"`
	Question         string `json:"question"`
	AnswerType       string `json:"answer_type"`
	Reward           uint64 `json:"reward"`
	ChallengeWindow  uint64 `json:"challenge_window"`
	Status           string `gorm:"index" json:"status"`
	Proposer         string `gorm:"index" json:"proposer"`
	ProposedAnswer   string `json:"proposed_answer"`
	ProposerBond     uint64 `json:"proposer_bond"`
	Challenger       string `gorm:"index" json:"challenger"`
	CounterAnswer    string `json:"counter_answer"`
	ChallengeReason  string `json:"challenge_reason"`
	ChallengerBond   uint64 `json:"challenger_bond"`
	VotesFor         uint64 `json:"votes_for"`
	VotesAgainst     uint64 `json:"votes_against"`
	Outcome          string `json:"outcome"`
	Winner           string `json:"winner"`
	CanonicalAnswer  string `json:"canonical_answer"`
	Paid             uint64 `json:"paid"`
	CreateTimestamp  int64  `json:"create_timestamp"`
	ProposeTimestamp int64  `json:"propose_timestamp"`
	ResolveTimestamp int64  `json:"resolve_timestamp"`
}

type ReviewRecord struct {
	Id                uint64 `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Request           string `gorm:"index" json:"request"`
	Reviewer          string `gorm:"index" json:"reviewer"`
	SupportsChallenge bool   `json:"supports_challenge"`
	Bond              uint64 `json:"bond"`
	Timestamp         int64  `json:"timestamp"`
}

// PartyStat aggregates one address in one role.
type PartyStat struct {
	Id       uint64 `gorm:"primary_key;AUTO_INCREMENT" json:"-"`
	Address  string `gorm:"unique_index:idx_party_role" json:"address"`
	Role     string `gorm:"unique_index:idx_party_role" json:"role"`
	Count    uint64 `json:"count"`
	Wins     uint64 `json:"wins"`
	Losses   uint64 `json:"losses"`
	Earnings uint64 `json:"earnings"`
	Bonded   uint64 `json:"bonded"`
}

type Dashboard struct {
	Id         uint64 `gorm:"primary_key" json:"-"`
	Requests   uint64 `json:"requests"`
	Proposals  uint64 `json:"proposals"`
	Challenges uint64 `json:"challenges"`
	Reviews    uint64 `json:"reviews"`
	Resolved   uint64 `json:"resolved"`
	Cancelled  uint64 `json:"cancelled"`
	Rewards    uint64 `json:"rewards"`
	Refunds    uint64 `json:"refunds"`
	Escrowed   uint64 `json:"escrowed"`
}
