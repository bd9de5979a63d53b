package scoring

import (
	"context"
	"sync"

	"github.com/calehh/oracle-node/types"
)

// MockClient returns a fixed score, or Err when set, and counts calls.
type MockClient struct {
	mtx   sync.Mutex
	Resp  types.RiskScore
	Err   error
	Calls int
}

func NewMockClient() *MockClient {
	return &MockClient{
		Resp: types.RiskScore{Score: 50, FinalDecision: types.DecisionModerate},
	}
}

func (m *MockClient) Score(ctx context.Context, question, questionContext string) (*types.RiskScore, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	resp := m.Resp
	return &resp, nil
}
