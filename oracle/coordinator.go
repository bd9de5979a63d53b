package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/calehh/oracle-node/config"
	"github.com/calehh/oracle-node/ledger"
	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

var ErrScoringDisabled = errors.New("risk scoring is not configured")

// Repository stores requests. GetRequest fails with types.ErrRequestNotFound
// for unknown ids.
type Repository interface {
	AllocSequence() (uint64, error)
	GetRequest(id common.Address) (*types.Request, error)
	PutRequest(r *types.Request) error
	ListRequests(status types.RequestStatus) ([]*types.Request, error)
}

// Ledger moves the funds backing requests and bonds.
type Ledger interface {
	Escrow(party common.Address, amount uint64, tag string) error
	Lock(party common.Address, amount uint64, tag string, kind types.LockKind) error
	Refund(tag string) (uint64, error)
	Settle(plan ledger.Plan) (*ledger.Receipt, error)
	Revert(receipt *ledger.Receipt) error
}

type RiskScorer interface {
	Score(ctx context.Context, question, context string) (*types.RiskScore, error)
}

// EventSink receives one event per transition, after it is committed.
type EventSink interface {
	Emit(ctx context.Context, ev types.Event) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// MultiSink fans events out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev types.Event) (err error) {
	for _, sink := range m {
		err = multierr.Append(err, sink.Emit(ctx, ev))
	}
	return
}

type nopSink struct{}

func (nopSink) Emit(context.Context, types.Event) error { return nil }

type Option func(*Coordinator)

func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithScorer(scorer RiskScorer) Option {
	return func(c *Coordinator) { c.scorer = scorer }
}

func WithEventSink(sink EventSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

func WithLogger(logger cmtlog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// Coordinator runs the request lifecycle. Operations on one request are
// serialized; operations on different requests run in parallel and share
// only the repository and the ledger.
type Coordinator struct {
	params config.OracleConfig
	repo   Repository
	ledger Ledger

	clock  Clock
	scorer RiskScorer
	sink   EventSink
	logger cmtlog.Logger

	locks keyedMutex
}

func NewCoordinator(params config.OracleConfig, repo Repository, ldg Ledger, opts ...Option) (*Coordinator, error) {
	if err := params.ValidateBasic(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		params: params,
		repo:   repo,
		ledger: ldg,
		clock:  systemClock{},
		sink:   nopSink{},
		logger: cmtlog.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("module", "oracle")
	return c, nil
}

func (c *Coordinator) Params() config.OracleConfig {
	return c.params
}

// now is the coordinator clock at second precision, matching event
// timestamps.
func (c *Coordinator) now() time.Time {
	return c.clock.Now().UTC().Truncate(time.Second)
}

func (c *Coordinator) emit(ctx context.Context, evs ...types.Event) {
	for _, ev := range evs {
		if err := c.sink.Emit(ctx, ev); err != nil {
			c.logger.Error("emit event fail", "type", ev.EventType(), "request", ev.RequestID(), "err", err)
		}
	}
}

// refund undoes a lock taken for a transition that failed to persist.
func (c *Coordinator) refund(tag string) {
	if _, err := c.ledger.Refund(tag); err != nil {
		c.logger.Error("refund after failed write fail", "tag", tag, "err", err)
	}
}

func (c *Coordinator) GetRequest(id common.Address) (*types.Request, error) {
	return c.repo.GetRequest(id)
}

func (c *Coordinator) ListRequests(status types.RequestStatus) ([]*types.Request, error) {
	return c.repo.ListRequests(status)
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per request id and forgets it once no
// caller holds or waits for it.
type keyedMutex struct {
	mtx   sync.Mutex
	locks map[common.Address]*refMutex
}

func (k *keyedMutex) lock(id common.Address) (unlock func()) {
	k.mtx.Lock()
	if k.locks == nil {
		k.locks = make(map[common.Address]*refMutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = new(refMutex)
		k.locks[id] = m
	}
	m.refs++
	k.mtx.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mtx.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mtx.Unlock()
	}
}
