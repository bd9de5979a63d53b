package upkeep

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

const DefaultBatchSize = 50

// Finalizer is the slice of the coordinator the keeper drives.
type Finalizer interface {
	ListRequests(status types.RequestStatus) ([]*types.Request, error)
	IsFinalizable(r *types.Request) bool
	Finalize(ctx context.Context, id common.Address) (*types.Request, error)
}

// Keeper polls for requests whose windows have closed and finalizes them.
type Keeper struct {
	logger    cmtlog.Logger
	oracle    Finalizer
	interval  time.Duration
	batchSize int

	mtx sync.Mutex
	// round of the last PerformUpkeep that failed to finalize each id
	failed map[common.Address]uint64
	round  uint64
}

func NewKeeper(oracle Finalizer, interval time.Duration, logger cmtlog.Logger) *Keeper {
	return &Keeper{
		logger:    logger.With("module", "upkeep"),
		oracle:    oracle,
		interval:  interval,
		batchSize: DefaultBatchSize,
		failed:    make(map[common.Address]uint64),
	}
}

// CheckUpkeep lists up to one batch of request ids that can be finalized now.
// Ids that failed before only fill the room left by the others, the least
// recently tried first.
func (k *Keeper) CheckUpkeep() ([]common.Address, error) {
	var ids, retry []common.Address
	for _, status := range []types.RequestStatus{types.RequestStatusProposed, types.RequestStatusChallenged} {
		requests, err := k.oracle.ListRequests(status)
		if err != nil {
			return nil, err
		}
		for _, r := range requests {
			if !k.oracle.IsFinalizable(r) {
				continue
			}
			if k.hasFailed(r.ID) {
				retry = append(retry, r.ID)
			} else if len(ids) < k.batchSize {
				ids = append(ids, r.ID)
			}
		}
	}

	k.mtx.Lock()
	defer k.mtx.Unlock()
	due := make(map[common.Address]uint64, len(retry))
	for _, id := range retry {
		due[id] = k.failed[id]
	}
	k.failed = due
	slices.SortStableFunc(retry, func(a, b common.Address) int {
		return cmp.Compare(due[a], due[b])
	})
	for _, id := range retry {
		if len(ids) >= k.batchSize {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (k *Keeper) hasFailed(id common.Address) bool {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	_, ok := k.failed[id]
	return ok
}

func (k *Keeper) markFailed(id common.Address, round uint64, failed bool) {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	if failed {
		k.failed[id] = round
	} else {
		delete(k.failed, id)
	}
}

// PerformUpkeep finalizes ids. Requests another caller finalized first are
// skipped; any other failure is collected and the rest still run.
func (k *Keeper) PerformUpkeep(ctx context.Context, ids []common.Address) (resolved int, err error) {
	k.mtx.Lock()
	k.round++
	round := k.round
	k.mtx.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return resolved, multierr.Append(err, ctx.Err())
		}
		r, ferr := k.oracle.Finalize(ctx, id)
		k.markFailed(id, round, ferr != nil && !errors.Is(ferr, types.ErrAlreadyResolved))
		switch {
		case errors.Is(ferr, types.ErrAlreadyResolved):
			continue
		case ferr != nil:
			k.logger.Error("finalize fail", "request", id, "err", ferr)
			err = multierr.Append(err, ferr)
			continue
		}
		resolved++
		k.logger.Debug("finalized", "request", id, "outcome", r.Outcome)
	}
	return
}

// Run checks and performs upkeep every interval until ctx ends.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ids, err := k.CheckUpkeep()
			if err != nil {
				k.logger.Error("check upkeep fail", "err", err)
				continue
			}
			if len(ids) == 0 {
				continue
			}
			n, err := k.PerformUpkeep(ctx, ids)
			k.logger.Info("upkeep performed", "due", len(ids), "resolved", n, "err", err)
		}
	}
}
