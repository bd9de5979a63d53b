package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/calehh/oracle-node/events"
	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmtpubsub "github.com/cometbft/cometbft/libs/pubsub"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

const dashboardID = 1

var ErrNoHandler = errors.New("no handler for event")

// Subscriber is the event source the indexer follows.
type Subscriber interface {
	Subscribe(ctx context.Context, query cmtpubsub.Query, outCap int) (*events.Subscription, error)
	Unsubscribe(ctx context.Context, s *events.Subscription) error
}

// Indexer folds oracle events into sqlite read models. The tables are
// derived data; the state store stays authoritative.
type Indexer struct {
	logger        cmtlog.Logger
	db            *gorm.DB
	eventHandlers map[string]eventHandler

	bus    Subscriber
	lagged atomic.Uint64
}

type eventHandler func(tx *gorm.DB, ev types.Event) error

func NewIndexer(logger cmtlog.Logger, dbPath string) (*Indexer, error) {
	logger.Info("NewIndexer", "dbPath", dbPath)
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; ":memory:" databases are per connection
	db.DB().SetMaxOpenConns(1)
	if err := db.AutoMigrate(&RequestRecord{}, &ReviewRecord{}, &PartyStat{}, &Dashboard{}).Error; err != nil {
		db.Close()
		return nil, err
	}
	c := &Indexer{
		logger: logger.With("module", "indexer"),
		db:     db,
	}
	c.eventHandlers = map[string]eventHandler{
		types.EventRequestRegisteredType:  c.handleRequestRegistered,
		types.EventAnswerProposedType:     c.handleAnswerProposed,
		types.EventChallengeSubmittedType: c.handleChallengeSubmitted,
		types.EventReviewSubmittedType:    c.handleReviewSubmitted,
		types.EventRequestResolvedType:    c.handleRequestResolved,
		types.EventRewardDistributedType:  c.handleRewardDistributed,
		types.EventBondRefundedType:       c.handleBondRefunded,
		types.EventRequestCancelledType:   c.handleRequestCancelled,
	}
	return c, nil
}

func (c *Indexer) Close() error {
	return c.db.Close()
}

// Attach subscribes to every oracle event. Call it before traffic starts
// so no event is missed, then hand the subscription to Run.
func (c *Indexer) Attach(ctx context.Context, bus Subscriber) (*events.Subscription, error) {
	c.bus = bus
	return bus.Subscribe(ctx, events.QueryAll, 0)
}

// Lagged counts how often the indexer fell behind the bus and had to
// resubscribe. Events published in between are missing from the read models.
func (c *Indexer) Lagged() uint64 {
	return c.lagged.Load()
}

// Run consumes sub until ctx ends. A subscription the bus cancelled for
// falling behind is replaced; any other cancellation ends Run with its error.
func (c *Indexer) Run(ctx context.Context, sub *events.Subscription) error {
	for {
		ev, err := sub.Next(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, types.ErrMalformedEvent), errors.Is(err, types.ErrUnknownEventType):
			c.logger.Error("decode event fail", "err", err)
			continue
		case errors.Is(err, cmtpubsub.ErrOutOfCapacity) && c.bus != nil:
			c.logger.Error("indexer fell behind, resubscribing", "client", sub.ClientID, "err", err)
			if sub, err = c.resubscribe(ctx, sub); err != nil {
				return err
			}
			continue
		case err != nil:
			c.logger.Error("subscription closed", "client", sub.ClientID, "err", err)
			return err
		}
		if err := c.HandleEvent(ev); err != nil {
			c.logger.Error("index event fail", "type", ev.EventType(), "request", ev.RequestID(), "err", err)
		}
	}
}

func (c *Indexer) resubscribe(ctx context.Context, old *events.Subscription) (*events.Subscription, error) {
	if err := c.bus.Unsubscribe(ctx, old); err != nil && !errors.Is(err, cmtpubsub.ErrSubscriptionNotFound) {
		c.logger.Debug("drop lagging subscription fail", "client", old.ClientID, "err", err)
	}
	sub, err := c.bus.Subscribe(ctx, events.QueryAll, 0)
	if err != nil {
		c.logger.Error("resubscribe fail", "err", err)
		return nil, err
	}
	n := c.lagged.Add(1)
	c.logger.Info("resubscribed", "client", sub.ClientID, "lagged", n)
	return sub, nil
}

// HandleEvent applies ev to the read models in one transaction.
func (c *Indexer) HandleEvent(ev types.Event) error {
	h, ok := c.eventHandlers[ev.EventType()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, ev.EventType())
	}
	tx := c.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := h(tx, ev); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func (c *Indexer) handleRequestRegistered(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventRequestRegistered)
	record := RequestRecord{
		Id:              ev.Request.Hex(),
		Requester:       ev.Requester.Hex(),
		Question:        ev.Question,
		AnswerType:      ev.AnswerType.String(),
		Reward:          ev.Reward,
		ChallengeWindow: ev.ChallengeWindow,
		Status:          types.RequestStatusOpen.String(),
		CreateTimestamp: ev.Timestamp,
	}
	if err := tx.Save(&record).Error; err != nil {
		return err
	}
	if err := bumpParty(tx, ev.Requester.Hex(), types.RoleRequester, func(p *PartyStat) {
		p.Count++
	}); err != nil {
		return err
	}
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Requests++
		d.Escrowed += ev.Reward
	})
}

func (c *Indexer) handleAnswerProposed(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventAnswerProposed)
	if err := updateRequest(tx, ev.Request.Hex(), func(r *RequestRecord) {
		r.Status = types.RequestStatusProposed.String()
		r.Proposer = ev.Proposer.Hex()
		r.ProposedAnswer = ev.Answer
		r.ProposerBond = ev.Bond
		r.ProposeTimestamp = ev.Timestamp
	}); err != nil {
		return err
	}
	if err := bumpParty(tx, ev.Proposer.Hex(), types.RoleProposer, func(p *PartyStat) {
		p.Count++
		p.Bonded += ev.Bond
	}); err != nil {
		return err
	}
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Proposals++
	})
}

func (c *Indexer) handleChallengeSubmitted(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventChallengeSubmitted)
	if err := updateRequest(tx, ev.Request.Hex(), func(r *RequestRecord) {
		r.Status = types.RequestStatusChallenged.String()
		r.Challenger = ev.Challenger.Hex()
		r.CounterAnswer = ev.Answer
		r.ChallengeReason = ev.Reason
		r.ChallengerBond = ev.Bond
	}); err != nil {
		return err
	}
	if err := bumpParty(tx, ev.Challenger.Hex(), types.RoleChallenger, func(p *PartyStat) {
		p.Count++
		p.Bonded += ev.Bond
	}); err != nil {
		return err
	}
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Challenges++
	})
}

func (c *Indexer) handleReviewSubmitted(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventReviewSubmitted)
	review := ReviewRecord{
		Request:           ev.Request.Hex(),
		Reviewer:          ev.Reviewer.Hex(),
		SupportsChallenge: ev.SupportsChallenge,
		Bond:              ev.Bond,
		Timestamp:         ev.Timestamp,
	}
	if err := tx.Create(&review).Error; err != nil {
		return err
	}
	if err := updateRequest(tx, ev.Request.Hex(), func(r *RequestRecord) {
		r.VotesFor = ev.VotesFor
		r.VotesAgainst = ev.VotesAgainst
	}); err != nil {
		return err
	}
	if err := bumpParty(tx, ev.Reviewer.Hex(), types.RoleReviewer, func(p *PartyStat) {
		p.Count++
		p.Bonded += ev.Bond
	}); err != nil {
		return err
	}
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Reviews++
	})
}

func (c *Indexer) handleRequestResolved(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventRequestResolved)
	var record RequestRecord
	if err := tx.Where("id = ?", ev.Request.Hex()).First(&record).Error; err != nil {
		return err
	}
	record.Status = types.RequestStatusResolved.String()
	record.Outcome = ev.Outcome.String()
	record.Winner = ev.Winner.Hex()
	record.CanonicalAnswer = ev.CanonicalAnswer
	record.VotesFor = ev.VotesFor
	record.VotesAgainst = ev.VotesAgainst
	record.Paid = ev.Total
	record.ResolveTimestamp = ev.Timestamp
	if err := tx.Save(&record).Error; err != nil {
		return err
	}

	win := func(p *PartyStat) { p.Wins++ }
	lose := func(p *PartyStat) { p.Losses++ }
	challengerWins := ev.Outcome == types.OutcomeChallenger
	switch ev.Outcome {
	case types.OutcomeUnchallenged:
		if err := bumpParty(tx, record.Proposer, types.RoleProposer, win); err != nil {
			return err
		}
	case types.OutcomeChallenger, types.OutcomeProposer:
		proposerResult, challengerResult := win, lose
		if challengerWins {
			proposerResult, challengerResult = lose, win
		}
		if err := bumpParty(tx, record.Proposer, types.RoleProposer, proposerResult); err != nil {
			return err
		}
		if err := bumpParty(tx, record.Challenger, types.RoleChallenger, challengerResult); err != nil {
			return err
		}
		reviews, err := reviewsByRequest(tx, record.Id)
		if err != nil {
			return err
		}
		for _, rv := range reviews {
			result := lose
			if rv.SupportsChallenge == challengerWins {
				result = win
			}
			if err := bumpParty(tx, rv.Reviewer, types.RoleReviewer, result); err != nil {
				return err
			}
		}
	}
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Resolved++
		d.Escrowed -= min(d.Escrowed, record.Reward)
	})
}

func (c *Indexer) handleRewardDistributed(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventRewardDistributed)
	if err := bumpParty(tx, ev.Recipient.Hex(), ev.Role, func(p *PartyStat) {
		p.Earnings += ev.Amount
	}); err != nil {
		return err
	}
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Rewards += ev.Amount
	})
}

func (c *Indexer) handleBondRefunded(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventBondRefunded)
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Refunds += ev.Amount
	})
}

func (c *Indexer) handleRequestCancelled(tx *gorm.DB, event types.Event) error {
	ev := event.(*types.EventRequestCancelled)
	if err := updateRequest(tx, ev.Request.Hex(), func(r *RequestRecord) {
		r.Status = types.RequestStatusFailed.String()
		r.ResolveTimestamp = ev.Timestamp
	}); err != nil {
		return err
	}
	return bumpDashboard(tx, func(d *Dashboard) {
		d.Cancelled++
		d.Escrowed -= min(d.Escrowed, ev.Refund)
	})
}

func updateRequest(tx *gorm.DB, id string, fn func(*RequestRecord)) error {
	var record RequestRecord
	if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
		return err
	}
	fn(&record)
	return tx.Save(&record).Error
}

func bumpParty(tx *gorm.DB, address, role string, fn func(*PartyStat)) error {
	if address == "" {
		return nil
	}
	var stat PartyStat
	if err := tx.Where(PartyStat{Address: address, Role: role}).FirstOrInit(&stat).Error; err != nil {
		return err
	}
	fn(&stat)
	return tx.Save(&stat).Error
}

func bumpDashboard(tx *gorm.DB, fn func(*Dashboard)) error {
	d := Dashboard{Id: dashboardID}
	if err := tx.Where("id = ?", dashboardID).FirstOrInit(&d).Error; err != nil {
		return err
	}
	fn(&d)
	return tx.Save(&d).Error
}

func reviewsByRequest(db *gorm.DB, request string) ([]ReviewRecord, error) {
	var reviews []ReviewRecord
	err := db.Where("request = ?", request).Order("id asc").Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

func (c *Indexer) getRequests(status, party string, page int, pageSize int) ([]RequestRecord, uint64, error) {
	query := c.db.Model(&RequestRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if party != "" {
		query = query.Where("requester = ? OR proposer = ? OR challenger = ?", party, party, party)
	}
	var total uint64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var records []RequestRecord
	err := query.Order("create_timestamp desc").Offset(page * pageSize).Limit(pageSize).Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (c *Indexer) getRequestById(id string) (RequestRecord, error) {
	var record RequestRecord
	err := c.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		return RequestRecord{}, err
	}
	return record, nil
}

func (c *Indexer) getReviewsByRequest(id string) ([]ReviewRecord, error) {
	return reviewsByRequest(c.db, id)
}

func (c *Indexer) getPartyStats(address string) ([]PartyStat, error) {
	var stats []PartyStat
	err := c.db.Where("address = ?", address).Order("role asc").Find(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Indexer) getDashboard() (Dashboard, error) {
	d := Dashboard{Id: dashboardID}
	err := c.db.Where("id = ?", dashboardID).FirstOrInit(&d).Error
	return d, err
}
