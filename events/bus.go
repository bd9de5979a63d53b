package events

import (
	"context"
	"fmt"

	"github.com/calehh/oracle-node/types"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmtpubsub "github.com/cometbft/cometbft/libs/pubsub"
	cmtquery "github.com/cometbft/cometbft/libs/pubsub/query"
	"github.com/google/uuid"
)

const (
	// EventTypeKey carries the event type of every published message.
	EventTypeKey = "oracle.event"
	// RequestKey carries the request id of every published message.
	RequestKey = "oracle.request"

	DefaultBufferCapacity = 100
	DefaultOutCapacity    = 1000
)

// QueryAll matches every oracle event.
var QueryAll = cmtquery.MustCompile(EventTypeKey + " EXISTS")

// QueryForEvent matches a single event type.
func QueryForEvent(eventType string) cmtpubsub.Query {
	return cmtquery.MustCompile(fmt.Sprintf("%s = '%s'", EventTypeKey, eventType))
}

// Bus publishes oracle events to in-process subscribers. Messages carry the
// abci encoding of the event; indexed attributes become queryable tags.
type Bus struct {
	logger cmtlog.Logger
	srv    *cmtpubsub.Server
}

func NewBus(logger cmtlog.Logger) *Bus {
	logger = logger.With("module", "events")
	srv := cmtpubsub.NewServer(cmtpubsub.BufferCapacity(DefaultBufferCapacity))
	srv.SetLogger(logger)
	return &Bus{
		logger: logger,
		srv:    srv,
	}
}

func (b *Bus) Start() error {
	return b.srv.Start()
}

func (b *Bus) Stop() error {
	return b.srv.Stop()
}

// Emit publishes ev. Delivery to slow subscribers is not awaited.
func (b *Bus) Emit(ctx context.Context, ev types.Event) error {
	encoded := types.EncodeEvent(ev)
	if err := b.srv.PublishWithEvents(ctx, encoded, compositeKeys(ev, encoded)); err != nil {
		b.logger.Error("publish event fail", "type", encoded.Type, "err", err)
		return err
	}
	b.logger.Debug("event published", "type", encoded.Type, "request", ev.RequestID())
	return nil
}

func compositeKeys(ev types.Event, encoded abci.Event) map[string][]string {
	keys := map[string][]string{
		EventTypeKey: {encoded.Type},
		RequestKey:   {ev.RequestID().Hex()},
	}
	for _, attr := range encoded.Attributes {
		if !attr.Index {
			continue
		}
		key := encoded.Type + "." + attr.Key
		keys[key] = append(keys[key], attr.Value)
	}
	return keys
}

// Subscription is a live feed of decoded events.
type Subscription struct {
	ClientID string
	sub      *cmtpubsub.Subscription
}

// Subscribe opens a subscription for events matching query. The returned
// subscription is cancelled by the bus if its buffer of outCap events fills.
func (b *Bus) Subscribe(ctx context.Context, query cmtpubsub.Query, outCap int) (*Subscription, error) {
	if outCap <= 0 {
		outCap = DefaultOutCapacity
	}
	clientID := uuid.NewString()
	sub, err := b.srv.Subscribe(ctx, clientID, query, outCap)
	if err != nil {
		return nil, err
	}
	b.logger.Info("subscribed", "client", clientID, "query", query.String())
	return &Subscription{ClientID: clientID, sub: sub}, nil
}

func (b *Bus) Unsubscribe(ctx context.Context, s *Subscription) error {
	return b.srv.UnsubscribeAll(ctx, s.ClientID)
}

// Next blocks for the next event. It returns an error when ctx ends or
// the subscription is cancelled.
func (s *Subscription) Next(ctx context.Context) (types.Event, error) {
	select {
	case msg := <-s.sub.Out():
		encoded, ok := msg.Data().(abci.Event)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected message %T", types.ErrMalformedEvent, msg.Data())
		}
		return types.DecodeEvent(encoded)
	case <-s.sub.Canceled():
		return nil, s.sub.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err reports why the bus cancelled the subscription, or nil while it is
// still live.
func (s *Subscription) Err() error {
	return s.sub.Err()
}

func (b *Bus) IsRunning() bool {
	return b.srv.IsRunning()
}
