package realtime

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// PubSub is the broker surface the relay needs; store.RedisStore satisfies it.
// Subscribe calls ready once the subscription is confirmed.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, ready func(), fn func(payload []byte)) error
}

// BrokerRelay shares events between instances over a pub/sub channel.
type BrokerRelay struct {
	broker  PubSub
	channel string
	hub     *Hub
	logger  zerolog.Logger

	subscribed atomic.Bool
}

// NewBrokerRelay wires hub to broker on channel and installs itself as the
// hub's relay.
func NewBrokerRelay(broker PubSub, channel string, hub *Hub, logger zerolog.Logger) *BrokerRelay {
	r := &BrokerRelay{
		broker:  broker,
		channel: channel,
		hub:     hub,
		logger:  logger.With().Str("component", "relay").Str("channel", channel).Logger(),
	}
	hub.SetRelay(r)
	return r
}

// Publish implements Relay.
func (r *BrokerRelay) Publish(ctx context.Context, payload []byte) error {
	return r.broker.Publish(ctx, r.channel, payload)
}

// Subscribed reports whether Run currently holds a confirmed subscription.
// Events published while it does not would never come back to this hub.
func (r *BrokerRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Run forwards every event received from the broker to the local hub until
// ctx is cancelled or the subscription fails.
func (r *BrokerRelay) Run(ctx context.Context) error {
	defer r.subscribed.Store(false)

	ready := func() {
		r.subscribed.Store(true)
		r.logger.Info().Msg("realtime relay subscribed")
	}
	return r.broker.Subscribe(ctx, r.channel, ready, func(payload []byte) {
		if err := r.hub.Broadcast(ctx, payload); err != nil {
			r.logger.Warn().Err(err).Msg("relay broadcast failed")
		}
	})
}
