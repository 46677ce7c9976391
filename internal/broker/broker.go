// Package broker is a thin subscription wrapper over the redis pub/sub
// protocol. Delivery is fire-and-forget: publishing never blocks on
// consumers and a message published while nobody listens is gone.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTimeout reports that no message arrived within the given
	// window. Callers treat it as a liveness-check opportunity.
	ErrTimeout = errors.New("broker: receive timed out")

	// ErrClosed reports that the broker connection is gone. Callers
	// decide whether to reconnect or exit.
	ErrClosed = errors.New("broker: connection closed")
)

type Broker struct {
	client *redis.Client
}

func New(addr string, db int) *Broker {
	return &Broker{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

// Subscribe opens one subscription to a single channel. Each logical
// consumer owns its own subscription handle.
func (b *Broker) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Force the SUBSCRIBE round-trip so a dead broker fails here
	// rather than on the first receive.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}

	return &Subscription{pubsub: pubsub}, nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

type Subscription struct {
	pubsub *redis.PubSub
}

// Next blocks until a message arrives, the timeout elapses (ErrTimeout)
// or the connection is closed (ErrClosed). Within one channel, messages
// are returned in publish order.
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}

		msg, err := s.pubsub.ReceiveTimeout(ctx, remaining)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}

		// Subscription confirmations and pongs are control frames,
		// not payloads.
		if m, ok := msg.(*redis.Message); ok {
			return []byte(m.Payload), nil
		}
	}
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
