// Package client is the producer side of the relay fabric: the web
// application and the git hooks use it to publish event envelopes.
// Publishing is fire-and-forget and succeeds whether zero or many
// consumers are live.
package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr string
	DB   int
}

type Client struct {
	client *redis.Client
}

func New(options Options) (*Client, error) {
	if options.Addr == "" {
		return nil, errors.New("client: broker address is required")
	}

	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr: options.Addr,
			DB:   options.DB,
		}),
	}, nil
}

// Publish sends one payload to a channel. The payload must already be
// the channel-specific JSON document.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.client.Publish(ctx, channel, payload).Err()
}

// PublishJSON marshals v and publishes it.
func (c *Client) PublishJSON(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.Publish(ctx, channel, payload)
}

func (c *Client) Close() error {
	return c.client.Close()
}
