package scheduler

import (
	"context"
	"fmt"

	"dialerdesk_backend/internal/events"
	"dialerdesk_backend/platform/config"
	"dialerdesk_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues background tasks from the API process.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient creates a new task client.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

// Close releases the underlying redis connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueReplenishment queues one replenishment trigger for the worker.
func (c *Client) EnqueueReplenishment(ctx context.Context, payload ReplenishBalancePayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewReplenishBalanceTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

// RegisterEventHandlers bridges in-process billing events onto the task
// queue. The API never talks to the payment processor directly.
func RegisterEventHandlers(bus events.Bus, client *Client, log *logger.Logger) {
	bus.Subscribe(events.ReplenishmentRequested{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, event events.Event) error {
			requested, ok := event.(events.ReplenishmentRequested)
			if !ok {
				return fmt.Errorf("unexpected event type %T", event)
			}

			err := client.EnqueueReplenishment(ctx, ReplenishBalancePayload{
				AccountID:    requested.AccountID.String(),
				BalanceCents: requested.BalanceCents,
				RefillCents:  requested.RefillCents,
			})
			if err != nil {
				log.Error("failed to enqueue replenishment",
					"account_id", requested.AccountID, "error", err)
				return err
			}

			log.Info("replenishment queued",
				"account_id", requested.AccountID, "refill_cents", requested.RefillCents)
			return nil
		}))
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
