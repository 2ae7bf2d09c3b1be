package scheduler

import (
	"context"
	"fmt"

	"dialerdesk_backend/internal/accounts"
	leadrepo "dialerdesk_backend/internal/leads/repository"
	"dialerdesk_backend/internal/notification"
	"dialerdesk_backend/platform/config"
	"dialerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Worker consumes background tasks: replenishment triggers queued by the
// billing floor crossing, and the nightly counter reset.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	leads     *leadrepo.Repository
	accounts  *accounts.Repository
	processor PaymentProcessor
	mail      notification.Sender
	log       *logger.Logger
}

// NewWorker creates the worker and registers its task handlers, including
// the midnight UTC schedule for the daily attempt-counter reset.
func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, processor PaymentProcessor, mail notification.Sender, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			queue: 1,
		},
	})

	periodic := asynq.NewScheduler(opt, nil)
	if _, err := periodic.Register("0 0 * * *", NewDailyResetTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("failed to register daily reset: %w", err)
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		scheduler: periodic,
		mux:       mux,
		leads:     leadrepo.New(pool),
		accounts:  accounts.New(pool),
		processor: processor,
		mail:      mail,
		log:       log,
	}

	mux.HandleFunc(TaskReplenishBalance, w.handleReplenishBalance)
	mux.HandleFunc(TaskDailyReset, w.handleDailyReset)

	return w, nil
}

// Run blocks until the context is cancelled, then shuts both the task
// server and the periodic scheduler down.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	var g errgroup.Group
	g.Go(func() error {
		return w.scheduler.Run()
	})
	g.Go(func() error {
		return w.server.Run(w.mux)
	})

	if err := g.Wait(); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleReplenishBalance triggers the payment processor and notifies the
// account owner. The balance itself is credited later, when the processor
// confirms through the refill webhook.
func (w *Worker) handleReplenishBalance(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReplenishBalancePayload(task)
	if err != nil {
		return err
	}

	accountID, err := uuid.Parse(payload.AccountID)
	if err != nil {
		return err
	}

	reference, err := w.processor.TriggerReplenishment(ctx, accountID, payload.RefillCents)
	if err != nil {
		return fmt.Errorf("payment trigger failed: %w", err)
	}

	w.log.Info("replenishment triggered",
		"account_id", accountID, "amount_cents", payload.RefillCents, "reference", reference)

	account, err := w.accounts.GetByID(ctx, accountID)
	if err != nil {
		// The payment trigger already succeeded; a missing account row only
		// costs the courtesy email.
		w.log.Error("account lookup failed for low balance email", "account_id", accountID, "error", err)
		return nil
	}

	if err := w.mail.SendLowBalanceEmail(ctx, account.Email, account.Name, payload.BalanceCents, payload.RefillCents); err != nil {
		w.log.Error("failed to send low balance email", "account_id", accountID, "error", err)
	}

	return nil
}

// handleDailyReset zeroes every lead's call_attempts_today.
func (w *Worker) handleDailyReset(ctx context.Context, _ *asynq.Task) error {
	reset, err := w.leads.ResetDailyAttempts(ctx)
	if err != nil {
		return fmt.Errorf("daily reset failed: %w", err)
	}

	w.log.Info("daily call attempt counters reset", "leads", reset)
	return nil
}
