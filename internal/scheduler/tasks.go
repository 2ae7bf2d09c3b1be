// Package scheduler moves slow or periodic work off the request path via
// asynq. The API process enqueues; the worker process consumes.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskReplenishBalance = "billing.replenish"

const TaskDailyReset = "leads.daily_reset"

// ReplenishBalancePayload carries one replenishment trigger to the worker.
type ReplenishBalancePayload struct {
	AccountID    string `json:"accountId"`
	BalanceCents int64  `json:"balanceCents"`
	RefillCents  int64  `json:"refillCents"`
}

func NewReplenishBalanceTask(payload ReplenishBalancePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReplenishBalance, data), nil
}

func ParseReplenishBalancePayload(task *asynq.Task) (ReplenishBalancePayload, error) {
	var payload ReplenishBalancePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReplenishBalancePayload{}, err
	}
	return payload, nil
}

func NewDailyResetTask() *asynq.Task {
	return asynq.NewTask(TaskDailyReset, nil)
}
