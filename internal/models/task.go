package models

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type TaskType string

const (
	TaskRegisterUser      TaskType = "register_user"
	TaskCreateTransaction TaskType = "create_transaction"
	TaskGetUsers          TaskType = "get_users"
)

// TaskEnvelope is the wire format carried on the queue:
//
//	{"task": "<tag>", "data": {...}, "attempts": 0, "idempotency_key": "..."}
//
// Attempts counts retryable failures so far; the worker increments it on each
// resubmission and dead-letters the envelope past the configured threshold.
type TaskEnvelope struct {
	Task           TaskType        `json:"task"`
	Data           json.RawMessage `json:"data"`
	Attempts       int             `json:"attempts,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

func DecodeEnvelope(body []byte) (TaskEnvelope, error) {
	var env TaskEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return TaskEnvelope{}, err
	}
	if env.Task == "" {
		return TaskEnvelope{}, errors.New("envelope missing task tag")
	}
	return env, nil
}

func (e TaskEnvelope) Encode() ([]byte, error) { return json.Marshal(e) }

type RegisterUserData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (d RegisterUserData) Validate() error {
	if len(strings.TrimSpace(d.Username)) < 3 {
		return errors.New("username too short")
	}
	if len(d.Password) < 4 {
		return errors.New("password too short")
	}
	return nil
}

type CreateTransactionData struct {
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
}

func (d CreateTransactionData) Validate() error {
	if d.SenderID == "" || d.ReceiverID == "" {
		return errors.New("sender_id and receiver_id required")
	}
	if !d.Amount.IsPositive() {
		return errors.New("amount must be > 0")
	}
	return nil
}

// AccountIDs returns the set of accounts the task will touch, the lock set
// for the intake loop. Only transfers lock anything.
func (e TaskEnvelope) AccountIDs() ([]string, error) {
	if e.Task != TaskCreateTransaction {
		return nil, nil
	}
	var d CreateTransactionData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, err
	}
	var ids []string
	if d.SenderID != "" {
		ids = append(ids, d.SenderID)
	}
	if d.ReceiverID != "" {
		ids = append(ids, d.ReceiverID)
	}
	return ids, nil
}
