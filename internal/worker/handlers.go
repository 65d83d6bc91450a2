package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/baharkarakas/ledgerq/internal/auth"
	"github.com/baharkarakas/ledgerq/internal/models"
	repo "github.com/baharkarakas/ledgerq/internal/repository"
)

// Handlers hold the task implementations. Side effects go through the
// repository interfaces only, so tests can run them against in-memory fakes.
type Handlers struct {
	accounts repo.Accounts
	ledger   repo.Ledger
	log      *slog.Logger
}

func NewHandlers(accounts repo.Accounts, ledger repo.Ledger, log *slog.Logger) *Handlers {
	return &Handlers{accounts: accounts, ledger: ledger, log: log}
}

func (h *Handlers) RegisterUser(ctx context.Context, env models.TaskEnvelope) Outcome {
	var d models.RegisterUserData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return failure("malformed payload")
	}
	if err := d.Validate(); err != nil {
		return failure(err.Error())
	}
	hash, err := auth.HashPassword(d.Password)
	if err != nil {
		return failure("internal error")
	}
	_, err = h.accounts.Create(ctx, d.Username, hash)
	switch {
	case err == nil:
		h.log.Info("user registered", "username", d.Username)
		return success()
	case errors.Is(err, repo.ErrUsernameTaken):
		h.log.Warn("registration conflict", "username", d.Username)
		return failure("username already exists")
	case errors.Is(err, repo.ErrUnavailable):
		h.log.Error("registration storage failure", "err", err)
		return retryable("storage unavailable")
	default:
		h.log.Error("registration failed", "err", err)
		return failure("internal error")
	}
}

func (h *Handlers) CreateTransaction(ctx context.Context, env models.TaskEnvelope) Outcome {
	var d models.CreateTransactionData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return failure("malformed payload")
	}
	if err := d.Validate(); err != nil {
		return failure(err.Error())
	}
	// Hard invariant, checked before any side effect.
	if d.SenderID == d.ReceiverID {
		return failure("sender and receiver cannot be the same")
	}

	tx, err := h.ledger.Transfer(ctx, d.SenderID, d.ReceiverID, d.Amount, env.IdempotencyKey)
	switch {
	case err == nil:
		h.log.Info("transaction created",
			"id", tx.ID, "sender", d.SenderID, "receiver", d.ReceiverID, "amount", d.Amount)
		return success()
	case errors.Is(err, repo.ErrDuplicateOperation):
		// The same idempotency key already committed: redelivery, not an error.
		h.log.Info("duplicate transfer ignored", "idempotency_key", env.IdempotencyKey)
		return success()
	case errors.Is(err, repo.ErrInsufficientBalance):
		h.log.Warn("transfer rejected", "reason", "insufficient balance", "sender", d.SenderID)
		return failure("insufficient balance")
	case errors.Is(err, repo.ErrAccountNotFound):
		h.log.Warn("transfer rejected", "reason", "unknown account")
		return failure("unknown account")
	case errors.Is(err, repo.ErrSelfTransfer):
		return failure("sender and receiver cannot be the same")
	case errors.Is(err, repo.ErrUnavailable):
		h.log.Error("transfer storage failure", "err", err)
		return retryable("storage unavailable")
	default:
		h.log.Error("transfer failed", "err", err)
		return failure("internal error")
	}
}

func (h *Handlers) GetUsers(ctx context.Context, _ models.TaskEnvelope) Outcome {
	accounts, err := h.accounts.List(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrUnavailable) {
			return retryable("storage unavailable")
		}
		h.log.Error("list users", "err", err)
		return failure("internal error")
	}
	out := success()
	out.Users = make([]models.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		out.Users = append(out.Users, models.AccountSummary{ID: a.ID, Username: a.Username})
	}
	h.log.Info("fetched users", "count", len(out.Users))
	return out
}
