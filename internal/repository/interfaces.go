package repository

import (
	"context"

	"github.com/baharkarakas/ledgerq/internal/models"
	"github.com/shopspring/decimal"
)

type Accounts interface {
	Create(ctx context.Context, username, passwordHash string) (models.Account, error)
	GetByID(ctx context.Context, id string) (models.Account, error)
	GetByUsername(ctx context.Context, username string) (models.Account, error)
	List(ctx context.Context) ([]models.Account, error)

	// Credit deposits into one account outside the transfer path. Used by
	// fixtures and the admin endpoint; amount must be positive.
	Credit(ctx context.Context, id string, amount decimal.Decimal) (models.Account, error)
}

type Ledger interface {
	// Transfer moves amount from sender to receiver and records the ledger
	// row, all inside one storage transaction. idemKey may be empty; a reused
	// key returns ErrDuplicateOperation without touching balances.
	Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, idemKey string) (models.Transaction, error)

	GetByID(ctx context.Context, id string) (models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error)
}
