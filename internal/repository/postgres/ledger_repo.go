package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baharkarakas/ledgerq/internal/metrics"
	"github.com/baharkarakas/ledgerq/internal/models"
	"github.com/baharkarakas/ledgerq/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ledgerRepo struct{ pool *pgxpool.Pool }

// Transfer runs the whole debit+credit+insert inside one storage transaction.
// Both account rows are read FOR UPDATE in ascending id order, so two
// transfers over the same pair block each other instead of deadlocking.
// The row lock is the backstop beneath the distributed lock: even if a lease
// expires mid-flight, no other transaction can read-modify-write these rows
// until commit.
func (r *ledgerRepo) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, idemKey string) (models.Transaction, error) {
	if senderID == receiverID {
		return models.Transaction{}, repository.ErrSelfTransfer
	}
	if !amount.IsPositive() {
		return models.Transaction{}, errors.New("amount must be > 0")
	}

	start := time.Now()
	defer func() { metrics.TransferDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	// A redelivered envelope may arrive after its transfer already
	// committed, with the sender's balance since moved on. The key lookup
	// has to happen before any balance validation or the duplicate would be
	// misreported as insufficient balance. The 23505 catch on the INSERT
	// below remains as the backstop for two concurrent first deliveries.
	if idemKey != "" {
		var seen bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE idempotency_key=$1)`, idemKey,
		).Scan(&seen)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
		}
		if seen {
			return models.Transaction{}, repository.ErrDuplicateOperation
		}
	}

	// Lock both rows in ascending id order.
	first, second := senderID, receiverID
	if first > second {
		first, second = second, first
	}
	var balFirst, balSecond decimal.Decimal
	if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`, first).Scan(&balFirst); err != nil {
		return models.Transaction{}, lockErr(err)
	}
	if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`, second).Scan(&balSecond); err != nil {
		return models.Transaction{}, lockErr(err)
	}

	senderBal := balFirst
	if senderID == second {
		senderBal = balSecond
	}
	if senderBal.LessThan(amount) {
		return models.Transaction{}, repository.ErrInsufficientBalance
	}

	var key *string
	if idemKey != "" {
		key = &idemKey
	}
	t := models.Transaction{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Amount:         amount,
		IdempotencyKey: key,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions(id, sender_id, receiver_id, amount, idempotency_key)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING created_at`,
		t.ID, t.SenderID, t.ReceiverID, t.Amount, t.IdempotencyKey,
	).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Transaction{}, repository.ErrDuplicateOperation
		}
		return models.Transaction{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1, updated_at = now() WHERE id = $2`, amount, senderID); err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE id = $2`, amount, receiverID); err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return t, nil
}

func lockErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrAccountNotFound
	}
	return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
}

func (r *ledgerRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	var t models.Transaction
	err := r.pool.QueryRow(ctx,
		`SELECT id, sender_id, receiver_id, amount, idempotency_key, created_at
		   FROM transactions WHERE id=$1`, id,
	).Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.IdempotencyKey, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, repository.ErrTransactionNotFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return t, nil
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, amount, idempotency_key, created_at
		   FROM transactions
		  WHERE sender_id=$1 OR receiver_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.IdempotencyKey, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
