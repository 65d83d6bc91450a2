package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baharkarakas/ledgerq/internal/models"
	"github.com/baharkarakas/ledgerq/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type accountsRepo struct{ pool *pgxpool.Pool }

func (r *accountsRepo) Create(ctx context.Context, username, passwordHash string) (models.Account, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts(id, username, password_hash) VALUES($1,$2,$3)`,
		id, username, passwordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Account{}, repository.ErrUsernameTaken
		}
		return models.Account{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return r.GetByID(ctx, id)
}

func (r *accountsRepo) GetByID(ctx context.Context, id string) (models.Account, error) {
	return r.getBy(ctx, `WHERE id=$1`, id)
}

func (r *accountsRepo) GetByUsername(ctx context.Context, username string) (models.Account, error) {
	return r.getBy(ctx, `WHERE username=$1`, username)
}

func (r *accountsRepo) getBy(ctx context.Context, where string, arg any) (models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, balance, created_at, updated_at FROM accounts `+where, arg,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, repository.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return a, nil
}

func (r *accountsRepo) List(ctx context.Context) ([]models.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, password_hash, balance, created_at, updated_at
		   FROM accounts ORDER BY created_at DESC LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountsRepo) Credit(ctx context.Context, id string, amount decimal.Decimal) (models.Account, error) {
	if !amount.IsPositive() {
		return models.Account{}, errors.New("credit amount must be > 0")
	}
	var a models.Account
	err := r.pool.QueryRow(ctx,
		`UPDATE accounts
		    SET balance = balance + $2,
		        updated_at = now()
		  WHERE id = $1
		  RETURNING id, username, password_hash, balance, created_at, updated_at`,
		id, amount,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, repository.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return a, nil
}
