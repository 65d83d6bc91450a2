package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a *Account) Validate() error {
	if len(strings.TrimSpace(a.Username)) < 3 {
		return errors.New("username too short")
	}
	if a.Balance.IsNegative() {
		return errors.New("balance cannot be negative")
	}
	return nil
}

// Projection returned by the get_users task and GET /users.
type AccountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
