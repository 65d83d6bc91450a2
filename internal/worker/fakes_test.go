package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baharkarakas/ledgerq/internal/models"
	repo "github.com/baharkarakas/ledgerq/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is shared in-memory state with the same sentinel errors as the
// Postgres gateway. memAccounts and memLedger expose it through the
// repository interfaces. Transfer is instrumented: maxInSection records how
// many transfers were ever inside the critical section at once, which must
// stay at 1 whenever all transfers share an account.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	byName   map[string]string
	txs      []models.Transaction
	idem     map[string]bool

	failTransfers atomic.Int32 // induced ErrUnavailable countdown

	inSection    atomic.Int32
	maxInSection atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*models.Account),
		byName:   make(map[string]string),
		idem:     make(map[string]bool),
	}
}

func (s *memStore) ledgerRows() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.txs...)
}

func (s *memStore) totalBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, a := range s.accounts {
		sum = sum.Add(a.Balance)
	}
	return sum
}

type memAccounts struct{ s *memStore }

func (r *memAccounts) Create(_ context.Context, username, passwordHash string) (models.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return models.Account{}, repo.ErrUsernameTaken
	}
	a := &models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      decimal.Zero,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.accounts[a.ID] = a
	s.byName[username] = a.ID
	return *a, nil
}

func (r *memAccounts) GetByID(_ context.Context, id string) (models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return models.Account{}, repo.ErrAccountNotFound
	}
	return *a, nil
}

func (r *memAccounts) GetByUsername(_ context.Context, username string) (models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byName[username]
	if !ok {
		return models.Account{}, repo.ErrAccountNotFound
	}
	return *r.s.accounts[id], nil
}

func (r *memAccounts) List(_ context.Context) ([]models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *memAccounts) Credit(_ context.Context, id string, amount decimal.Decimal) (models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return models.Account{}, repo.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(amount)
	return *a, nil
}

type memLedger struct{ s *memStore }

func (r *memLedger) Transfer(_ context.Context, senderID, receiverID string, amount decimal.Decimal, idemKey string) (models.Transaction, error) {
	s := r.s
	if senderID == receiverID {
		return models.Transaction{}, repo.ErrSelfTransfer
	}
	if n := s.failTransfers.Load(); n > 0 {
		s.failTransfers.Add(-1)
		return models.Transaction{}, fmt.Errorf("%w: induced failure", repo.ErrUnavailable)
	}

	in := s.inSection.Add(1)
	defer s.inSection.Add(-1)
	for {
		max := s.maxInSection.Load()
		if in <= max || s.maxInSection.CompareAndSwap(max, in) {
			break
		}
	}
	// Widen the race window so overlapping executions are observable.
	time.Sleep(200 * time.Microsecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	// Key lookup precedes every other check, matching the Postgres
	// gateway: a redelivery must come back as a duplicate even when the
	// sender can no longer cover the amount.
	if idemKey != "" && s.idem[idemKey] {
		return models.Transaction{}, repo.ErrDuplicateOperation
	}
	sender, ok := s.accounts[senderID]
	if !ok {
		return models.Transaction{}, repo.ErrAccountNotFound
	}
	receiver, ok := s.accounts[receiverID]
	if !ok {
		return models.Transaction{}, repo.ErrAccountNotFound
	}
	if sender.Balance.LessThan(amount) {
		return models.Transaction{}, repo.ErrInsufficientBalance
	}
	sender.Balance = sender.Balance.Sub(amount)
	receiver.Balance = receiver.Balance.Add(amount)
	if idemKey != "" {
		s.idem[idemKey] = true
	}
	t := models.Transaction{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		CreatedAt:  time.Now(),
	}
	s.txs = append(s.txs, t)
	return t, nil
}

func (r *memLedger) GetByID(_ context.Context, id string) (models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Transaction{}, repo.ErrTransactionNotFound
}

func (r *memLedger) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Transaction
	for _, t := range r.s.txs {
		if t.SenderID == accountID || t.ReceiverID == accountID {
			out = append(out, t)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
