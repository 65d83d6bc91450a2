package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/baharkarakas/ledgerq/internal/models"
	"github.com/shopspring/decimal"
)

// Full pipeline scenario on two concurrent intake loops sharing one queue,
// one lock store, and one gateway: registration through the queue, a
// rejected underfunded transfer, a committed transfer, then opposing
// transfer storms that must conserve total balance and never drive a
// balance negative.
func TestPipelineScenario(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	accounts := &memAccounts{h.store}

	register := func(username string) models.TaskEnvelope {
		b, _ := json.Marshal(models.RegisterUserData{Username: username, Password: "s3cret"})
		return models.TaskEnvelope{Task: models.TaskRegisterUser, Data: b}
	}

	stop := h.startLoops(2)
	defer stop()

	h.publish(t, register("alice"))
	h.publish(t, register("bob"))
	waitFor(t, 2*time.Second, "registrations", func() bool {
		_, errA := accounts.GetByUsername(ctx, "alice")
		_, errB := accounts.GetByUsername(ctx, "bob")
		return errA == nil && errB == nil
	})
	alice, _ := accounts.GetByUsername(ctx, "alice")
	bob, _ := accounts.GetByUsername(ctx, "bob")
	if !alice.Balance.IsZero() || !bob.Balance.IsZero() {
		t.Fatalf("fresh balances alice=%s bob=%s, want 0", alice.Balance, bob.Balance)
	}

	// Underfunded transfer: rejected, no ledger row.
	h.publish(t, transferEnv(t, alice.ID, bob.ID, "50.00"))
	waitFor(t, 2*time.Second, "underfunded transfer to settle", func() bool {
		return h.queue.Len(testQueue) == 0
	})
	time.Sleep(20 * time.Millisecond)
	if got := len(h.store.ledgerRows()); got != 0 {
		t.Fatalf("underfunded transfer created %d ledger rows", got)
	}

	// Fund alice, transfer 40.
	if _, err := accounts.Credit(ctx, alice.ID, decimal.RequireFromString("100.00")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	h.publish(t, transferEnv(t, alice.ID, bob.ID, "40.00"))
	waitFor(t, 2*time.Second, "funded transfer", func() bool {
		return len(h.store.ledgerRows()) == 1
	})
	a, _ := accounts.GetByID(ctx, alice.ID)
	b, _ := accounts.GetByID(ctx, bob.ID)
	if !a.Balance.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("alice balance = %s, want 60.00", a.Balance)
	}
	if !b.Balance.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("bob balance = %s, want 40.00", b.Balance)
	}
	row := h.store.ledgerRows()[0]
	if row.SenderID != alice.ID || row.ReceiverID != bob.ID || !row.Amount.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("ledger row %+v", row)
	}

	totalBefore := h.store.totalBalance()

	// Opposing storms: 100 alice->bob of 30 and 100 bob->alice of 10. Both
	// directions repeatedly contend on the same pair, and some will be
	// rejected for insufficient balance depending on interleaving; every
	// committed one must conserve and never go negative.
	const each = 100
	for i := 0; i < each; i++ {
		h.publish(t, transferEnv(t, alice.ID, bob.ID, "30.00"))
		h.publish(t, transferEnv(t, bob.ID, alice.ID, "10.00"))
	}
	waitFor(t, 30*time.Second, "storm to drain", func() bool {
		return h.queue.Len(testQueue) == 0
	})
	time.Sleep(50 * time.Millisecond)

	if max := h.store.maxInSection.Load(); max > 1 {
		t.Fatalf("%d transfers over the same pair ran in their critical section concurrently", max)
	}

	a, _ = accounts.GetByID(ctx, alice.ID)
	b, _ = accounts.GetByID(ctx, bob.ID)
	if a.Balance.IsNegative() || b.Balance.IsNegative() {
		t.Fatalf("negative balance alice=%s bob=%s", a.Balance, b.Balance)
	}
	if total := h.store.totalBalance(); !total.Equal(totalBefore) {
		t.Fatalf("total balance drifted: %s -> %s", totalBefore, total)
	}

	// Every ledger row corresponds to exactly one committed movement; the
	// sum of signed deltas must reproduce the final balances.
	deltaA, deltaB := decimal.Zero, decimal.Zero
	for _, row := range h.store.ledgerRows() {
		switch row.SenderID {
		case alice.ID:
			deltaA = deltaA.Sub(row.Amount)
			deltaB = deltaB.Add(row.Amount)
		case bob.ID:
			deltaB = deltaB.Sub(row.Amount)
			deltaA = deltaA.Add(row.Amount)
		default:
			t.Fatalf("ledger row with unknown sender %q", row.SenderID)
		}
	}
	wantA := decimal.RequireFromString("100.00").Add(deltaA)
	wantB := deltaB
	if !a.Balance.Equal(wantA) || !b.Balance.Equal(wantB) {
		t.Fatalf("ledger does not reconcile: alice=%s want %s, bob=%s want %s",
			a.Balance, wantA, b.Balance, wantB)
	}
}
