package spend

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/dao/store"
)

func txKey(t *model.Transaction) string { return t.ID }

func completedTx(id, amount string, at time.Time) *model.Transaction {
	completedAt := at
	return &model.Transaction{
		ID:          id,
		Amount:      decimal.RequireFromString(amount),
		Currency:    model.DefaultCurrency,
		Status:      model.TransactionCompleted,
		CreatedAt:   at,
		CompletedAt: &completedAt,
	}
}

func TestAggregate(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	transactions := []*model.Transaction{
		completedTx("today", "10.50", now.Add(-time.Hour)),
		completedTx("month", "20", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)),
		completedTx("last-month", "100", time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC)),
		{ID: "pending", Amount: decimal.NewFromInt(1000), Currency: model.DefaultCurrency, Status: model.TransactionPending, CreatedAt: now},
		{ID: "eur", Amount: decimal.NewFromInt(5), Currency: "EUR", Status: model.TransactionCompleted, CreatedAt: now},
	}
	spend := Aggregate(transactions, model.DefaultCurrency, now)
	assert.Equal(t, "10.5", spend.Today.String())
	assert.Equal(t, "30.5", spend.Month.String())

	eur := Aggregate(transactions, "eur", now)
	assert.Equal(t, "5", eur.Today.String())
}

func TestLedger_ReserveCommitRelease(t *testing.T) {
	ctx := context.Background()
	transactions := store.NewMemoryStore[string, model.Transaction](txKey)
	require.NoError(t, transactions.Save(ctx, completedTx("old", "980", clock.Now())))
	ledger := New(transactions)

	pending := &model.Transaction{ID: "tx-1", Amount: decimal.NewFromInt(15), Currency: model.DefaultCurrency, Status: model.TransactionPending, CreatedAt: clock.Now()}
	spend, admitted, err := ledger.Reserve(ctx, "agent", pending, func(*model.Spend) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Equal(t, "980", spend.Today.String())
	assert.Equal(t, 1, ledger.Reserved())

	next := &model.Transaction{ID: "tx-2", Amount: decimal.NewFromInt(1), Currency: model.DefaultCurrency, CreatedAt: clock.Now()}
	spend, admitted, err = ledger.Reserve(ctx, "agent", next, func(*model.Spend) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, "995", spend.Today.String())
	assert.Equal(t, 1, ledger.Reserved())

	// saved as completed before commit: counted exactly once
	pending.Status = model.TransactionCompleted
	require.NoError(t, transactions.Save(ctx, pending))
	spend, _, err = ledger.Reserve(ctx, "agent", next, func(*model.Spend) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, "995", spend.Today.String())

	ledger.Commit(pending.ID)
	assert.Equal(t, 0, ledger.Reserved())
	totals, err := ledger.Totals(ctx, model.DefaultCurrency)
	require.NoError(t, err)
	assert.Equal(t, "995", totals.Today.String())

	_, admitted, err = ledger.Reserve(ctx, "agent", next, func(*model.Spend) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.True(t, admitted)
	ledger.Release(next.ID)
	assert.Equal(t, 0, ledger.Reserved())
}

func TestLedger_ConcurrentReservationsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	transactions := store.NewMemoryStore[string, model.Transaction](txKey)
	require.NoError(t, transactions.Save(ctx, completedTx("old", "900", clock.Now())))
	ledger := New(transactions)
	limit := decimal.NewFromInt(1000)
	amount := decimal.RequireFromString("30")

	var wg sync.WaitGroup
	var mu sync.Mutex
	admittedCount := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := &model.Transaction{ID: fmt.Sprintf("tx-%d", i), Amount: amount, Currency: model.DefaultCurrency, Status: model.TransactionPending, CreatedAt: clock.Now()}
			_, admitted, err := ledger.Reserve(ctx, "agent", tx, func(spend *model.Spend) (bool, error) {
				return spend.Today.Add(amount).LessThanOrEqual(limit), nil
			})
			assert.NoError(t, err)
			if admitted {
				mu.Lock()
				admittedCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, admittedCount)
	assert.Equal(t, 3, ledger.Reserved())
}
