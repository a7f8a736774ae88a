// Package spend derives spend aggregates and serialises the check-and-reserve
// step so that concurrent submissions never overshoot a limit.
package spend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/dao"
)

// EvaluateFunc decides whether a transaction fits the supplied spend totals.
type EvaluateFunc func(spend *model.Spend) (admitted bool, err error)

type reservation struct {
	agentID   string
	currency  string
	amount    decimal.Decimal
	createdAt time.Time
}

// Ledger tracks in-flight reservations on top of completed transactions.
// Reservations live until the transaction is committed (saved as completed)
// or released (rejected or failed).
type Ledger struct {
	transactions dao.Service[string, model.Transaction]

	mux          sync.Mutex
	agents       map[string]*sync.Mutex
	reservations map[string]*reservation
}

// New creates a ledger reading completed transactions from the supplied store
func New(transactions dao.Service[string, model.Transaction]) *Ledger {
	return &Ledger{
		transactions: transactions,
		agents:       make(map[string]*sync.Mutex),
		reservations: make(map[string]*reservation),
	}
}

func (l *Ledger) agentLock(agentID string) *sync.Mutex {
	l.mux.Lock()
	defer l.mux.Unlock()
	lock, ok := l.agents[agentID]
	if !ok {
		lock = &sync.Mutex{}
		l.agents[agentID] = lock
	}
	return lock
}

// Reserve computes current spend (completed plus reserved) for the
// transaction currency, runs evaluate and, when admitted, reserves the amount.
// The whole sequence runs under the agent's lock.
func (l *Ledger) Reserve(ctx context.Context, agentID string, tx *model.Transaction, evaluate EvaluateFunc) (*model.Spend, bool, error) {
	lock := l.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	completed, err := l.transactions.List(ctx, dao.WithStatus(string(model.TransactionCompleted)))
	if err != nil {
		return nil, false, fmt.Errorf("failed to list completed transactions: %w", err)
	}
	now := clock.Now()
	spend := Aggregate(completed, tx.Currency, now)

	settled := make(map[string]bool, len(completed))
	for _, item := range completed {
		settled[item.ID] = true
	}
	l.mux.Lock()
	for id, r := range l.reservations {
		if r.agentID != agentID || settled[id] || !strings.EqualFold(r.currency, tx.Currency) {
			continue
		}
		add(spend, r.amount, r.createdAt, now)
	}
	l.mux.Unlock()

	admitted, err := evaluate(spend)
	if err != nil || !admitted {
		return spend, false, err
	}
	l.mux.Lock()
	l.reservations[tx.ID] = &reservation{agentID: agentID, currency: tx.Currency, amount: tx.Amount, createdAt: tx.CreatedAt}
	l.mux.Unlock()
	return spend, true, nil
}

// Commit drops the reservation once the completed transaction is stored.
func (l *Ledger) Commit(txID string) { l.drop(txID) }

// Release drops the reservation of a transaction that will not be settled.
func (l *Ledger) Release(txID string) { l.drop(txID) }

func (l *Ledger) drop(txID string) {
	l.mux.Lock()
	delete(l.reservations, txID)
	l.mux.Unlock()
}

// Reserved returns the number of live reservations.
func (l *Ledger) Reserved() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return len(l.reservations)
}

// Totals returns committed spend for currency.
func (l *Ledger) Totals(ctx context.Context, currency string) (*model.Spend, error) {
	completed, err := l.transactions.List(ctx, dao.WithStatus(string(model.TransactionCompleted)))
	if err != nil {
		return nil, fmt.Errorf("failed to list completed transactions: %w", err)
	}
	return Aggregate(completed, currency, clock.Now()), nil
}

// Aggregate sums completed transactions in currency created today and this
// month relative to now.
func Aggregate(transactions []*model.Transaction, currency string, now time.Time) *model.Spend {
	ret := &model.Spend{Currency: currency, Today: decimal.Zero, Month: decimal.Zero}
	for _, tx := range transactions {
		if tx.Status != model.TransactionCompleted || !strings.EqualFold(tx.Currency, currency) {
			continue
		}
		add(ret, tx.Amount, tx.CreatedAt, now)
	}
	return ret
}

func add(spend *model.Spend, amount decimal.Decimal, at, now time.Time) {
	if !at.Before(clock.StartOfMonth(now)) {
		spend.Month = spend.Month.Add(amount)
	}
	if !at.Before(clock.StartOfDay(now)) {
		spend.Today = spend.Today.Add(amount)
	}
}
