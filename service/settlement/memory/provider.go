// Package memory provides a simulated on-chain payment provider backed by an
// in-memory wallet.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/internal/idgen"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/settlement"
)

const (
	DefaultNetwork = "base-sepolia"
	explorerURL    = "https://sepolia.basescan.org/tx/"
	firstBlock     = 5000000
)

// Config holds the simulated wallet.
type Config struct {
	Address  string          `json:"address" yaml:"address"`
	Network  string          `json:"network" yaml:"network"`
	Currency string          `json:"currency" yaml:"currency"`
	Balance  decimal.Decimal `json:"balance" yaml:"balance"`
	Latency  time.Duration   `json:"latency" yaml:"latency"`
}

// Provider settles payments by debiting the wallet balance.
type Provider struct {
	mux       sync.Mutex
	config    Config
	balance   decimal.Decimal
	updatedAt time.Time
	block     atomic.Int64
	failure   error
	settled   atomic.Int64
}

// New creates a provider
func New(config Config) *Provider {
	if config.Network == "" {
		config.Network = DefaultNetwork
	}
	if config.Currency == "" {
		config.Currency = model.DefaultCurrency
	}
	if config.Address == "" {
		config.Address = "0x" + idgen.Hex()
	}
	ret := &Provider{config: config, balance: config.Balance, updatedAt: clock.Now()}
	ret.block.Store(firstBlock)
	return ret
}

// SetFailure makes every subsequent Settle fail with err; nil resets it.
func (p *Provider) SetFailure(err error) {
	p.mux.Lock()
	p.failure = err
	p.mux.Unlock()
}

// Settled returns the number of successful payments.
func (p *Provider) Settled() int64 {
	return p.settled.Load()
}

// Settle debits the wallet and returns a receipt.
func (p *Provider) Settle(ctx context.Context, request *settlement.Request) (*settlement.Receipt, error) {
	if p.config.Latency > 0 {
		select {
		case <-time.After(p.config.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.failure != nil {
		return nil, p.failure
	}
	if !strings.EqualFold(request.Currency, p.config.Currency) {
		return nil, fmt.Errorf("unsupported currency %s, wallet holds %s", request.Currency, p.config.Currency)
	}
	if request.Amount.GreaterThan(p.balance) {
		return nil, fmt.Errorf("%w: balance %s, required %s", settlement.ErrInsufficientFunds, p.balance.StringFixed(2), request.Amount.StringFixed(2))
	}
	p.balance = p.balance.Sub(request.Amount)
	p.updatedAt = clock.Now()
	p.settled.Add(1)
	hash := "0x" + idgen.Hex()
	return &settlement.Receipt{
		TransactionHash: hash,
		Network:         p.config.Network,
		Amount:          request.Amount,
		Currency:        request.Currency,
		Recipient:       request.Recipient,
		Status:          "confirmed",
		BlockNumber:     p.block.Add(1),
		ExplorerURL:     explorerURL + hash,
		Timestamp:       p.updatedAt,
	}, nil
}

// Wallet returns the current wallet state.
func (p *Provider) Wallet(context.Context) (*model.Wallet, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	return &model.Wallet{
		Address:   p.config.Address,
		Network:   p.config.Network,
		Balance:   p.balance,
		Currency:  p.config.Currency,
		UpdatedAt: p.updatedAt,
	}, nil
}

var (
	_ settlement.Provider       = (*Provider)(nil)
	_ settlement.WalletProvider = (*Provider)(nil)
)
