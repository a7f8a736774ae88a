package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/agentpay/service/settlement"
)

func TestProvider_Settle(t *testing.T) {
	provider := New(Config{Balance: decimal.RequireFromString("100.00")})
	ctx := context.Background()

	receipt, err := provider.Settle(ctx, &settlement.Request{Amount: decimal.RequireFromString("45.99"), Currency: "USDC", Recipient: "Amazon", Reference: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", receipt.Status)
	assert.Equal(t, DefaultNetwork, receipt.Network)
	assert.NotEmpty(t, receipt.TransactionHash)
	assert.Contains(t, receipt.ExplorerURL, receipt.TransactionHash)

	wallet, err := provider.Wallet(ctx)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("54.01")), wallet.Balance.String())
	assert.EqualValues(t, 1, provider.Settled())
}

func TestProvider_Failures(t *testing.T) {
	provider := New(Config{Balance: decimal.RequireFromString("10")})
	ctx := context.Background()

	_, err := provider.Settle(ctx, &settlement.Request{Amount: decimal.RequireFromString("10.01"), Currency: "USDC"})
	assert.True(t, errors.Is(err, settlement.ErrInsufficientFunds))

	_, err = provider.Settle(ctx, &settlement.Request{Amount: decimal.RequireFromString("1"), Currency: "EUR"})
	assert.Error(t, err)

	provider.SetFailure(errors.New("network congested"))
	_, err = provider.Settle(ctx, &settlement.Request{Amount: decimal.RequireFromString("1"), Currency: "USDC"})
	assert.EqualError(t, err, "network congested")

	wallet, _ := provider.Wallet(ctx)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("10")))
	assert.EqualValues(t, 0, provider.Settled())
}
