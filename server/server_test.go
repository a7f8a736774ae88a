package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/agentpay"
	"github.com/viant/agentpay/internal/logging"
	"github.com/viant/agentpay/model"
)

func newTestServer(t *testing.T, configure func(c *agentpay.Config)) *httptest.Server {
	t.Helper()
	cfg := agentpay.DefaultConfig()
	cfg.Voice.WaitWindow = time.Second
	cfg.Voice.PollInterval = 5 * time.Millisecond
	cfg.Voice.AnswerAfter = 0
	cfg.HTTP.RateLimit = 0
	if configure != nil {
		configure(cfg)
	}
	logger := logging.Discard()
	srv, err := agentpay.New(context.Background(), cfg, agentpay.WithLogger(logger))
	require.NoError(t, err)
	ts := httptest.NewServer(New(srv, cfg.HTTP, logger).Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path, body string, headers map[string]string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return resp.StatusCode, raw
}

func TestServer_CreateTransaction(t *testing.T) {
	ts := newTestServer(t, nil)

	testCases := []struct {
		description string
		body        string
		status      int
		txStatus    model.TransactionStatus
		pending     bool
	}{
		{description: "auto approved", body: `{"amount":"45.99","type":"purchase","merchant":"Amazon"}`, status: http.StatusCreated, txStatus: model.TransactionCompleted},
		{description: "awaiting voice", body: `{"amount":"150.00","type":"purchase","merchant":"Anthropic"}`, status: http.StatusAccepted, txStatus: model.TransactionPending, pending: true},
		{description: "daily limit", body: `{"amount":"999.00","type":"purchase","merchant":"Amazon"}`, status: http.StatusBadRequest, txStatus: model.TransactionRejected},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			status, body := call(t, ts, http.MethodPost, "/api/transactions", tc.body, nil)
			require.Equal(t, tc.status, status, string(body))
			response := &transactionResponse{}
			require.NoError(t, json.Unmarshal(body, response))
			assert.Equal(t, tc.txStatus, response.Transaction.Status)
			assert.Equal(t, tc.pending, response.Pending)
			assert.Equal(t, tc.pending, response.VoiceCall != nil)
		})
	}
}

func TestServer_ValidationAndIdempotency(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := call(t, ts, http.MethodPost, "/api/transactions", `{"amount":"-1","type":"gift","merchant":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "amount")

	status, _ = call(t, ts, http.MethodPost, "/api/transactions", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	headers := map[string]string{IdempotencyHeader: "order-42"}
	request := `{"amount":"5.00","type":"purchase","merchant":"Amazon"}`
	status, _ = call(t, ts, http.MethodPost, "/api/transactions", request, headers)
	assert.Equal(t, http.StatusCreated, status)
	status, _ = call(t, ts, http.MethodPost, "/api/transactions", request, headers)
	assert.Equal(t, http.StatusConflict, status)

	status, body = call(t, ts, http.MethodGet, "/api/transactions", "", nil)
	assert.Equal(t, http.StatusOK, status)
	var transactions []*model.Transaction
	require.NoError(t, json.Unmarshal(body, &transactions))
	assert.Len(t, transactions, 1)
}

func TestServer_VoiceCallLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	_, body := call(t, ts, http.MethodPost, "/api/transactions", `{"amount":"250","type":"payment","merchant":"Anthropic"}`, nil)
	created := &transactionResponse{}
	require.NoError(t, json.Unmarshal(body, created))
	require.NotNil(t, created.VoiceCall)

	status, body := call(t, ts, http.MethodPost, "/api/calls/"+created.VoiceCall.ID+"/complete", `{"approved":true,"transcript":"User: yes"}`, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	assert.Eventually(t, func() bool {
		status, body := call(t, ts, http.MethodGet, "/api/transactions/"+created.Transaction.ID, "", nil)
		if status != http.StatusOK {
			return false
		}
		tx := &model.TransactionWithCall{}
		return json.Unmarshal(body, tx) == nil && tx.Status == model.TransactionCompleted && tx.VoiceCall != nil
	}, 2*time.Second, 10*time.Millisecond)

	status, _ = call(t, ts, http.MethodPost, "/api/transactions/"+created.Transaction.ID+"/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, ts, http.MethodGet, "/api/transactions/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = call(t, ts, http.MethodPost, "/api/calls/missing/complete", `{"approved":true}`, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = call(t, ts, http.MethodGet, "/api/calls/recent?limit=5", "", nil)
	assert.Equal(t, http.StatusOK, status)
	var calls []*model.VoiceApproval
	require.NoError(t, json.Unmarshal(body, &calls))
	assert.Len(t, calls, 1)
}

func TestServer_Cancel(t *testing.T) {
	ts := newTestServer(t, nil)
	_, body := call(t, ts, http.MethodPost, "/api/transactions", `{"amount":"300","type":"purchase","merchant":"Anthropic"}`, nil)
	created := &transactionResponse{}
	require.NoError(t, json.Unmarshal(body, created))

	status, body := call(t, ts, http.MethodPost, "/api/transactions/"+created.Transaction.ID+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	tx := &model.Transaction{}
	require.NoError(t, json.Unmarshal(body, tx))
	assert.Equal(t, model.TransactionRejected, tx.Status)
	assert.Equal(t, model.ReasonCancelled, tx.Reason)
}

func TestServer_ConfigAndEmergencyStop(t *testing.T) {
	ts := newTestServer(t, func(c *agentpay.Config) { c.Agent.VoiceNotificationsEnabled = false })

	status, body := call(t, ts, http.MethodPatch, "/api/config", `{"dailySpendLimit":"50.00","blockedMerchants":["Casino"]}`, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	cfg := &model.AgentConfig{}
	require.NoError(t, json.Unmarshal(body, cfg))
	assert.Equal(t, "50", cfg.DailySpendLimit.Decimal.String())
	assert.Equal(t, []string{"Casino"}, cfg.BlockedMerchants)

	status, _ = call(t, ts, http.MethodPatch, "/api/config", `{"approvalThreshold":"-5"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, ts, http.MethodPost, "/api/transactions", `{"amount":"5","type":"purchase","merchant":"casino"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "policy:blocked-merchant")

	status, _ = call(t, ts, http.MethodPost, "/api/emergency-stop", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, body = call(t, ts, http.MethodPost, "/api/emergency-stop", `{"active":true}`, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, cfg))
	assert.True(t, cfg.EmergencyStopActive)

	status, body = call(t, ts, http.MethodGet, "/api/config", "", nil)
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, cfg))
	assert.True(t, cfg.EmergencyStopActive)
	assert.Equal(t, int64(2), cfg.Version)
}

func TestServer_StatsWalletHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	call(t, ts, http.MethodPost, "/api/transactions", `{"amount":"20","type":"purchase","merchant":"Amazon"}`, nil)

	status, body := call(t, ts, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, status)
	stats := &model.Stats{}
	require.NoError(t, json.Unmarshal(body, stats))
	assert.Equal(t, 1, stats.TotalTransactions)
	assert.Equal(t, "20.00", stats.TotalSpentToday)

	status, body = call(t, ts, http.MethodGet, "/api/wallet", "", nil)
	require.Equal(t, http.StatusOK, status)
	wallet := &model.Wallet{}
	require.NoError(t, json.Unmarshal(body, wallet))
	assert.Equal(t, "480.00", wallet.Balance.StringFixed(2))

	status, _ = call(t, ts, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *agentpay.Config) {
		c.HTTP.RateLimit = 0.001
		c.HTTP.Burst = 2
	})
	for i := 0; i < 2; i++ {
		status, _ := call(t, ts, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, status)
	}
	status, _ := call(t, ts, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
}
