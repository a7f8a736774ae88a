package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/viant/agentpay"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/runtime/orchestrator"
	"github.com/viant/agentpay/service/dao"
)

const defaultRecentLimit = 10

type errorResponse struct {
	Error   string      `json:"error"`
	Reason  string      `json:"reason,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// transactionResponse is returned by create; Error is set when the pipeline
// ended unsuccessfully after the transaction was created.
type transactionResponse struct {
	Transaction *model.Transaction   `json:"transaction"`
	VoiceCall   *model.VoiceApproval `json:"voiceCall,omitempty"`
	Pending     bool                 `json:"pending"`
	Error       string               `json:"error,omitempty"`
	Checks      interface{}          `json:"checks,omitempty"`
}

type completeCallRequest struct {
	Approved   bool     `json:"approved"`
	Transcript string   `json:"transcript"`
	Duration   *float64 `json:"duration,omitempty"`
}

type emergencyStopRequest struct {
	Active *bool `json:"active"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &errorResponse{Error: message})
}

// writeFailure maps service errors onto HTTP statuses.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var validation model.ValidationErrors
	var single *model.ValidationError
	var duplicate *model.DuplicateError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid request", Details: validation})
	case errors.As(err, &single):
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid request", Details: []*model.ValidationError{single}})
	case errors.As(err, &duplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dao.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, orchestrator.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, agentpay.ErrWalletUnavailable):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return &model.ValidationError{Message: "malformed JSON body: " + err.Error()}
	}
	return nil
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultRecentLimit
	}
	return limit
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	if status := r.URL.Query().Get("status"); status != "" {
		statuses = strings.Split(status, ",")
	}
	transactions, err := s.service.Transactions(r.Context(), statuses...)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (s *Server) recentTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := s.service.RecentTransactions(r.Context(), limitParam(r))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.service.Transaction(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// createTransaction starts the pipeline without waiting for voice
// confirmation: 201 for a terminal transaction, 202 while confirmation is
// pending, 400 for a policy denial.
func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	request := &model.TransactionRequest{}
	if err := decode(r, request); err != nil {
		s.writeFailure(w, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" {
		request.IdempotencyKey = key
	}
	submission, err := s.service.Submit(r.Context(), request)
	if submission == nil {
		s.writeFailure(w, err)
		return
	}
	response := &transactionResponse{
		Transaction: submission.Transaction,
		VoiceCall:   submission.VoiceCall,
		Pending:     submission.Pending(),
	}
	status := http.StatusCreated
	if response.Pending {
		status = http.StatusAccepted
	}
	if err != nil {
		response.Error = err.Error()
		var denied *model.PolicyDenied
		var settlementErr *model.SettlementError
		var configErr *model.ConfigurationError
		switch {
		case errors.As(err, &denied):
			status = http.StatusBadRequest
			response.Checks = denied.Breakdown
		case errors.As(err, &settlementErr):
			status = http.StatusBadGateway
		case errors.As(err, &configErr):
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, response)
}

func (s *Server) cancelTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.service.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) listCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := s.service.VoiceCalls(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) recentCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := s.service.RecentCalls(r.Context(), limitParam(r))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) completeCall(w http.ResponseWriter, r *http.Request) {
	request := &completeCallRequest{}
	if err := decode(r, request); err != nil {
		s.writeFailure(w, err)
		return
	}
	call, err := s.service.CompleteVoiceCall(r.Context(), r.PathValue("id"), request.Transcript, request.Approved, request.Duration)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Config())
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	patch := &model.ConfigPatch{}
	if err := decode(r, patch); err != nil {
		s.writeFailure(w, err)
		return
	}
	cfg, err := s.service.UpdateConfig(r.Context(), patch)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) emergencyStop(w http.ResponseWriter, r *http.Request) {
	request := &emergencyStopRequest{}
	if err := decode(r, request); err != nil {
		s.writeFailure(w, err)
		return
	}
	if request.Active == nil {
		s.writeFailure(w, &model.ValidationError{Field: "active", Message: "is required"})
		return
	}
	cfg, err := s.service.EmergencyStop(r.Context(), *request.Active)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) wallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.service.Wallet(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}
