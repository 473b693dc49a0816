package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/evm"
	"github.com/ethpandaops/execution-calltree/pkg/processor"
	"github.com/ethpandaops/execution-calltree/pkg/processor/calltree"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

const (
	maxBulkTransactions = 1000
)

// Service is what the handler needs from the processor manager.
type Service interface {
	Enqueue(ctx context.Context, hash string) (bool, error)
	Reconstruct(ctx context.Context, hash string) (*calltree.Result, error)
	GetQueueName() string
}

type Handler struct {
	log     logrus.FieldLogger
	service Service
}

func NewHandler(log logrus.FieldLogger, service Service) *Handler {
	return &Handler{
		log:     log.WithField("component", "api"),
		service: service,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/queue/transaction/{hash}", h.queueSingleTransaction)
	mux.HandleFunc("POST /api/v1/queue/transactions", h.queueMultipleTransactions)
	mux.HandleFunc("GET /api/v1/calltree/{hash}", h.getCallTree)
}

type SingleTransactionResponse struct {
	Status          string `json:"status"`
	TransactionHash string `json:"transaction_hash"`
	Queue           string `json:"queue"`
}

type TransactionResult struct {
	TransactionHash string `json:"transaction_hash"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

type BulkTransactionsRequest struct {
	Transactions []string `json:"transactions"`
}

type BulkTransactionsResponse struct {
	Status  string `json:"status"`
	Queue   string `json:"queue"`
	Summary struct {
		Total   int `json:"total"`
		Queued  int `json:"queued"`
		Skipped int `json:"skipped"`
		Failed  int `json:"failed"`
	} `json:"summary"`
	Results []TransactionResult `json:"results"`
}

type ErrorResponse struct {
	Error           string `json:"error"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

func (h *Handler) queueSingleTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := storage.NormalizeHash(r.PathValue("hash"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid transaction hash", r.PathValue("hash"))

		return
	}

	queued, err := h.service.Enqueue(r.Context(), hash)
	if err != nil {
		h.writeError(w, enqueueStatus(err), err.Error(), hash)

		return
	}

	status := "queued"
	if !queued {
		status = "already_queued"
	}

	h.writeJSON(w, http.StatusOK, SingleTransactionResponse{
		Status:          status,
		TransactionHash: hash,
		Queue:           h.service.GetQueueName(),
	})
}

func (h *Handler) queueMultipleTransactions(w http.ResponseWriter, r *http.Request) {
	var req BulkTransactionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "")

		return
	}

	if len(req.Transactions) == 0 {
		h.writeError(w, http.StatusBadRequest, "no transactions provided", "")

		return
	}

	if len(req.Transactions) > maxBulkTransactions {
		h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("too many transactions (limit: %d)", maxBulkTransactions), "")

		return
	}

	response := BulkTransactionsResponse{
		Queue:   h.service.GetQueueName(),
		Results: make([]TransactionResult, 0, len(req.Transactions)),
	}

	response.Summary.Total = len(req.Transactions)

	for _, hash := range req.Transactions {
		queued, err := h.service.Enqueue(r.Context(), hash)

		switch {
		case err != nil:
			response.Results = append(response.Results, TransactionResult{
				TransactionHash: hash,
				Status:          "failed",
				Error:           err.Error(),
			})
			response.Summary.Failed++
		case !queued:
			response.Results = append(response.Results, TransactionResult{
				TransactionHash: hash,
				Status:          "skipped",
			})
			response.Summary.Skipped++
		default:
			response.Results = append(response.Results, TransactionResult{
				TransactionHash: hash,
				Status:          "queued",
			})
			response.Summary.Queued++
		}
	}

	succeeded := response.Summary.Queued + response.Summary.Skipped

	switch {
	case response.Summary.Failed > 0 && succeeded > 0:
		response.Status = "partial"
		h.writeJSON(w, http.StatusMultiStatus, response)
	case response.Summary.Failed > 0:
		response.Status = "failed"
		h.writeJSON(w, http.StatusInternalServerError, response)
	default:
		response.Status = "queued"
		h.writeJSON(w, http.StatusOK, response)
	}
}

// getCallTree reconstructs a transaction. ?instructions=false drops the
// per-frame instruction lists from the response.
func (h *Handler) getCallTree(w http.ResponseWriter, r *http.Request) {
	hash, err := storage.NormalizeHash(r.PathValue("hash"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid transaction hash", r.PathValue("hash"))

		return
	}

	result, err := h.service.Reconstruct(r.Context(), hash)
	if err != nil {
		status := reconstructStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.WithError(err).WithField("tx_hash", hash).Error("Failed to reconstruct call tree")
		}

		h.writeError(w, status, err.Error(), hash)

		return
	}

	if r.URL.Query().Get("instructions") == "false" && result.Root != nil {
		result.Root.Walk(func(frame *evm.CallFrame, _ int) bool {
			frame.Instructions = []evm.Instruction{}

			return true
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

func enqueueStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidHash):
		return http.StatusBadRequest
	case errors.Is(err, processor.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, calltree.ErrQueueDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reconstructStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidHash):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrTraceNotFound), errors.Is(err, execution.ErrTransactionNotFound):
		return http.StatusNotFound
	case calltree.IsPermanent(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, hash string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:           message,
		TransactionHash: hash,
	})
}
