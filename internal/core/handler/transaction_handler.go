package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/middleware"
	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/usecase"
)

const maxUploadSize = 20 << 20

type TransactionHandler struct {
	approvals    usecase.ApprovalUsecase
	ingest       usecase.IngestUsecase
	uploadDir    string
	liveFeedPath string
	log          logger.Logger
}

type InvoiceResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

type BatchApprovalResponse struct {
	BatchID      string               `json:"batch_id"`
	Queued       int                  `json:"queued"`
	Transactions []models.Transaction `json:"transactions"`
}

type PinRequest struct {
	Pin string `json:"pin"`
}

type StatusResponse struct {
	ID     int64         `json:"id"`
	Status models.Status `json:"status"`
}

func NewTransactionHandler(approvals usecase.ApprovalUsecase, ingest usecase.IngestUsecase, uploadDir, liveFeedPath string, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		approvals:    approvals,
		ingest:       ingest,
		uploadDir:    uploadDir,
		liveFeedPath: liveFeedPath,
		log:          log,
	}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/live", h.LiveFeed).Methods(http.MethodGet)

	user := api.NewRoute().Subrouter()
	user.Use(middleware.RequireUser)
	user.HandleFunc("/invoices", h.UploadInvoice).Methods(http.MethodPost)
	user.HandleFunc("/transactions/pending", h.ListPending).Methods(http.MethodGet)
	user.HandleFunc("/transactions/{id:[0-9]+}", h.GetTransaction).Methods(http.MethodGet)
	user.HandleFunc("/transactions/{id:[0-9]+}", h.UpdateTransaction).Methods(http.MethodPut)
	user.HandleFunc("/transactions/{id:[0-9]+}/approve", h.ApproveTransaction).Methods(http.MethodPost)
	user.HandleFunc("/transactions/{id:[0-9]+}/pin", h.SubmitPin).Methods(http.MethodPost)
	user.HandleFunc("/batches/{batch_id}/approve", h.ApproveBatch).Methods(http.MethodPost)
}

// UploadInvoice stores the uploaded file and queues it for extraction.
func (h *TransactionHandler) UploadInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.log.Warn("Invalid invoice upload", logger.ErrorField("error", err))
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorResponse{Error: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		h.log.Error("Failed to save invoice", logger.ErrorField("error", err))
		middleware.WriteError(w, err)
		return
	}

	batchID, err := h.ingest.Submit(r.Context(), middleware.UserFrom(r.Context()), path)
	if err != nil {
		h.log.Error("Failed to queue invoice", logger.StringField("file", path), logger.ErrorField("error", err))
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, InvoiceResponse{BatchID: batchID, Status: "processing"})
}

func (h *TransactionHandler) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "invoice"
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+"_"+base)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}

func (h *TransactionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	txs, err := h.approvals.ListPending(r.Context(), middleware.UserFrom(r.Context()))
	if err != nil {
		h.log.Error("Failed to list pending transactions", logger.ErrorField("error", err))
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, txs)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	tx, err := h.approvals.Get(r.Context(), middleware.UserFrom(r.Context()), id)
	if err != nil {
		h.handleError(w, id, "Failed to get transaction", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	var patch models.DetailsPatch
	if !h.decode(w, r, &patch) {
		return
	}

	tx, err := h.approvals.UpdateDetails(r.Context(), middleware.UserFrom(r.Context()), id, patch)
	if err != nil {
		h.handleError(w, id, "Failed to update transaction", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	tx, err := h.approvals.Approve(r.Context(), middleware.UserFrom(r.Context()), id)
	if err != nil {
		h.handleError(w, id, "Failed to approve transaction", err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, StatusResponse{ID: tx.ID, Status: tx.Status})
}

func (h *TransactionHandler) ApproveBatch(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batch_id"]
	txs, err := h.approvals.ApproveBatch(r.Context(), middleware.UserFrom(r.Context()), batchID)
	if err != nil {
		h.log.Warn("Failed to approve batch", logger.StringField("batch_id", batchID), logger.ErrorField("error", err))
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, BatchApprovalResponse{BatchID: batchID, Queued: len(txs), Transactions: txs})
}

func (h *TransactionHandler) SubmitPin(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	var req PinRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.approvals.ProvidePin(r.Context(), middleware.UserFrom(r.Context()), id, strings.TrimSpace(req.Pin)); err != nil {
		h.handleError(w, id, "Failed to submit PIN", err)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, StatusResponse{ID: id, Status: models.StatusWaitingForPin})
}

// LiveFeed serves the latest automation snapshot.
func (h *TransactionHandler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.liveFeedPath); err != nil {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorResponse{Error: "no live feed available"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, h.liveFeedPath)
}

func (h *TransactionHandler) transactionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorResponse{Error: "invalid transaction id"})
		return 0, false
	}
	return id, true
}

func (h *TransactionHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorResponse{Error: "invalid request payload"})
		return false
	}
	return true
}

func (h *TransactionHandler) handleError(w http.ResponseWriter, id int64, msg string, err error) {
	fields := []logger.Field{logger.Int64Field("transaction_id", id), logger.ErrorField("error", err)}
	if middleware.StatusFor(err) == http.StatusInternalServerError || errors.Is(err, usecase.ErrDispatchFailed) {
		h.log.Error(msg, fields...)
	} else {
		h.log.Warn(msg, fields...)
	}
	middleware.WriteError(w, err)
}
