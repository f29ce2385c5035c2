package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ndewijer/depotsync/internal/api/request"
	"github.com/ndewijer/depotsync/internal/api/response"
	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/validation"
)

// Ingestor runs ingestion on request.
type Ingestor interface {
	TryRun(ctx context.Context) (model.RunSummary, error)
	TryRunRange(ctx context.Context, account model.AccountRef, r model.DateRange) (model.RunSummary, error)
	LastRun(ctx context.Context) (model.RunSummary, error)
}

// IngestHandler exposes manual ingestion runs.
type IngestHandler struct {
	ingestor Ingestor
	accounts []model.AccountRef
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ingestor Ingestor, accounts []model.AccountRef) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, accounts: accounts}
}

// Run handles POST requests that start an ingestion run and waits for it.
// The optional JSON body narrows the run to one account and/or a date range.
// The run outlives a disconnecting client so a confirmed challenge is not wasted.
//
// Endpoint: POST /api/ingest
// Response: 200 OK with RunSummary (also when individual accounts failed)
// Error: 400 Bad Request if the body is invalid
// Error: 409 Conflict if a run is already in progress
func (h *IngestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req request.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	account, dateRange, err := validation.ValidateIngestRequest(req, h.accounts)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())

	var summary model.RunSummary
	if account == "" && dateRange.IsZero() {
		summary, err = h.ingestor.TryRun(ctx)
	} else {
		summary, err = h.ingestor.TryRunRange(ctx, account, dateRange)
	}
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrIngestionFailed)
		return
	}

	response.RespondJSON(w, http.StatusOK, summary)
}

// LastRun handles GET requests for the most recent run summary.
//
// Endpoint: GET /api/ingest/last
// Response: 200 OK with RunSummary
// Error: 404 Not Found if no run has been recorded
// Error: 500 Internal Server Error if retrieval fails
func (h *IngestHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ingestor.LastRun(r.Context())
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveRun)
		return
	}

	response.RespondJSON(w, http.StatusOK, summary)
}
