package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/depotsync/internal/api/request"
	"github.com/ndewijer/depotsync/internal/api/response"
	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/service"
	"github.com/ndewijer/depotsync/internal/validation"
)

// DividendHandler handles HTTP requests for dividend endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// business logic to the dividendService.
type DividendHandler struct {
	dividendService *service.DividendService
	accounts        []model.AccountRef
}

// NewDividendHandler creates a new DividendHandler with the provided service dependency.
func NewDividendHandler(dividendService *service.DividendService, accounts []model.AccountRef) *DividendHandler {
	return &DividendHandler{
		dividendService: dividendService,
		accounts:        accounts,
	}
}

func dividendQuery(r *http.Request) request.DividendQuery {
	q := r.URL.Query()
	return request.DividendQuery{
		Account: q.Get("account"),
		From:    q.Get("from"),
		To:      q.Get("to"),
		Asset:   q.Get("asset"),
	}
}

// Dividends handles GET requests to list recorded dividends.
// Optional query parameters: account, from, to (YYYY-MM-DD), asset (ISIN or WKN).
//
// Endpoint: GET /api/dividend
// Response: 200 OK with array of DividendEvent ordered by payment date
// Error: 400 Bad Request if a filter is invalid
// Error: 500 Internal Server Error if retrieval fails
func (h *DividendHandler) Dividends(w http.ResponseWriter, r *http.Request) {
	filter, err := validation.ValidateDividendQuery(dividendQuery(r), h.accounts)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}

	dividends, err := h.dividendService.GetDividends(r.Context(), filter)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveDividends.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, dividends)
}

// Totals handles GET requests for dividend totals per year and currency.
// Accepts the same filters as Dividends.
//
// Endpoint: GET /api/dividend/totals
// Response: 200 OK with array of DividendTotal
// Error: 400 Bad Request if a filter is invalid
// Error: 500 Internal Server Error if retrieval fails
func (h *DividendHandler) Totals(w http.ResponseWriter, r *http.Request) {
	filter, err := validation.ValidateDividendQuery(dividendQuery(r), h.accounts)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}

	totals, err := h.dividendService.GetTotals(r.Context(), filter)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveTotals.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, totals)
}

// GetDividend handles GET requests for a single dividend event.
//
// Endpoint: GET /api/dividend/{uuid}
// Response: 200 OK with DividendEvent
// Error: 400 Bad Request if the id is not a UUID (validated by middleware)
// Error: 404 Not Found if no such event exists
// Error: 500 Internal Server Error if retrieval fails
func (h *DividendHandler) GetDividend(w http.ResponseWriter, r *http.Request) {
	dividendID := chi.URLParam(r, "uuid")

	dividend, err := h.dividendService.GetDividend(r.Context(), dividendID)
	if err != nil {
		response.RespondServiceError(w, err, apperrors.ErrFailedToRetrieveDividends)
		return
	}

	response.RespondJSON(w, http.StatusOK, dividend)
}
