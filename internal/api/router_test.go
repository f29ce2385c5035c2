package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/api"
	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/config"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/testutil"
)

type idleIngestor struct{}

func (idleIngestor) TryRun(context.Context) (model.RunSummary, error) {
	return model.RunSummary{}, apperrors.ErrIngestionInProgress
}

func (idleIngestor) TryRunRange(context.Context, model.AccountRef, model.DateRange) (model.RunSummary, error) {
	return model.RunSummary{}, apperrors.ErrIngestionInProgress
}

func (idleIngestor) LastRun(context.Context) (model.RunSummary, error) {
	return model.RunSummary{}, apperrors.ErrNoIngestionRun
}

func TestNewRouter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := &config.Config{
		CORS:     config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Accounts: []config.Account{{Name: "depot-a"}},
	}
	router := api.NewRouter(
		testutil.NewTestSystemService(t, db),
		testutil.NewTestDividendService(t, db),
		idleIngestor{},
		cfg,
		zerolog.Nop(),
	)
	stored := testutil.NewDividend().Insert(t, db)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/system/health", http.StatusOK},
		{http.MethodGet, "/api/dividend", http.StatusOK},
		{http.MethodGet, "/api/dividend/totals", http.StatusOK},
		{http.MethodGet, "/api/dividend?account=depot-a", http.StatusOK},
		{http.MethodGet, "/api/dividend?account=depot-z", http.StatusBadRequest},
		{http.MethodGet, "/api/dividend/" + stored.ID, http.StatusOK},
		{http.MethodGet, "/api/dividend/not-a-uuid", http.StatusBadRequest},
		{http.MethodGet, "/api/dividend/" + testutil.MakeID(), http.StatusNotFound},
		{http.MethodPost, "/api/ingest", http.StatusConflict},
		{http.MethodGet, "/api/ingest/last", http.StatusNotFound},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
