package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ndewijer/depotsync/internal/api/response"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/testutil"
)

var testAccounts = []model.AccountRef{testutil.DefaultAccount, "depot-b"}

func setupDividendHandler(t *testing.T) (*DividendHandler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ds := testutil.NewTestDividendService(t, db)
	return NewDividendHandler(ds, testAccounts), db
}

func TestDividendHandler_Dividends(t *testing.T) {
	t.Run("returns empty array when no dividends exist", func(t *testing.T) {
		handler, _ := setupDividendHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/api/dividend", nil)
		w := httptest.NewRecorder()

		handler.Dividends(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var response []model.DividendEvent
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if response == nil {
			t.Error("Expected non-nil array, got nil")
		}

		if len(response) != 0 {
			t.Errorf("Expected empty array, got %d dividends", len(response))
		}
	})

	t.Run("returns dividends ordered by payment date", func(t *testing.T) {
		handler, db := setupDividendHandler(t)

		later := testutil.NewDividend().WithDate(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)).Insert(t, db)
		earlier := testutil.NewDividend().WithAsset(testutil.ISINSAP).WithDate(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)).Insert(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/dividend", nil)
		w := httptest.NewRecorder()

		handler.Dividends(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var response []model.DividendEvent
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if len(response) != 2 {
			t.Fatalf("Expected 2 dividends, got %d", len(response))
		}
		if response[0].ID != earlier.ID || response[1].ID != later.ID {
			t.Errorf("Expected [%s %s], got [%s %s]", earlier.ID, later.ID, response[0].ID, response[1].ID)
		}
		if !response[0].NetAmount.Equal(earlier.NetAmount) {
			t.Errorf("Expected net %s, got %s", earlier.NetAmount, response[0].NetAmount)
		}
	})

	t.Run("applies filters", func(t *testing.T) {
		handler, db := setupDividendHandler(t)

		testutil.NewDividend().Insert(t, db)
		wanted := testutil.NewDividend().WithAccount("depot-b").WithAsset(testutil.ISINAllianz).Insert(t, db)

		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/dividend", map[string]string{
			"account": "depot-b",
			"asset":   "de0008404005",
			"from":    "2026-01-01",
			"to":      "2026-12-31",
		})
		w := httptest.NewRecorder()

		handler.Dividends(w, req)

		var response []model.DividendEvent
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if len(response) != 1 || response[0].ID != wanted.ID {
			t.Errorf("Expected only %s, got %+v", wanted.ID, response)
		}
	})

	t.Run("returns 400 for invalid filters", func(t *testing.T) {
		handler, _ := setupDividendHandler(t)

		tests := []map[string]string{
			{"account": "depot-z"},
			{"from": "2026-13-01"},
			{"from": "2026-03-01", "to": "2026-02-01"},
			{"asset": "not-an-isin"},
		}

		for _, params := range tests {
			req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/dividend", params)
			w := httptest.NewRecorder()

			handler.Dividends(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("%v: Expected 400, got %d: %s", params, w.Code, w.Body.String())
			}
		}
	})

	t.Run("returns 500 on database error", func(t *testing.T) {
		handler, db := setupDividendHandler(t)
		db.Close()

		req := httptest.NewRequest(http.MethodGet, "/api/dividend", nil)
		w := httptest.NewRecorder()

		handler.Dividends(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestDividendHandler_Totals(t *testing.T) {
	t.Run("returns totals per year and currency", func(t *testing.T) {
		handler, db := setupDividendHandler(t)

		testutil.NewDividend().Insert(t, db)
		testutil.NewDividend().WithAsset(testutil.ISINSAP).WithAmounts("20.00", "5.28", "14.72").Insert(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/dividend/totals", nil)
		w := httptest.NewRecorder()

		handler.Totals(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var response []model.DividendTotal
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if len(response) != 1 {
			t.Fatalf("Expected 1 bucket, got %d", len(response))
		}
		if response[0].Net.String() != "25.21" || response[0].Count != 2 {
			t.Errorf("Expected net 25.21 over 2 events, got %+v", response[0])
		}
	})

	t.Run("returns 400 for invalid filters", func(t *testing.T) {
		handler, _ := setupDividendHandler(t)

		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/dividend/totals", map[string]string{"to": "yesterday"})
		w := httptest.NewRecorder()

		handler.Totals(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestDividendHandler_GetDividend(t *testing.T) {
	t.Run("returns dividend successfully", func(t *testing.T) {
		handler, db := setupDividendHandler(t)
		dividend := testutil.NewDividend().WithShares("10", "1.234").Insert(t, db)

		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/dividend/"+dividend.ID,
			map[string]string{"uuid": dividend.ID},
		)
		w := httptest.NewRecorder()

		handler.GetDividend(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var response model.DividendEvent
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&response)

		if response.ID != dividend.ID || response.AssetIdentifier != testutil.ISINApple {
			t.Errorf("Expected dividend %s, got %+v", dividend.ID, response)
		}
		if !response.Shares.Valid {
			t.Error("Expected shares to be present")
		}
	})

	t.Run("returns 404 when dividend not found", func(t *testing.T) {
		handler, _ := setupDividendHandler(t)
		id := testutil.MakeID()

		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/dividend/"+id,
			map[string]string{"uuid": id},
		)
		w := httptest.NewRecorder()

		handler.GetDividend(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}

		var errResp response.ErrorResponse
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&errResp)

		if errResp.Error != "dividend not found" {
			t.Errorf("Expected 'dividend not found', got '%s'", errResp.Error)
		}
	})
}
