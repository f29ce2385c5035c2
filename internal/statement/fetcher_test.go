package statement_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/auth"
	"github.com/ndewijer/depotsync/internal/comdirect"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/statement"
	"github.com/ndewijer/depotsync/internal/testutil"
)

const ref = model.AccountRef("A")

type fixture struct {
	broker   *testutil.FakeBroker
	sessions *auth.SessionManager
	fetcher  *statement.Fetcher
	session  *model.Session
}

func setup(t *testing.T, txs ...testutil.Tx) *fixture {
	t.Helper()

	broker := testutil.NewFakeBroker(t)
	broker.AddUser(testutil.FakeUser{Username: "alice", Transactions: txs})
	pool := testutil.NewTestComdirectPool(t, broker.URL())
	sessions, _ := testutil.NewTestSessionManager(t, pool, broker.Account(string(ref), "alice"))

	session, err := sessions.Acquire(testutil.Context(t), ref)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	fetcher := statement.NewFetcher(
		func(r model.AccountRef) statement.Banking { return pool.Client(r) },
		sessions,
		zerolog.Nop(),
	)
	return &fixture{broker: broker, sessions: sessions, fetcher: fetcher, session: session}
}

func collect(t *testing.T, seq func(func(model.RawStatement, error) bool)) ([]model.RawStatement, error) {
	t.Helper()
	var out []model.RawStatement
	for s, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

func rng(t *testing.T, from, to string) model.DateRange {
	t.Helper()
	return model.NewDateRange(testutil.Date(t, from), testutil.Date(t, to))
}

func payloadValues(t *testing.T, s model.RawStatement) int {
	t.Helper()
	var p statement.Payload
	if err := json.Unmarshal(s.Payload, &p); err != nil {
		t.Fatalf("payload is not a statement document: %v", err)
	}
	return len(p.Values)
}

func TestFetcher_Fetch(t *testing.T) {
	txs := []testutil.Tx{
		testutil.DividendTx("2026-01-12", testutil.ISINApple, "12.34", "1.85", "10.49"),
		testutil.FeeTx("2026-01-31", "4.90"),
		testutil.DividendTx("2026-02-02", testutil.ISINSAP, "20.00", "5.28", "14.72"),
		testutil.PurchaseTx("2026-02-10", testutil.ISINMSCIWorld, "500.00"),
		testutil.DividendTx("2026-02-27", testutil.ISINAllianz, "11.40", "3.01", "8.39"),
	}

	t.Run("one statement per month in ascending order", func(t *testing.T) {
		// Setup
		f := setup(t, txs...)

		// Execute
		got, err := collect(t, f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-01-10", "2026-03-05")))

		// Assert
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 statements, got %d", len(got))
		}
		wantIDs := []string{"acc-alice-2026-01", "acc-alice-2026-02", "acc-alice-2026-03"}
		wantLines := []int{2, 3, 0}
		for i, s := range got {
			if s.DocumentID != wantIDs[i] {
				t.Errorf("statement %d DocumentID = %s, want %s", i, s.DocumentID, wantIDs[i])
			}
			if s.AccountRef != ref {
				t.Errorf("statement %d AccountRef = %s", i, s.AccountRef)
			}
			if n := payloadValues(t, s); n != wantLines[i] {
				t.Errorf("statement %d holds %d lines, want %d", i, n, wantLines[i])
			}
		}
		if got[0].PeriodStart.Format(model.DateLayout) != "2026-01-10" {
			t.Errorf("first period not clipped to range: %s", got[0].Period())
		}
		if got[2].PeriodEnd.Format(model.DateLayout) != "2026-03-05" {
			t.Errorf("last period not clipped to range: %s", got[2].Period())
		}
	})

	t.Run("follows paging", func(t *testing.T) {
		f := setup(t, txs...)
		f.fetcher.WithPageSize(2)

		got, err := collect(t, f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-02-01", "2026-02-28")))

		if err != nil || len(got) != 1 {
			t.Fatalf("Fetch() = %d statements, %v", len(got), err)
		}
		if n := payloadValues(t, got[0]); n != 3 {
			t.Errorf("Expected 3 lines across pages, got %d", n)
		}
		if calls := f.broker.TransactionCalls.Load(); calls != 2 {
			t.Errorf("Expected 2 page requests, got %d", calls)
		}
	})

	t.Run("nothing is requested until iteration", func(t *testing.T) {
		f := setup(t, txs...)

		seq := f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-01-01", "2026-02-28"))

		if f.broker.BalanceCalls.Load() != 0 || f.broker.TransactionCalls.Load() != 0 {
			t.Fatal("Fetch() issued requests before iteration")
		}
		if _, err := collect(t, seq); err != nil {
			t.Fatalf("iteration error = %v", err)
		}
		if f.broker.TransactionCalls.Load() != 2 {
			t.Errorf("Expected 2 transaction requests, got %d", f.broker.TransactionCalls.Load())
		}
	})

	t.Run("sequence can be iterated again", func(t *testing.T) {
		f := setup(t, txs...)
		seq := f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-01-01", "2026-02-28"))

		first, err1 := collect(t, seq)
		second, err2 := collect(t, seq)

		if err1 != nil || err2 != nil {
			t.Fatalf("iteration errors = %v, %v", err1, err2)
		}
		if len(first) != len(second) || first[1].DocumentID != second[1].DocumentID {
			t.Errorf("second iteration differs: %d vs %d statements", len(first), len(second))
		}
		if f.broker.TransactionCalls.Load() != 4 {
			t.Errorf("Expected requests to be repeated, got %d", f.broker.TransactionCalls.Load())
		}
	})

	t.Run("stopping early skips later months", func(t *testing.T) {
		f := setup(t, txs...)

		for _, err := range f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-01-01", "2026-03-31")) {
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			break
		}

		if calls := f.broker.TransactionCalls.Load(); calls != 1 {
			t.Errorf("Expected 1 transaction request, got %d", calls)
		}
	})
}

func TestFetcher_Errors(t *testing.T) {
	t.Run("rejected token is refreshed once", func(t *testing.T) {
		// Setup
		f := setup(t, testutil.DividendTx("2026-02-15", testutil.ISINApple, "12.34", "1.85", "10.49"))
		f.broker.RejectNextBanking(1)

		// Execute
		got, err := collect(t, f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-02-01", "2026-02-28")))

		// Assert
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(got) != 1 || payloadValues(t, got[0]) != 1 {
			t.Errorf("Expected the statement after refresh, got %d", len(got))
		}
		if f.broker.RefreshGrants.Load() != 1 {
			t.Errorf("Expected 1 refresh grant, got %d", f.broker.RefreshGrants.Load())
		}
	})

	t.Run("second rejection ends the session", func(t *testing.T) {
		f := setup(t)
		f.broker.RejectNextBanking(2)

		_, err := collect(t, f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-02-01", "2026-02-28")))

		if !errors.Is(err, apperrors.ErrSessionExpired) {
			t.Errorf("error = %v, want SessionExpired", err)
		}
		var fe *apperrors.FetchError
		if !errors.As(err, &fe) || fe.Account != string(ref) {
			t.Errorf("error does not name the account: %v", err)
		}
	})

	t.Run("expired session is not used", func(t *testing.T) {
		f := setup(t)
		stale := &model.Session{AccountRef: ref, AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute)}

		_, err := collect(t, f.fetcher.Fetch(testutil.Context(t), ref, stale, rng(t, "2026-02-01", "2026-02-28")))

		if !errors.Is(err, apperrors.ErrSessionExpired) {
			t.Errorf("error = %v, want SessionExpired", err)
		}
		if f.broker.BalanceCalls.Load() != 0 {
			t.Error("expired session reached the broker")
		}
	})

	t.Run("reversed range", func(t *testing.T) {
		f := setup(t)

		_, err := collect(t, f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-03-01", "2026-02-01")))

		if !errors.Is(err, apperrors.ErrBadRequest) || !errors.Is(err, apperrors.ErrInvalidDateRange) {
			t.Errorf("error = %v, want BadRequest for invalid range", err)
		}
	})

	t.Run("broker unavailable", func(t *testing.T) {
		f := setup(t)
		f.broker.FailNext(10)

		_, err := collect(t, f.fetcher.Fetch(testutil.Context(t), ref, f.session, rng(t, "2026-02-01", "2026-02-28")))

		if !errors.Is(err, apperrors.ErrFetchUnreachable) {
			t.Errorf("error = %v, want Unreachable", err)
		}
	})

	t.Run("client error is a bad request", func(t *testing.T) {
		fetcher := statement.NewFetcher(
			func(model.AccountRef) statement.Banking {
				return &stubBanking{err: &comdirect.HTTPError{StatusCode: 422, Message: "invalid paging"}}
			},
			nil,
			zerolog.Nop(),
		)
		session := &model.Session{AccountRef: ref, AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}

		_, err := collect(t, fetcher.Fetch(context.Background(), ref, session, rng(t, "2026-02-01", "2026-02-28")))

		if !errors.Is(err, apperrors.ErrBadRequest) {
			t.Errorf("error = %v, want BadRequest", err)
		}
	})

	t.Run("rejection without refresher", func(t *testing.T) {
		fetcher := statement.NewFetcher(
			func(model.AccountRef) statement.Banking {
				return &stubBanking{err: &comdirect.HTTPError{StatusCode: 401}}
			},
			nil,
			zerolog.Nop(),
		)
		session := &model.Session{AccountRef: ref, AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}

		_, err := collect(t, fetcher.Fetch(context.Background(), ref, session, rng(t, "2026-02-01", "2026-02-28")))

		if !errors.Is(err, apperrors.ErrSessionExpired) {
			t.Errorf("error = %v, want SessionExpired", err)
		}
	})
}

type stubBanking struct {
	err error
}

func (s *stubBanking) SettlementAccountID(context.Context, string) (string, error) {
	return "acc-1", nil
}

func (s *stubBanking) Transactions(context.Context, string, string, time.Time, time.Time, int, int) (*comdirect.TransactionPage, error) {
	return nil, s.err
}

func TestDocumentID(t *testing.T) {
	got := statement.DocumentID("acc-1", time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC))
	if got != "acc-1-2026-02" {
		t.Errorf("DocumentID() = %s", got)
	}
}

// clockBanking advances a shared clock on every request and records requests
// made with a token that had already expired.
type clockBanking struct {
	clock   *time.Time
	step    time.Duration
	expiry  map[string]time.Time
	expired int
}

func (b *clockBanking) SettlementAccountID(_ context.Context, token string) (string, error) {
	b.check(token)
	return "acc-1", nil
}

func (b *clockBanking) Transactions(_ context.Context, token, _ string, _, _ time.Time, _, _ int) (*comdirect.TransactionPage, error) {
	b.check(token)
	*b.clock = b.clock.Add(b.step)
	return &comdirect.TransactionPage{}, nil
}

func (b *clockBanking) check(token string) {
	if !b.clock.Before(b.expiry[token]) {
		b.expired++
	}
}

// clockRefresher hands out a fresh ten-minute token on every refresh.
type clockRefresher struct {
	banking *clockBanking
	calls   int
}

func (r *clockRefresher) Refresh(_ context.Context, s *model.Session) (*model.Session, error) {
	r.calls++
	token := fmt.Sprintf("token-%d", r.calls)
	expires := r.banking.clock.Add(10 * time.Minute)
	r.banking.expiry[token] = expires
	return &model.Session{AccountRef: s.AccountRef, AccessToken: token, ExpiresAt: expires}, nil
}

func TestFetcher_TokenExpiresDuringFetch(t *testing.T) {
	t.Run("renews the session before the token lapses", func(t *testing.T) {
		// Setup
		clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
		banking := &clockBanking{
			clock:  &clock,
			step:   5 * time.Minute,
			expiry: map[string]time.Time{"token-0": clock.Add(10 * time.Minute)},
		}
		refresher := &clockRefresher{banking: banking}
		fetcher := statement.NewFetcher(
			func(model.AccountRef) statement.Banking { return banking },
			refresher,
			zerolog.Nop(),
		).WithClock(func() time.Time { return clock })
		session := &model.Session{AccountRef: ref, AccessToken: "token-0", ExpiresAt: banking.expiry["token-0"]}

		// Execute
		statements, err := collect(t, fetcher.Fetch(testutil.Context(t), ref, session, rng(t, "2025-01-01", "2025-12-31")))

		// Assert
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(statements) != 12 {
			t.Errorf("Expected 12 statements, got %d", len(statements))
		}
		if banking.expired != 0 {
			t.Errorf("Expected no request with an expired token, got %d", banking.expired)
		}
		if refresher.calls == 0 {
			t.Error("Expected the session to be refreshed")
		}
	})

	t.Run("fails without a refresher", func(t *testing.T) {
		// Setup
		clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
		banking := &clockBanking{
			clock:  &clock,
			step:   5 * time.Minute,
			expiry: map[string]time.Time{"token-0": clock.Add(10 * time.Minute)},
		}
		fetcher := statement.NewFetcher(
			func(model.AccountRef) statement.Banking { return banking },
			nil,
			zerolog.Nop(),
		).WithClock(func() time.Time { return clock })
		session := &model.Session{AccountRef: ref, AccessToken: "token-0", ExpiresAt: banking.expiry["token-0"]}

		// Execute
		statements, err := collect(t, fetcher.Fetch(testutil.Context(t), ref, session, rng(t, "2025-01-01", "2025-12-31")))

		// Assert
		if !errors.Is(err, apperrors.ErrSessionExpired) {
			t.Errorf("error = %v, want SessionExpired", err)
		}
		if banking.expired != 0 {
			t.Errorf("Expected no request with an expired token, got %d", banking.expired)
		}
		if len(statements) == 0 || len(statements) == 12 {
			t.Errorf("Expected the fetch to stop part way, got %d statements", len(statements))
		}
	})
}
