package statement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/comdirect"
	"github.com/ndewijer/depotsync/internal/model"
)

// DefaultPageSize is the number of transactions requested per page.
const DefaultPageSize = 500

// Banking is the part of the brokerage API the fetcher reads statements from.
type Banking interface {
	SettlementAccountID(ctx context.Context, token string) (string, error)
	Transactions(ctx context.Context, token, accountID string, from, to time.Time, first, count int) (*comdirect.TransactionPage, error)
}

// Refresher renews a session whose token the broker no longer accepts.
type Refresher interface {
	Refresh(ctx context.Context, s *model.Session) (*model.Session, error)
}

// Payload is the statement document format: the booked transactions of one
// account for one calendar month, as returned by the broker.
type Payload struct {
	AccountID string            `json:"accountId"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Values    []json.RawMessage `json:"values"`
}

// Fetcher retrieves raw statements, one per calendar month.
type Fetcher struct {
	banking   func(model.AccountRef) Banking
	refresher Refresher
	pageSize  int
	log       zerolog.Logger
	now       func() time.Time
}

// NewFetcher creates a fetcher. refresher may be nil, in which case a 401
// fails the fetch immediately.
func NewFetcher(banking func(model.AccountRef) Banking, refresher Refresher, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		banking:   banking,
		refresher: refresher,
		pageSize:  DefaultPageSize,
		log:       log.With().Str("component", "fetcher").Logger(),
		now:       time.Now,
	}
}

// WithPageSize overrides the page size.
func (f *Fetcher) WithPageSize(n int) *Fetcher {
	if n > 0 {
		f.pageSize = n
	}
	return f
}

// WithClock replaces the clock used for token expiry and fetch timestamps.
func (f *Fetcher) WithClock(now func() time.Time) *Fetcher {
	f.now = now
	return f
}

// DocumentID returns the stable document id of an account month.
func DocumentID(accountID string, month time.Time) string {
	return fmt.Sprintf("%s-%s", accountID, month.Format("2006-01"))
}

// Fetch yields the statements of the account overlapping r in ascending period
// order. Nothing is requested until the sequence is iterated, and iterating
// again repeats the requests. The first error ends the sequence.
func (f *Fetcher) Fetch(ctx context.Context, ref model.AccountRef, session *model.Session, r model.DateRange) iter.Seq2[model.RawStatement, error] {
	return func(yield func(model.RawStatement, error) bool) {
		if session.Expired(f.now()) {
			yield(model.RawStatement{}, apperrors.NewFetchError(apperrors.ErrSessionExpired, string(ref), nil))
			return
		}
		if !r.Valid() {
			yield(model.RawStatement{}, apperrors.NewFetchError(apperrors.ErrBadRequest, string(ref), apperrors.ErrInvalidDateRange))
			return
		}

		st := &fetchState{ref: ref, session: session, banking: f.banking(ref)}

		accountID, err := call(ctx, f, st, func(token string) (string, error) {
			return st.banking.SettlementAccountID(ctx, token)
		})
		if err != nil {
			yield(model.RawStatement{}, err)
			return
		}

		for _, month := range r.Months() {
			stmt, err := f.fetchMonth(ctx, st, accountID, month)
			if err != nil {
				yield(model.RawStatement{}, err)
				return
			}
			if !yield(stmt, nil) {
				return
			}
		}
	}
}

type fetchState struct {
	ref     model.AccountRef
	session *model.Session
	banking Banking
}

func (f *Fetcher) fetchMonth(ctx context.Context, st *fetchState, accountID string, month model.DateRange) (model.RawStatement, error) {
	values := []json.RawMessage{}
	first := 0

	for {
		page, err := call(ctx, f, st, func(token string) (*comdirect.TransactionPage, error) {
			return st.banking.Transactions(ctx, token, accountID, month.From, month.To, first, f.pageSize)
		})
		if err != nil {
			return model.RawStatement{}, err
		}

		values = append(values, page.Values...)
		first += len(page.Values)
		if len(page.Values) == 0 || first >= page.Paging.Matches {
			break
		}
	}

	payload, err := json.Marshal(Payload{
		AccountID: accountID,
		From:      month.From.Format(model.DateLayout),
		To:        month.To.Format(model.DateLayout),
		Values:    values,
	})
	if err != nil {
		return model.RawStatement{}, apperrors.NewFetchError(apperrors.ErrBadRequest, string(st.ref), err)
	}

	f.log.Debug().
		Str("account", string(st.ref)).
		Str("period", month.String()).
		Int("transactions", len(values)).
		Msg("Fetched statement")

	return model.RawStatement{
		AccountRef:  st.ref,
		DocumentID:  DocumentID(accountID, month.From),
		PeriodStart: month.From,
		PeriodEnd:   month.To,
		Payload:     payload,
		FetchedAt:   f.now().UTC(),
	}, nil
}

// call runs op with the current access token. A token past its expiry is
// renewed before op runs. A 401 triggers one session refresh and a retry; a
// second 401 means the session is gone.
func call[T any](ctx context.Context, f *Fetcher, st *fetchState, op func(token string) (T, error)) (T, error) {
	var zero T

	if st.session.Expired(f.now()) {
		if f.refresher == nil {
			return zero, apperrors.NewFetchError(apperrors.ErrSessionExpired, string(st.ref), nil)
		}
		f.log.Debug().Str("account", string(st.ref)).Msg("Access token expired, refreshing session")
		if err := f.refresh(ctx, st); err != nil {
			return zero, err
		}
	}

	result, err := op(st.session.AccessToken)
	if err == nil {
		return result, nil
	}
	if !comdirect.IsStatus(err, 401) {
		return zero, classify(st.ref, err)
	}
	if f.refresher == nil {
		return zero, apperrors.NewFetchError(apperrors.ErrSessionExpired, string(st.ref), err)
	}

	f.log.Info().Str("account", string(st.ref)).Msg("Access token rejected, refreshing session")
	if err := f.refresh(ctx, st); err != nil {
		return zero, err
	}

	result, err = op(st.session.AccessToken)
	if err == nil {
		return result, nil
	}
	if comdirect.IsStatus(err, 401) {
		return zero, apperrors.NewFetchError(apperrors.ErrSessionExpired, string(st.ref), err)
	}
	return zero, classify(st.ref, err)
}

func (f *Fetcher) refresh(ctx context.Context, st *fetchState) error {
	refreshed, err := f.refresher.Refresh(ctx, st.session)
	if err != nil {
		return apperrors.NewFetchError(apperrors.ErrSessionExpired, string(st.ref), err)
	}
	st.session = refreshed
	return nil
}

func classify(ref model.AccountRef, err error) error {
	switch {
	case comdirect.IsClientError(err):
		return apperrors.NewFetchError(apperrors.ErrBadRequest, string(ref), err)
	case errors.Is(err, comdirect.ErrUnreachable):
		return apperrors.NewFetchError(apperrors.ErrFetchUnreachable, string(ref), err)
	default:
		return apperrors.NewFetchError(apperrors.ErrFetchUnreachable, string(ref), err)
	}
}
