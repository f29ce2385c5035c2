package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
)

// SessionProvider hands out usable sessions.
type SessionProvider interface {
	Valid(ctx context.Context, ref model.AccountRef) (*model.Session, error)
}

// StatementFetcher retrieves raw statements from the broker.
type StatementFetcher interface {
	Fetch(ctx context.Context, ref model.AccountRef, session *model.Session, r model.DateRange) iter.Seq2[model.RawStatement, error]
}

// StatementArchive keeps raw statements for replay.
type StatementArchive interface {
	Save(s model.RawStatement) error
	Replay(ref model.AccountRef, r model.DateRange) iter.Seq2[model.RawStatement, error]
}

// StatementParser extracts dividend events from a statement.
type StatementParser interface {
	Parse(raw model.RawStatement) ([]model.DividendEvent, error)
}

// DividendStore records dividend events idempotently.
type DividendStore interface {
	InsertIfNew(ctx context.Context, e model.DividendEvent) (model.InsertResult, error)
}

// RunStore keeps run summaries.
type RunStore interface {
	Save(ctx context.Context, s model.RunSummary) error
	Latest(ctx context.Context) (model.RunSummary, error)
}

// IngestionOptions controls a run.
type IngestionOptions struct {
	LookbackDays  int
	UseStoredData bool
	Concurrency   int
}

// IngestionService drives authenticate, fetch, parse and store for every
// configured account. A failing account never stops the others.
type IngestionService struct {
	accounts  []model.AccountRef
	sessions  SessionProvider
	fetcher   StatementFetcher
	archive   StatementArchive
	parser    StatementParser
	dividends DividendStore
	runs      RunStore
	opts      IngestionOptions
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// NewIngestionService creates a new IngestionService. archive and runs may be nil.
func NewIngestionService(
	accounts []model.AccountRef,
	sessions SessionProvider,
	fetcher StatementFetcher,
	archive StatementArchive,
	parser StatementParser,
	dividends DividendStore,
	runs RunStore,
	opts IngestionOptions,
	log zerolog.Logger,
) *IngestionService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &IngestionService{
		accounts:  accounts,
		sessions:  sessions,
		fetcher:   fetcher,
		archive:   archive,
		parser:    parser,
		dividends: dividends,
		runs:      runs,
		opts:      opts,
		log:       log.With().Str("service", "ingestion").Logger(),
		now:       time.Now,
	}
}

// Run ingests the lookback window for all accounts.
func (s *IngestionService) Run(ctx context.Context) model.RunSummary {
	return s.RunRange(ctx, model.LookbackRange(s.now(), s.opts.LookbackDays))
}

// TryRun is Run, refused while another run is active.
func (s *IngestionService) TryRun(ctx context.Context) (model.RunSummary, error) {
	if !s.acquire() {
		return model.RunSummary{}, apperrors.ErrIngestionInProgress
	}
	defer s.release()
	return s.Run(ctx), nil
}

// Running reports whether a run guarded by TryRun is active.
func (s *IngestionService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *IngestionService) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *IngestionService) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// TryRunRange ingests r for one account, or for all accounts when account is
// empty. A zero range means the lookback window. Refused while another run is active.
func (s *IngestionService) TryRunRange(ctx context.Context, account model.AccountRef, r model.DateRange) (model.RunSummary, error) {
	if r.IsZero() {
		r = model.LookbackRange(s.now(), s.opts.LookbackDays)
	}
	if !r.Valid() {
		return model.RunSummary{}, apperrors.ErrInvalidDateRange
	}

	accounts := s.accounts
	if account != "" {
		if !slices.Contains(s.accounts, account) {
			return model.RunSummary{}, fmt.Errorf("%w: %s", apperrors.ErrAccountNotFound, account)
		}
		accounts = []model.AccountRef{account}
	}

	if !s.acquire() {
		return model.RunSummary{}, apperrors.ErrIngestionInProgress
	}
	defer s.release()
	return s.run(ctx, accounts, r), nil
}

// RunRange ingests the given range for all accounts.
func (s *IngestionService) RunRange(ctx context.Context, r model.DateRange) model.RunSummary {
	return s.run(ctx, s.accounts, r)
}

// run processes accounts with the configured concurrency; the summary lists
// them in the given order.
func (s *IngestionService) run(ctx context.Context, accounts []model.AccountRef, r model.DateRange) model.RunSummary {
	summary := model.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: s.now().UTC(),
		Range:     r,
		Accounts:  make([]model.AccountSummary, len(accounts)),
	}

	s.log.Info().
		Str("run", summary.RunID).
		Str("range", r.String()).
		Int("accounts", len(accounts)).
		Bool("storedData", s.opts.UseStoredData).
		Msg("Ingestion started")

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, ref := range accounts {
		g.Go(func() error {
			summary.Accounts[i] = s.ingestAccount(ctx, ref, r)
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = s.now().UTC()
	s.record(summary)
	return summary
}

// LastRun returns the most recently recorded run.
func (s *IngestionService) LastRun(ctx context.Context) (model.RunSummary, error) {
	if s.runs == nil {
		return model.RunSummary{}, apperrors.ErrNoIngestionRun
	}
	return s.runs.Latest(ctx)
}

func (s *IngestionService) record(summary model.RunSummary) {
	totals := summary.Totals()
	event := s.log.Info()
	if summary.Failed() {
		event = s.log.Error()
	}
	event.
		Str("run", summary.RunID).
		Int("fetched", totals.Fetched).
		Int("parsed", totals.Parsed).
		Int("inserted", totals.Inserted).
		Int("duplicate", totals.Duplicate).
		Int("failed", totals.Failed).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Ingestion finished")

	if s.runs == nil {
		return
	}
	// The run outcome is kept even when the caller's context is already done.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.Save(ctx, summary); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record ingestion run")
	}
}

func (s *IngestionService) ingestAccount(ctx context.Context, ref model.AccountRef, r model.DateRange) model.AccountSummary {
	summary := model.AccountSummary{Account: ref}
	log := s.log.With().Str("account", string(ref)).Logger()

	statements, err := s.statements(ctx, ref, r)
	if err != nil {
		fail(&summary, err)
		log.Error().Err(err).Str("reason", summary.Reason).Msg("Account skipped")
		return summary
	}

	for stmt, err := range statements {
		if err != nil {
			fail(&summary, err)
			log.Error().Err(err).Str("reason", summary.Reason).Msg("Statement retrieval failed")
			break
		}
		summary.Fetched++

		if !s.opts.UseStoredData && s.archive != nil {
			if err := s.archive.Save(stmt); err != nil {
				log.Warn().Err(err).Str("document", stmt.DocumentID).Msg("Failed to archive statement")
			}
		}

		events, err := s.parser.Parse(stmt)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, err.Error())
			log.Warn().Err(err).Str("document", stmt.DocumentID).Msg("Statement not parsed")
			continue
		}
		summary.Parsed += len(events)

		for _, e := range events {
			result, err := s.dividends.InsertIfNew(ctx, e)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, err.Error())
				log.Error().Err(err).Str("document", stmt.DocumentID).Msg("Dividend not stored")
				continue
			}
			switch result {
			case model.Inserted:
				summary.Inserted++
			case model.Duplicate:
				summary.Duplicate++
			}
		}
	}

	log.Info().
		Int("fetched", summary.Fetched).
		Int("inserted", summary.Inserted).
		Int("duplicate", summary.Duplicate).
		Int("failed", summary.Failed).
		Msg("Account ingested")
	return summary
}

func (s *IngestionService) statements(ctx context.Context, ref model.AccountRef, r model.DateRange) (iter.Seq2[model.RawStatement, error], error) {
	if s.opts.UseStoredData {
		if s.archive == nil {
			return nil, errors.New("stored data requested without an archive")
		}
		return s.archive.Replay(ref, r), nil
	}

	session, err := s.sessions.Valid(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.fetcher.Fetch(ctx, ref, session, r), nil
}

func fail(summary *model.AccountSummary, err error) {
	summary.Failed++
	summary.Reason = apperrors.Reason(err)
	summary.Errors = append(summary.Errors, err.Error())
}
