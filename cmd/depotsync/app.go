package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/auth"
	"github.com/ndewijer/depotsync/internal/comdirect"
	"github.com/ndewijer/depotsync/internal/config"
	"github.com/ndewijer/depotsync/internal/database"
	"github.com/ndewijer/depotsync/internal/logging"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/parser"
	"github.com/ndewijer/depotsync/internal/repository"
	"github.com/ndewijer/depotsync/internal/service"
	"github.com/ndewijer/depotsync/internal/statement"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	db        *sql.DB
	system    *service.SystemService
	dividends *service.DividendService
	ingestion *service.IngestionService
}

// loadConfig reads the configuration from the environment and .env.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newApp opens and migrates the database and wires the ingestion pipeline
// for cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pretty := cfg.Log.Pretty || isatty.IsTerminal(os.Stderr.Fd())
	log := logging.New(cfg.Log.Level, pretty, os.Stderr)
	zerolog.DefaultContextLogger = &log

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(ctx, db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info().Str("path", cfg.Database.Path).Msg("Connected to database")

	// Broker clients and session management
	pool := comdirect.NewPool(cfg.Broker.BaseURL, log,
		comdirect.WithHTTPClient(&http.Client{Timeout: cfg.Broker.RequestTimeout}),
	)
	sessions := auth.NewSessionManager(
		cfg.Accounts,
		func(ref model.AccountRef) auth.Broker { return pool.Client(ref) },
		auth.NewSessionCache(),
		auth.PrompterFunc(announceChallenge),
		auth.Options{PollInterval: cfg.Broker.TANPollInterval, ChallengeTimeout: cfg.Broker.TANTimeout},
		log,
	)

	// Statements
	fetcher := statement.NewFetcher(
		func(ref model.AccountRef) statement.Banking { return pool.Client(ref) },
		sessions,
		log,
	)
	archive, err := statement.NewArchive(cfg.Ingest.DataDir, cfg.Ingest.ArchiveKey, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open statement archive: %w", err)
	}
	log.Info().Str("dir", cfg.Ingest.DataDir).Bool("encrypted", archive.Encrypted()).Msg("Statement archive ready")

	// Create repositories
	dividendRepo := repository.NewDividendRepository(db, log)
	runRepo := repository.NewIngestionRunRepository(db)

	// Create services
	ingestion := service.NewIngestionService(
		accountRefs(cfg.Accounts),
		sessions,
		fetcher,
		archive,
		parser.New(log),
		dividendRepo,
		runRepo,
		service.IngestionOptions{
			LookbackDays:  cfg.Ingest.LookbackDays,
			UseStoredData: cfg.Ingest.UseStoredData,
			Concurrency:   cfg.Ingest.Concurrency,
		},
		log,
	)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		system:    service.NewSystemService(db),
		dividends: service.NewDividendService(dividendRepo),
		ingestion: ingestion,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func accountRefs(accounts []config.Account) []model.AccountRef {
	refs := make([]model.AccountRef, 0, len(accounts))
	for _, a := range accounts {
		refs = append(refs, a.Ref())
	}
	return refs
}

func announceChallenge(ch model.Challenge) {
	fmt.Fprintf(os.Stderr, "[%s] Confirm the %s challenge %s in the comdirect app.\n", ch.AccountRef, ch.Type, ch.ID)
}
