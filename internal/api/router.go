package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/api/handlers"
	custommiddleware "github.com/ndewijer/depotsync/internal/api/middleware"
	"github.com/ndewijer/depotsync/internal/config"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	dividendService *service.DividendService,
	ingestor handlers.Ingestor,
	cfg *config.Config,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	accounts := make([]model.AccountRef, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts = append(accounts, a.Ref())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
		})

		r.Route("/dividend", func(r chi.Router) {
			dividendHandler := handlers.NewDividendHandler(dividendService, accounts)
			r.Get("/", dividendHandler.Dividends)
			r.Get("/totals", dividendHandler.Totals)
			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Get("/", dividendHandler.GetDividend)
			})
		})

		r.Route("/ingest", func(r chi.Router) {
			ingestHandler := handlers.NewIngestHandler(ingestor, accounts)
			r.Post("/", ingestHandler.Run)
			r.Get("/last", ingestHandler.LastRun)
		})
	})

	return r
}
