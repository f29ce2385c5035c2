package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/auth"
	"github.com/ndewijer/depotsync/internal/comdirect"
	"github.com/ndewijer/depotsync/internal/config"
	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/repository"
	"github.com/ndewijer/depotsync/internal/service"
)

// FastRetryPolicy retries quickly so failure tests do not sleep.
func FastRetryPolicy() comdirect.RetryPolicy {
	return comdirect.RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

// FastAuthOptions polls challenges every few milliseconds.
func FastAuthOptions() auth.Options {
	return auth.Options{PollInterval: 5 * time.Millisecond, ChallengeTimeout: 2 * time.Second}
}

// NewTestComdirectPool creates a client pool against baseURL with fast retries.
func NewTestComdirectPool(t *testing.T, baseURL string) *comdirect.Pool {
	t.Helper()
	return comdirect.NewPool(baseURL, zerolog.Nop(), comdirect.WithRetryPolicy(FastRetryPolicy()))
}

// NewTestComdirectClient creates a single client against baseURL with fast retries.
func NewTestComdirectClient(t *testing.T, baseURL string, opts ...comdirect.Option) *comdirect.Client {
	t.Helper()
	opts = append([]comdirect.Option{comdirect.WithRetryPolicy(FastRetryPolicy())}, opts...)
	return comdirect.NewClient(baseURL, opts...)
}

// NewTestSessionManager wires a session manager to pool with fast challenge polling.
// Issued challenges are collected by the returned recorder.
func NewTestSessionManager(t *testing.T, pool *comdirect.Pool, accounts ...config.Account) (*auth.SessionManager, *ChallengeRecorder) {
	t.Helper()

	rec := &ChallengeRecorder{}
	m := auth.NewSessionManager(
		accounts,
		func(ref model.AccountRef) auth.Broker { return pool.Client(ref) },
		auth.NewSessionCache(),
		rec,
		FastAuthOptions(),
		zerolog.Nop(),
	)
	return m, rec
}

// ChallengeRecorder is a Prompter that remembers every issued challenge.
type ChallengeRecorder struct {
	mu         sync.Mutex
	challenges []model.Challenge
}

func (r *ChallengeRecorder) ChallengeIssued(ch model.Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges = append(r.challenges, ch)
}

// Challenges returns the challenges issued so far.
func (r *ChallengeRecorder) Challenges() []model.Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Challenge(nil), r.challenges...)
}

func NewTestDividendService(t *testing.T, db *sql.DB) *service.DividendService {
	t.Helper()

	dividendRepo := repository.NewDividendRepository(db, zerolog.Nop())

	return service.NewDividendService(
		dividendRepo,
	)
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()
	return service.NewSystemService(db)
}

// Context returns a context cancelled when the test ends.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// MakeID generates a unique ID for test data.
func MakeID() string {
	return uuid.New().String()
}

// MakeAccountRef generates a unique account reference.
//
// Example:
//
//	ref := testutil.MakeAccountRef("depot")  // "depot-a3f9c2"
func MakeAccountRef(base string) model.AccountRef {
	return model.AccountRef(fmt.Sprintf("%s-%s", base, randomAlphanumeric(6)))
}

// randomAlphanumeric generates a random lowercase alphanumeric string of given length.
func randomAlphanumeric(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))] //nolint:gosec // G404: Test data generation, crypto/rand not needed
	}
	return string(b)
}
