package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/depotsync/internal/config"
)

// Credentials accepted by FakeBroker for every user.
const (
	FakeClientID     = "test-client"
	FakeClientSecret = "test-secret"
)

// FakeUser is a broker login with its settlement account and booked transactions.
type FakeUser struct {
	Username     string
	Password     string
	AccountID    string
	Transactions []Tx
}

// FakeBroker is a scripted comdirect API on httptest. It implements the
// OAuth grants, the session and challenge endpoints and the banking
// endpoints the application uses.
//
// Example usage:
//
//	broker := testutil.NewFakeBroker(t)
//	broker.AddUser(testutil.FakeUser{Username: "alice", Password: "pw", AccountID: "acc-1"})
//	client := testutil.NewTestComdirectClient(t, broker.URL())
type FakeBroker struct {
	Server *httptest.Server

	mu         sync.Mutex
	users      map[string]*FakeUser
	tokens     map[string]*fakeToken
	refresh    map[string]string
	challenges map[string]*fakeChallenge
	seq        int

	statuses       []string
	expiresIn      int
	refreshExpired bool
	challengeIDs   []string

	unauthorized atomic.Int32
	unavailable  atomic.Int32

	PasswordGrants   atomic.Int32
	SecondaryGrants  atomic.Int32
	RefreshGrants    atomic.Int32
	ChallengesIssued atomic.Int32
	Polls            atomic.Int32
	BalanceCalls     atomic.Int32
	TransactionCalls atomic.Int32
	Revocations      atomic.Int32

	lastRequestInfo atomic.Value
}

type fakeToken struct {
	user      string
	secondary bool
	activated bool
}

type fakeChallenge struct {
	user  string
	polls int
}

// NewFakeBroker starts a fake broker that is shut down with the test.
func NewFakeBroker(t *testing.T) *FakeBroker {
	t.Helper()

	b := &FakeBroker{
		users:      make(map[string]*FakeUser),
		tokens:     make(map[string]*fakeToken),
		refresh:    make(map[string]string),
		challenges: make(map[string]*fakeChallenge),
		statuses:   []string{"PENDING", "AUTHENTICATED"},
		expiresIn:  600,
	}

	r := chi.NewRouter()
	r.Use(b.record)
	r.Post("/oauth/token", b.token)
	r.Delete("/oauth/revoke", b.revoke)
	r.Get("/api/session/clients/user/v1/sessions", b.sessions)
	r.Post("/api/session/clients/user/v1/sessions/{id}/validate", b.validate)
	r.Patch("/api/session/clients/user/v1/sessions/{id}", b.activate)
	r.Get("/api/session/v1/authentications/{id}", b.poll)
	r.Get("/api/banking/clients/user/v1/accounts/balances", b.balances)
	r.Get("/api/banking/v1/accounts/{accountId}/transactions", b.transactions)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the base URL of the fake.
func (b *FakeBroker) URL() string {
	return b.Server.URL
}

// AddUser registers a login. Password defaults to "secret", AccountID to
// "acc-<username>".
func (b *FakeBroker) AddUser(u FakeUser) *FakeBroker {
	if u.Password == "" {
		u.Password = "secret"
	}
	if u.AccountID == "" {
		u.AccountID = "acc-" + u.Username
	}
	b.mu.Lock()
	b.users[u.Username] = &u
	b.mu.Unlock()
	return b
}

// AddTransactions appends booked lines to the user's settlement account.
func (b *FakeBroker) AddTransactions(username string, txs ...Tx) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.users[username]
	u.Transactions = append(u.Transactions, txs...)
}

// Account returns a configured account logging in as username.
func (b *FakeBroker) Account(name, username string) config.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	pw := ""
	if u, ok := b.users[username]; ok {
		pw = u.Password
	}
	return config.Account{
		Name:         name,
		Username:     username,
		Password:     pw,
		ClientID:     FakeClientID,
		ClientSecret: FakeClientSecret,
	}
}

// SetChallengeStatuses sets the sequence reported when a challenge is polled.
// The last entry repeats. Defaults to PENDING then AUTHENTICATED.
func (b *FakeBroker) SetChallengeStatuses(statuses ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = statuses
}

// SetExpiresIn sets the lifetime in seconds of banking tokens issued from now on.
func (b *FakeBroker) SetExpiresIn(seconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiresIn = seconds
}

// SetRefreshExpired makes every refresh grant fail with 400 invalid_grant.
func (b *FakeBroker) SetRefreshExpired(expired bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshExpired = expired
}

// SetChallengeIDs hands out the given ids in order instead of generated ones.
func (b *FakeBroker) SetChallengeIDs(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.challengeIDs = ids
}

// RejectNextBanking answers the next n banking requests with 401.
func (b *FakeBroker) RejectNextBanking(n int) {
	b.unauthorized.Store(int32(n))
}

// FailNext answers the next n requests of any kind with 503.
func (b *FakeBroker) FailNext(n int) {
	b.unavailable.Store(int32(n))
}

// ExpireTokens forgets every issued access token so banking calls get 401.
func (b *FakeBroker) ExpireTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]*fakeToken)
}

// LastRequestInfo returns the x-http-request-info header of the latest request.
func (b *FakeBroker) LastRequestInfo() string {
	v, _ := b.lastRequestInfo.Load().(string)
	return v
}

func (b *FakeBroker) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.lastRequestInfo.Store(r.Header.Get("x-http-request-info"))
		if b.unavailable.Load() > 0 && b.unavailable.Add(-1) >= 0 {
			writeFakeError(w, http.StatusServiceUnavailable, "unavailable", "try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *FakeBroker) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeFakeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("client_id") != FakeClientID || r.PostForm.Get("client_secret") != FakeClientSecret {
		writeFakeError(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "password":
		b.PasswordGrants.Add(1)
		u, ok := b.users[r.PostForm.Get("username")]
		if !ok || u.Password != r.PostForm.Get("password") {
			writeFakeError(w, http.StatusUnauthorized, "invalid_grant", "bad credentials")
			return
		}
		access := b.nextID("pre")
		b.tokens[access] = &fakeToken{user: u.Username}
		writeFakeJSON(w, http.StatusOK, map[string]any{
			"access_token": access, "token_type": "bearer", "expires_in": 599, "scope": "TWO_FACTOR",
		})

	case "cd_secondary":
		b.SecondaryGrants.Add(1)
		pre, ok := b.tokens[r.PostForm.Get("token")]
		if !ok || !pre.activated {
			writeFakeError(w, http.StatusUnauthorized, "invalid_token", "session not activated")
			return
		}
		writeFakeJSON(w, http.StatusOK, b.issue(pre.user))

	case "refresh_token":
		b.RefreshGrants.Add(1)
		user, ok := b.refresh[r.PostForm.Get("refresh_token")]
		if !ok || b.refreshExpired {
			writeFakeError(w, http.StatusBadRequest, "invalid_grant", "refresh token expired")
			return
		}
		delete(b.refresh, r.PostForm.Get("refresh_token"))
		writeFakeJSON(w, http.StatusOK, b.issue(user))

	default:
		writeFakeError(w, http.StatusBadRequest, "unsupported_grant_type", r.PostForm.Get("grant_type"))
	}
}

// issue hands out a full banking token pair. Callers hold b.mu.
func (b *FakeBroker) issue(user string) map[string]any {
	access := b.nextID("access")
	refresh := b.nextID("refresh")
	b.tokens[access] = &fakeToken{user: user, secondary: true}
	b.refresh[refresh] = user
	return map[string]any{
		"access_token": access, "refresh_token": refresh, "token_type": "bearer",
		"expires_in": b.expiresIn, "scope": "BANKING_RO",
	}
}

func (b *FakeBroker) revoke(w http.ResponseWriter, r *http.Request) {
	b.Revocations.Add(1)
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBroker) sessions(w http.ResponseWriter, r *http.Request) {
	tok, ok := b.bearer(r)
	if !ok {
		writeFakeError(w, http.StatusUnauthorized, "invalid_token", "unknown token")
		return
	}
	writeFakeJSON(w, http.StatusOK, []map[string]any{
		{"identifier": "session-" + tok.user, "sessionTanActive": false, "activated2FA": false},
	})
}

func (b *FakeBroker) validate(w http.ResponseWriter, r *http.Request) {
	tok, ok := b.bearer(r)
	if !ok {
		writeFakeError(w, http.StatusUnauthorized, "invalid_token", "unknown token")
		return
	}
	b.ChallengesIssued.Add(1)

	b.mu.Lock()
	var id string
	if len(b.challengeIDs) > 0 {
		id, b.challengeIDs = b.challengeIDs[0], b.challengeIDs[1:]
	} else {
		id = b.nextID("challenge")
	}
	b.challenges[id] = &fakeChallenge{user: tok.user}
	b.mu.Unlock()

	info, _ := json.Marshal(map[string]any{
		"id":             id,
		"typ":            "P_TAN_PUSH",
		"availableTypes": []string{"P_TAN_PUSH", "P_TAN"},
		"link":           map[string]string{"href": "/api/session/v1/authentications/" + id, "rel": "status", "method": "GET"},
	})
	w.Header().Set("x-once-authentication-info", string(info))
	writeFakeJSON(w, http.StatusCreated, map[string]any{
		"identifier": chi.URLParam(r, "id"), "sessionTanActive": true, "activated2FA": true,
	})
}

func (b *FakeBroker) poll(w http.ResponseWriter, r *http.Request) {
	b.Polls.Add(1)
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	ch, ok := b.challenges[id]
	var status string
	if ok {
		i := min(ch.polls, len(b.statuses)-1)
		status = b.statuses[i]
		ch.polls++
	}
	b.mu.Unlock()

	if !ok {
		writeFakeError(w, http.StatusNotFound, "not_found", "unknown challenge")
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]string{"authenticationId": id, "status": status})
}

func (b *FakeBroker) activate(w http.ResponseWriter, r *http.Request) {
	var header struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(r.Header.Get("x-once-authentication-info")), &header); err != nil {
		writeFakeError(w, http.StatusBadRequest, "invalid_header", "missing challenge id")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tok, ok := b.tokens[bearerToken(r)]
	ch, found := b.challenges[header.ID]
	if !ok || !found || ch.user != tok.user {
		writeFakeError(w, http.StatusUnprocessableEntity, "invalid_challenge", "challenge does not match session")
		return
	}
	tok.activated = true
	delete(b.challenges, header.ID)
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"identifier": chi.URLParam(r, "id"), "sessionTanActive": true, "activated2FA": true,
	})
}

func (b *FakeBroker) balances(w http.ResponseWriter, r *http.Request) {
	b.BalanceCalls.Add(1)
	u, ok := b.bankingUser(w, r)
	if !ok {
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"paging": map[string]int{"index": 0, "matches": 2},
		"values": []map[string]any{
			{
				"accountId": "depot-" + u.Username,
				"account": map[string]any{
					"accountId":   "depot-" + u.Username,
					"accountType": map[string]string{"key": "DEPOT", "text": "Depot"},
				},
			},
			{
				"accountId": u.AccountID,
				"account": map[string]any{
					"accountId":   u.AccountID,
					"accountType": map[string]string{"key": "CA", "text": "Girokonto"},
				},
			},
		},
	})
}

func (b *FakeBroker) transactions(w http.ResponseWriter, r *http.Request) {
	b.TransactionCalls.Add(1)
	u, ok := b.bankingUser(w, r)
	if !ok {
		return
	}
	if chi.URLParam(r, "accountId") != u.AccountID {
		writeFakeError(w, http.StatusNotFound, "not_found", "unknown account")
		return
	}

	q := r.URL.Query()
	from, to := q.Get("min-bookingDate"), q.Get("max-bookingDate")
	first, _ := strconv.Atoi(q.Get("paging-first"))
	count, err := strconv.Atoi(q.Get("paging-count"))
	if err != nil || count <= 0 {
		count = 20
	}

	b.mu.Lock()
	var matched []json.RawMessage
	for _, tx := range u.Transactions {
		if (from == "" || tx.BookingDate >= from) && (to == "" || tx.BookingDate <= to) {
			matched = append(matched, tx.JSON())
		}
	}
	b.mu.Unlock()

	page := []json.RawMessage{}
	if first < len(matched) {
		page = matched[first:min(first+count, len(matched))]
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"paging": map[string]int{"index": first, "matches": len(matched)},
		"values": page,
	})
}

func (b *FakeBroker) bankingUser(w http.ResponseWriter, r *http.Request) (*FakeUser, bool) {
	if b.unauthorized.Load() > 0 && b.unauthorized.Add(-1) >= 0 {
		writeFakeError(w, http.StatusUnauthorized, "invalid_token", "token expired")
		return nil, false
	}
	tok, ok := b.bearer(r)
	if !ok || !tok.secondary {
		writeFakeError(w, http.StatusUnauthorized, "invalid_token", "unknown token")
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.users[tok.user], true
}

func (b *FakeBroker) bearer(r *http.Request) (fakeToken, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok, ok := b.tokens[bearerToken(r)]
	if !ok {
		return fakeToken{}, false
	}
	return *tok, true
}

// nextID returns a unique id. Callers hold b.mu.
func (b *FakeBroker) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%d", prefix, b.seq)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeFakeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFakeError(w http.ResponseWriter, status int, code, message string) {
	writeFakeJSON(w, status, map[string]string{"error": code, "error_description": message})
}
