package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/comdirect"
	"github.com/ndewijer/depotsync/internal/config"
	"github.com/ndewijer/depotsync/internal/model"
)

// Broker is the part of the brokerage API the session manager drives.
type Broker interface {
	PasswordToken(ctx context.Context, clientID, clientSecret, username, password string) (*comdirect.TokenResponse, error)
	Sessions(ctx context.Context, token string) ([]comdirect.SessionInfo, error)
	ValidateSession(ctx context.Context, token string, s comdirect.SessionInfo) (*comdirect.AuthenticationInfo, error)
	AuthenticationStatus(ctx context.Context, token, pollPath string) (string, error)
	ActivateSession(ctx context.Context, token string, s comdirect.SessionInfo, challengeID string) error
	SecondaryToken(ctx context.Context, clientID, clientSecret, token string) (*comdirect.TokenResponse, error)
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*comdirect.TokenResponse, error)
	RevokeToken(ctx context.Context, token string) error
}

// Options tunes challenge polling.
type Options struct {
	PollInterval     time.Duration
	ChallengeTimeout time.Duration
}

// DefaultOptions polls every two seconds for up to two minutes.
func DefaultOptions() Options {
	return Options{PollInterval: 2 * time.Second, ChallengeTimeout: 120 * time.Second}
}

// SessionManager obtains and renews authenticated sessions. At most one
// handshake runs per account at a time; concurrent callers share its result.
type SessionManager struct {
	accounts map[model.AccountRef]config.Account
	brokers  func(model.AccountRef) Broker
	cache    *SessionCache
	prompter Prompter
	opts     Options
	log      zerolog.Logger
	now      func() time.Time

	flight singleflight.Group

	mu         sync.Mutex
	challenges map[model.AccountRef]model.Challenge
	spent      map[string]struct{}
}

// NewSessionManager creates a manager for the given accounts.
func NewSessionManager(
	accounts []config.Account,
	brokers func(model.AccountRef) Broker,
	cache *SessionCache,
	prompter Prompter,
	opts Options,
	log zerolog.Logger,
) *SessionManager {
	byRef := make(map[model.AccountRef]config.Account, len(accounts))
	for _, a := range accounts {
		byRef[a.Ref()] = a
	}
	if cache == nil {
		cache = NewSessionCache()
	}
	if prompter == nil {
		prompter = LogPrompter{Log: log}
	}
	return &SessionManager{
		accounts:   byRef,
		brokers:    brokers,
		cache:      cache,
		prompter:   prompter,
		opts:       opts,
		log:        log.With().Str("component", "auth").Logger(),
		now:        time.Now,
		challenges: make(map[model.AccountRef]model.Challenge),
		spent:      make(map[string]struct{}),
	}
}

// Acquire returns the cached session when it is still valid, otherwise runs a
// full handshake including a second-factor challenge.
func (m *SessionManager) Acquire(ctx context.Context, ref model.AccountRef) (*model.Session, error) {
	if s, ok := m.cache.Get(ref); ok && !s.Expired(m.now()) {
		return s, nil
	}
	return m.handshakeOnce(ctx, ref)
}

// Valid returns a usable session, refreshing an expired one before falling
// back to a full handshake.
func (m *SessionManager) Valid(ctx context.Context, ref model.AccountRef) (*model.Session, error) {
	s, ok := m.cache.Get(ref)
	if !ok {
		return m.handshakeOnce(ctx, ref)
	}
	if !s.Expired(m.now()) {
		return s, nil
	}
	return m.Refresh(ctx, s)
}

// Refresh renews the session with its refresh token. A missing, expired or
// rejected refresh token leads to a single full handshake.
func (m *SessionManager) Refresh(ctx context.Context, s *model.Session) (*model.Session, error) {
	ref := s.AccountRef
	acct, ok := m.accounts[ref]
	if !ok {
		return nil, apperrors.NewAuthError(apperrors.ErrInvalidCredentials, string(ref), apperrors.ErrAccountNotFound)
	}

	if s.RefreshToken == "" || s.RefreshExpired(m.now()) {
		m.log.Debug().Str("account", string(ref)).Msg("No usable refresh token, starting new handshake")
		m.cache.Delete(ref)
		return m.handshakeOnce(ctx, ref)
	}

	v, err, _ := m.flight.Do("refresh:"+string(ref), func() (any, error) {
		tok, err := m.brokers(ref).RefreshToken(ctx, acct.ClientID, acct.ClientSecret, s.RefreshToken)
		if err != nil {
			return nil, err
		}
		ns := m.newSession(ref, s.SessionID, tok)
		m.cache.Put(ns)
		return ns, nil
	})
	if err == nil {
		m.log.Debug().Str("account", string(ref)).Msg("Session refreshed")
		return v.(*model.Session), nil
	}

	if comdirect.IsClientError(err) {
		m.log.Info().Str("account", string(ref)).Err(err).Msg("Refresh token rejected, starting new handshake")
		m.cache.Delete(ref)
		return m.handshakeOnce(ctx, ref)
	}
	return nil, m.classify(ref, err, false)
}

// Invalidate drops the cached session and revokes its token on a best-effort basis.
func (m *SessionManager) Invalidate(ctx context.Context, ref model.AccountRef) {
	s, ok := m.cache.Get(ref)
	m.cache.Delete(ref)
	if !ok || m.brokers == nil {
		return
	}
	if err := m.brokers(ref).RevokeToken(ctx, s.AccessToken); err != nil {
		m.log.Debug().Str("account", string(ref)).Err(err).Msg("Token revocation failed")
	}
}

// Challenge returns the most recent challenge issued for the account.
func (m *SessionManager) Challenge(ref model.AccountRef) (model.Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[ref]
	return ch, ok
}

func (m *SessionManager) handshakeOnce(ctx context.Context, ref model.AccountRef) (*model.Session, error) {
	v, err, shared := m.flight.Do(string(ref), func() (any, error) {
		s, err := m.handshake(ctx, ref)
		if err != nil {
			return nil, err
		}
		m.cache.Put(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug().Str("account", string(ref)).Msg("Joined in-flight handshake")
	}
	s := *v.(*model.Session)
	return &s, nil
}

// handshake performs password grant, challenge, session activation and the
// secondary token exchange.
func (m *SessionManager) handshake(ctx context.Context, ref model.AccountRef) (*model.Session, error) {
	acct, ok := m.accounts[ref]
	if !ok {
		return nil, apperrors.NewAuthError(apperrors.ErrInvalidCredentials, string(ref), apperrors.ErrAccountNotFound)
	}
	broker := m.brokers(ref)
	log := m.log.With().Str("account", string(ref)).Logger()

	log.Info().Msg("Starting session handshake")

	pre, err := broker.PasswordToken(ctx, acct.ClientID, acct.ClientSecret, acct.Username, acct.Password)
	if err != nil {
		return nil, m.classify(ref, err, true)
	}

	sessions, err := broker.Sessions(ctx, pre.AccessToken)
	if err != nil {
		return nil, m.classify(ref, err, false)
	}
	if len(sessions) == 0 {
		return nil, apperrors.NewAuthError(apperrors.ErrAuthUnreachable, string(ref), errors.New("no banking session offered"))
	}
	session := sessions[0]

	info, err := broker.ValidateSession(ctx, pre.AccessToken, session)
	if err != nil {
		return nil, m.classify(ref, err, false)
	}

	ch := model.Challenge{
		ID:         info.ID,
		AccountRef: ref,
		Type:       info.Typ,
		PollURL:    info.PollPath(),
		CreatedAt:  m.now(),
		Status:     model.ChallengePending,
	}
	if err := m.register(ch); err != nil {
		return nil, err
	}
	m.prompter.ChallengeIssued(ch)

	if err := m.await(ctx, broker, pre.AccessToken, &ch); err != nil {
		return nil, err
	}
	log.Info().Str("challenge", ch.ID).Msg("Challenge confirmed")

	if err := broker.ActivateSession(ctx, pre.AccessToken, session, ch.ID); err != nil {
		return nil, m.classify(ref, err, false)
	}

	tok, err := broker.SecondaryToken(ctx, acct.ClientID, acct.ClientSecret, pre.AccessToken)
	if err != nil {
		return nil, m.classify(ref, err, false)
	}

	s := m.newSession(ref, session.Identifier, tok)
	log.Info().Time("expiresAt", s.ExpiresAt).Msg("Session established")
	return s, nil
}

// await polls the challenge until it reaches a terminal state, the challenge
// timeout elapses, or ctx is cancelled.
func (m *SessionManager) await(ctx context.Context, broker Broker, token string, ch *model.Challenge) error {
	ref := string(ch.AccountRef)
	waitCtx, cancel := context.WithTimeout(ctx, m.opts.ChallengeTimeout)
	defer cancel()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				m.finish(ch, model.ChallengeAbandoned)
				return apperrors.NewAuthError(apperrors.ErrChallengeAbandoned, ref, ctx.Err())
			}
			m.finish(ch, model.ChallengeExpired)
			return apperrors.NewAuthError(apperrors.ErrChallengeTimedOut, ref,
				fmt.Errorf("no confirmation within %s", m.opts.ChallengeTimeout))
		case <-ticker.C:
		}

		status, err := broker.AuthenticationStatus(waitCtx, token, ch.PollURL)
		if err != nil {
			if waitCtx.Err() != nil {
				continue
			}
			m.finish(ch, model.ChallengeAbandoned)
			return m.classify(ch.AccountRef, err, false)
		}

		switch status {
		case comdirect.AuthPending:
			continue
		case comdirect.AuthAuthenticated:
			m.finish(ch, model.ChallengeConfirmed)
			return nil
		case comdirect.AuthExpired:
			m.finish(ch, model.ChallengeExpired)
			return apperrors.NewAuthError(apperrors.ErrChallengeTimedOut, ref, errors.New("challenge expired at broker"))
		case comdirect.AuthRejected, comdirect.AuthDeclined, comdirect.AuthCanceled:
			m.finish(ch, model.ChallengeRejected)
			return apperrors.NewAuthError(apperrors.ErrChallengeRejected, ref, fmt.Errorf("challenge %s", status))
		default:
			m.log.Debug().Str("account", ref).Str("status", status).Msg("Unknown challenge status, still waiting")
		}
	}
}

// register records a new challenge. A challenge id may only ever be used once.
func (m *SessionManager) register(ch model.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, used := m.spent[ch.ID]; used {
		return apperrors.NewAuthError(apperrors.ErrChallengeRejected, string(ch.AccountRef),
			fmt.Errorf("challenge %s was already used", ch.ID))
	}
	m.spent[ch.ID] = struct{}{}
	m.challenges[ch.AccountRef] = ch
	return nil
}

func (m *SessionManager) finish(ch *model.Challenge, status model.ChallengeStatus) {
	if err := ch.Transition(status); err != nil {
		return
	}
	m.mu.Lock()
	m.challenges[ch.AccountRef] = *ch
	m.mu.Unlock()
}

func (m *SessionManager) newSession(ref model.AccountRef, sessionID string, tok *comdirect.TokenResponse) *model.Session {
	now := m.now()
	return &model.Session{
		AccountRef:       ref,
		SessionID:        sessionID,
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresAt:        tokenExpiry(tok.AccessToken, tok.ExpiresIn, now),
		RefreshExpiresAt: refreshExpiry(tok.RefreshToken),
		CreatedAt:        now,
	}
}

// classify maps transport failures onto authentication kinds. Client errors on
// the credential step mean wrong credentials; any other 4xx is treated the
// same because it needs the account holder to act.
func (m *SessionManager) classify(ref model.AccountRef, err error, credentialStep bool) error {
	account := string(ref)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewAuthError(apperrors.ErrChallengeAbandoned, account, err)
	case errors.Is(err, comdirect.ErrUnreachable):
		return apperrors.NewAuthError(apperrors.ErrAuthUnreachable, account, err)
	case comdirect.IsClientError(err):
		if credentialStep {
			m.log.Warn().Str("account", account).Msg("Broker rejected credentials")
		}
		return apperrors.NewAuthError(apperrors.ErrInvalidCredentials, account, err)
	default:
		return apperrors.NewAuthError(apperrors.ErrAuthUnreachable, account, err)
	}
}
