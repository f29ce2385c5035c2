package model

import (
	"errors"
	"time"
)

// ExpirySkew is subtracted from a token's expiry so that a session is renewed
// before the broker starts rejecting it.
const ExpirySkew = 30 * time.Second

// Session is an authenticated brokerage session for one account.
type Session struct {
	AccountRef       AccountRef
	SessionID        string
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

// Expired reports whether the access token must no longer be used at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return true
	}
	return !now.Add(ExpirySkew).Before(s.ExpiresAt)
}

// RefreshExpired reports whether the refresh token is known to have lapsed at
// now. An unknown refresh expiry never counts as lapsed.
func (s *Session) RefreshExpired(now time.Time) bool {
	if s == nil || s.RefreshExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.RefreshExpiresAt)
}

// ChallengeStatus is the lifecycle state of a photo-TAN challenge.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeConfirmed ChallengeStatus = "confirmed"
	ChallengeExpired   ChallengeStatus = "expired"
	ChallengeRejected  ChallengeStatus = "rejected"
	ChallengeAbandoned ChallengeStatus = "abandoned"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ChallengeStatus) Terminal() bool {
	return s != ChallengePending
}

// ErrChallengeFinished is returned when a terminal challenge is asked to change state.
var ErrChallengeFinished = errors.New("challenge already reached a terminal state")

// Challenge is a second-factor request the account holder has to confirm
// out-of-band on their registered device.
type Challenge struct {
	ID         string          `json:"id"`
	AccountRef AccountRef      `json:"account"`
	Type       string          `json:"type"`
	PollURL    string          `json:"-"`
	CreatedAt  time.Time       `json:"createdAt"`
	Status     ChallengeStatus `json:"status"`
}

// Transition moves the challenge to the given status.
// Terminal challenges are immutable.
func (c *Challenge) Transition(to ChallengeStatus) error {
	if c.Status.Terminal() {
		return ErrChallengeFinished
	}
	c.Status = to
	return nil
}
