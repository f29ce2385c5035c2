package comdirect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TokenResponse is the OAuth token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	KDNR         string `json:"kdnr,omitempty"`
}

// SessionInfo is a banking session as listed by the session endpoint.
type SessionInfo struct {
	Identifier       string `json:"identifier"`
	SessionTanActive bool   `json:"sessionTanActive"`
	Activated2FA     bool   `json:"activated2FA"`
}

// Link is a hypermedia reference returned with a challenge.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel,omitempty"`
	Method string `json:"method,omitempty"`
	Type   string `json:"type,omitempty"`
}

// AuthenticationInfo describes an issued second-factor challenge.
type AuthenticationInfo struct {
	ID             string   `json:"id"`
	Typ            string   `json:"typ"`
	AvailableTypes []string `json:"availableTypes,omitempty"`
	Link           *Link    `json:"link,omitempty"`
}

// PollPath returns where the challenge status can be polled.
func (a AuthenticationInfo) PollPath() string {
	if a.Link != nil && a.Link.Href != "" {
		return a.Link.Href
	}
	return "/api/session/v1/authentications/" + url.PathEscape(a.ID)
}

// Challenge statuses reported by the authentication endpoint.
const (
	AuthPending       = "PENDING"
	AuthAuthenticated = "AUTHENTICATED"
	AuthExpired       = "EXPIRED"
	AuthRejected      = "REJECTED"
	AuthDeclined      = "DECLINED"
	AuthCanceled      = "CANCELED"
)

// AuthenticationStatus is the polled state of a challenge.
type AuthenticationStatus struct {
	AuthenticationID string `json:"authenticationId"`
	Status           string `json:"status"`
}

// PasswordToken performs the resource owner password grant.
func (c *Client) PasswordToken(ctx context.Context, clientID, clientSecret, username, password string) (*TokenResponse, error) {
	return c.token(ctx, url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"password"},
		"username":      {username},
		"password":      {password},
	})
}

// SecondaryToken exchanges an activated pre-auth token for the full banking token.
func (c *Client) SecondaryToken(ctx context.Context, clientID, clientSecret, token string) (*TokenResponse, error) {
	return c.token(ctx, url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"cd_secondary"},
		"token":         {token},
	})
}

// RefreshToken renews an access token without a new second factor.
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	return c.token(ctx, url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *Client) token(ctx context.Context, form url.Values) (*TokenResponse, error) {
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/oauth/token", form: form})
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("comdirect: token response without access_token")
	}
	return &tok, nil
}

// RevokeToken invalidates an access token.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/oauth/revoke", token: token})
	return err
}

// Sessions lists the banking sessions of the token owner.
func (c *Client) Sessions(ctx context.Context, token string) ([]SessionInfo, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/session/clients/user/v1/sessions",
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	var sessions []SessionInfo
	if err := decodeJSON(resp, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ValidateSession requests a second-factor challenge for the session.
// The challenge is returned in the x-once-authentication-info header.
func (c *Client) ValidateSession(ctx context.Context, token string, s SessionInfo) (*AuthenticationInfo, error) {
	s.SessionTanActive = true
	s.Activated2FA = true

	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/session/clients/user/v1/sessions/" + url.PathEscape(s.Identifier) + "/validate",
		body:   s,
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	raw := resp.header.Get(headerAuthInfo)
	if raw == "" {
		return nil, fmt.Errorf("comdirect: validate response without %s header", headerAuthInfo)
	}
	var info AuthenticationInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("comdirect: invalid %s header: %w", headerAuthInfo, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("comdirect: challenge without id")
	}
	return &info, nil
}

// AuthenticationStatus polls the state of a challenge.
func (c *Client) AuthenticationStatus(ctx context.Context, token, pollPath string) (string, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: pollPath, token: token})
	if err != nil {
		return "", err
	}

	var status AuthenticationStatus
	if err := decodeJSON(resp, &status); err != nil {
		return "", err
	}
	return strings.ToUpper(status.Status), nil
}

// ActivateSession marks the session as second-factor confirmed using the
// confirmed challenge id.
func (c *Client) ActivateSession(ctx context.Context, token string, s SessionInfo, challengeID string) error {
	s.SessionTanActive = true
	s.Activated2FA = true

	header, err := json.Marshal(map[string]string{"id": challengeID})
	if err != nil {
		return err
	}

	_, err = c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/api/session/clients/user/v1/sessions/" + url.PathEscape(s.Identifier),
		body:   s,
		token:  token,
		header: map[string]string{headerAuthInfo: string(header)},
	})
	return err
}
