// Package auth signs participants in against the login endpoint. Login is
// username plus PIN; the endpoint answers with a JWT whose claims identify
// the participant.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned when the endpoint rejects the
// username/PIN pair.
var ErrInvalidCredentials = errors.New("invalid username or pin")

// Session is an authenticated participant session.
type Session struct {
	ParticipantID string
	Username      string
	AccessToken   string
	ExpiresAt     time.Time
}

// Expired reports whether the session's token has lapsed.
func (s Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Client talks to the login endpoint.
type Client struct {
	loginURL string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates an auth client for the given login endpoint URL.
func NewClient(loginURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		loginURL: loginURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With("component", "auth"),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Pin      string `json:"pin"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
}

// sessionClaims is the claim set the login endpoint issues.
type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Login authenticates a username/PIN pair. A 401 from the endpoint maps to
// ErrInvalidCredentials; other failures are transport errors.
func (c *Client) Login(ctx context.Context, username, pin string) (Session, error) {
	body, err := json.Marshal(loginRequest{Username: username, Pin: pin})
	if err != nil {
		return Session{}, fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("call login endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Session{}, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		return Session{}, fmt.Errorf("login endpoint returned %s", resp.Status)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, fmt.Errorf("decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return Session{}, fmt.Errorf("login response carried no token")
	}

	session, err := sessionFromToken(out.AccessToken)
	if err != nil {
		return Session{}, err
	}

	c.logger.Info("Signed in", "username", session.Username)
	return session, nil
}

// sessionFromToken extracts the participant identity from the issued JWT.
// The token is decoded, not verified: verification is the backend's job,
// the client only needs the claims.
func sessionFromToken(token string) (Session, error) {
	claims := &sessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("parse session token: %w", err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("session token carries no subject")
	}

	s := Session{
		ParticipantID: claims.Subject,
		Username:      claims.Username,
		AccessToken:   token,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
