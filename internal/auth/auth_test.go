package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueToken(t *testing.T, subject, username string, expiresAt time.Time) string {
	t.Helper()
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func loginServer(t *testing.T, pin string, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Pin != pin {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(loginResponse{AccessToken: token})
	}))
}

func TestClient_Login(t *testing.T) {
	token := issueToken(t, "u1", "alice", time.Now().Add(time.Hour))
	srv := loginServer(t, "1234", token)
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	session, err := client.Login(context.Background(), "alice", "1234")
	require.NoError(t, err)

	assert.Equal(t, "u1", session.ParticipantID)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, token, session.AccessToken)
	assert.False(t, session.Expired())
}

func TestClient_Login_WrongPin(t *testing.T) {
	srv := loginServer(t, "1234", "unused")
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Login(context.Background(), "alice", "0000")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestClient_Login_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Login(context.Background(), "alice", "1234")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestClient_Login_TokenWithoutSubject(t *testing.T) {
	token := issueToken(t, "", "alice", time.Now().Add(time.Hour))
	srv := loginServer(t, "1234", token)
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Login(context.Background(), "alice", "1234")
	assert.Error(t, err)
}

func TestSession_Expired(t *testing.T) {
	assert.True(t, Session{ExpiresAt: time.Now().Add(-time.Minute)}.Expired())
	assert.False(t, Session{ExpiresAt: time.Now().Add(time.Minute)}.Expired())
	assert.False(t, Session{}.Expired(), "a session without expiry never expires client side")
}
