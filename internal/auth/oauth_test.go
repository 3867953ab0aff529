package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newFakeDiscord serves a token endpoint and a /users/@me endpoint.
func newFakeDiscord(t *testing.T, profile map[string]any, userStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(userStatus)
		json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *DiscordProvider {
	return newDiscordProvider("cid", "csecret", "http://localhost/cb", oauth2.Endpoint{
		AuthURL:   srv.URL + "/oauth2/authorize",
		TokenURL:  srv.URL + "/api/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, srv.URL+"/api/users/@me")
}

func TestDiscordProvider_AuthURL(t *testing.T) {
	p := NewDiscordProvider("cid", "csecret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "discord.com", u.Host)
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "identify email", q.Get("scope"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
}

func TestDiscordProvider_Exchange(t *testing.T) {
	srv := newFakeDiscord(t, map[string]any{
		"id":            "123",
		"username":      "lootgoblin",
		"discriminator": "0007",
		"avatar":        nil,
		"email":         "goblin@example.com",
	}, http.StatusOK)

	profile, err := newTestProvider(srv).Exchange(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, "123", profile.ID)
	assert.Equal(t, "lootgoblin", profile.Username)
	assert.Nil(t, profile.Avatar)
	assert.Equal(t, "goblin@example.com", profile.Email)
}

func TestDiscordProvider_Exchange_BadCode(t *testing.T) {
	srv := newFakeDiscord(t, map[string]any{"id": "1"}, http.StatusOK)

	_, err := newTestProvider(srv).Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestDiscordProvider_Exchange_ProfileError(t *testing.T) {
	srv := newFakeDiscord(t, map[string]any{}, http.StatusInternalServerError)

	_, err := newTestProvider(srv).Exchange(context.Background(), "good-code")
	assert.Error(t, err)
}

func TestDiscordProvider_Exchange_ProfileWithoutID(t *testing.T) {
	srv := newFakeDiscord(t, map[string]any{"username": "ghost"}, http.StatusOK)

	_, err := newTestProvider(srv).Exchange(context.Background(), "good-code")
	assert.Error(t, err)
}
