package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/auth"
)

type fakeRefresher struct {
	calls int32
	rec   *auth.DeviceTokenRecord
	err   error
}

func (f *fakeRefresher) ForceRefresh(context.Context, string) (*auth.DeviceTokenRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.rec, f.err
}

func TestDo_BearerHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer server.Close()

	c, err := New(
		WithController(server.URL),
		WithAuth(auth.AuthConfig{Type: auth.AuthTypeBearer, Token: "tok-1", Controller: server.URL}),
	)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, &out))
	assert.Equal(t, "yes", out["ok"])
}

func TestDo_ClientCredentialHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id-1", r.Header.Get("x-client-id"))
		assert.Equal(t, "sec-1", r.Header.Get("x-client-secret"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, err := New(
		WithController(server.URL),
		WithAuth(auth.AuthConfig{Type: auth.AuthTypeClientCredentials, ClientID: "id-1", ClientSecret: "sec-1"}),
	)
	require.NoError(t, err)
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, nil))
}

func TestDo_401RefreshAndSingleRetry(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer server.Close()

	refresher := &fakeRefresher{rec: &auth.DeviceTokenRecord{AccessToken: "fresh", ControllerURL: server.URL}}
	c, err := New(
		WithController(server.URL),
		WithAuth(auth.AuthConfig{Type: auth.AuthTypeBearer, Token: "rejected", Controller: server.URL}),
		WithRefresher(refresher),
	)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, &out))
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(1), refresher.calls)
	assert.Equal(t, int32(2), requests)
}

func TestDo_401TwiceIsTerminal(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresher := &fakeRefresher{rec: &auth.DeviceTokenRecord{AccessToken: "fresh"}}
	c, err := New(
		WithController(server.URL),
		WithAuth(auth.AuthConfig{Type: auth.AuthTypeBearer, Token: "rejected"}),
		WithRefresher(refresher),
	)
	require.NoError(t, err)

	err = c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, nil)
	var authErr *auth.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	// Exactly one refresh and one retry; never a loop.
	assert.Equal(t, int32(1), refresher.calls)
	assert.Equal(t, int32(2), requests)
}

func TestDo_401RefreshFailureIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresher := &fakeRefresher{err: &auth.RefreshExpiredError{ControllerURL: server.URL}}
	c, err := New(
		WithController(server.URL),
		WithAuth(auth.AuthConfig{Type: auth.AuthTypeBearer, Token: "rejected"}),
		WithRefresher(refresher),
	)
	require.NoError(t, err)

	err = c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, nil)
	var authErr *auth.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestDo_401WithoutRefresherIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, err := New(
		WithController(server.URL),
		WithAuth(auth.AuthConfig{Type: auth.AuthTypeBearer, Token: "rejected"}),
	)
	require.NoError(t, err)

	err = c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, nil)
	var authErr *auth.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestDo_OtherErrorsNotReclassified(t *testing.T) {
	refresher := &fakeRefresher{rec: &auth.DeviceTokenRecord{AccessToken: "fresh"}}
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
		}))
		c, err := New(
			WithController(server.URL),
			WithAuth(auth.AuthConfig{Type: auth.AuthTypeBearer, Token: "tok"}),
			WithRefresher(refresher),
		)
		require.NoError(t, err)

		err = c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, nil)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, status, httpErr.StatusCode)
		assert.Equal(t, "boom", httpErr.Message)
		server.Close()
	}
	assert.Zero(t, refresher.calls)
}

func TestControllerOrigin(t *testing.T) {
	assert.Equal(t, "https://ctl.example.com", controllerOrigin("https://ctl.example.com/api/v1/applications?env=dev"))
	assert.Equal(t, "http://ctl.example.com:8080", controllerOrigin("http://ctl.example.com:8080/api"))
	// Regex fallback for inputs url.Parse rejects.
	assert.Equal(t, "https://bad host", controllerOrigin("https://bad host/path"))
	// Literal input as last resort.
	assert.Equal(t, "not a url", controllerOrigin("not a url"))
}

func TestNew_RequiresController(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}

func TestWithTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := New(WithController(server.URL), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	err = c.Do(context.Background(), http.MethodGet, "api/v1/applications", nil, nil)
	require.Error(t, err)
}
