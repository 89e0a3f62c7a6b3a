package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/secrets"
)

func TestExpiryPolicy(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsExpired(now, now))
	assert.True(t, IsExpired(now, now.Add(-time.Second)))
	assert.False(t, IsExpired(now, now.Add(time.Second)))

	// 15-minute window: 10 minutes out needs a refresh, 20 minutes does not.
	assert.True(t, NeedsProactiveRefresh(now, now.Add(10*time.Minute)))
	assert.False(t, NeedsProactiveRefresh(now, now.Add(20*time.Minute)))
	assert.True(t, NeedsProactiveRefresh(now, now.Add(15*time.Minute)))
}

func TestRefreshDevice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/refresh", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "old-refresh", body["refreshToken"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "new-access",
			"refreshToken": "new-refresh",
			"expiresIn":    3600,
		})
	}))
	defer server.Close()

	store := newTestStore(t)
	oldExpiry := time.Now().Add(10 * time.Minute)
	require.NoError(t, store.SaveDeviceToken(DeviceTokenRecord{
		ControllerURL: server.URL, AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: oldExpiry,
	}))

	refresher := NewTokenRefresher(store, nil, nil)
	rec, err := refresher.RefreshDevice(context.Background(), server.URL, "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", rec.AccessToken)
	assert.Equal(t, "new-refresh", rec.RefreshToken)

	// Written record read back has a strictly later expiry.
	loaded, found, err := store.GetDeviceToken(server.URL)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, loaded.ExpiresAt.After(oldExpiry))
}

func TestRefreshDevice_RefreshTokenUnchangedWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "new-access", "expiresIn": 3600})
	}))
	defer server.Close()

	store := newTestStore(t)
	refresher := NewTokenRefresher(store, nil, nil)
	rec, err := refresher.RefreshDevice(context.Background(), server.URL, "keep-me")
	require.NoError(t, err)
	assert.Equal(t, "keep-me", rec.RefreshToken)
}

func TestRefreshDevice_Expired(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   map[string]string
	}{
		{"401", http.StatusUnauthorized, map[string]string{"message": "nope"}},
		{"expired wording", http.StatusBadRequest, map[string]string{"message": "refresh token expired"}},
		{"unauthorized wording", http.StatusBadRequest, map[string]string{"error": "unauthorized"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer server.Close()

			store := newTestStore(t)
			refresher := NewTokenRefresher(store, nil, nil)
			_, err := refresher.RefreshDevice(context.Background(), server.URL, "dead")
			var refreshErr *RefreshExpiredError
			require.ErrorAs(t, err, &refreshErr)
		})
	}
}

func TestRefreshDevice_FailureLeavesStoreUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newTestStore(t)
	original := DeviceTokenRecord{
		ControllerURL: server.URL, AccessToken: "old", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.SaveDeviceToken(original))

	refresher := NewTokenRefresher(store, nil, nil)
	_, err := refresher.RefreshDevice(context.Background(), server.URL, "r")
	require.Error(t, err)

	loaded, found, err := store.GetDeviceToken(server.URL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "old", loaded.AccessToken)
}

func TestRefreshDevice_NetworkError(t *testing.T) {
	store := newTestStore(t)
	refresher := NewTokenRefresher(store, &http.Client{Timeout: 200 * time.Millisecond}, nil)
	_, err := refresher.RefreshDevice(context.Background(), "http://127.0.0.1:1", "r")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestRefreshClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/token", r.URL.Path)
		require.Equal(t, "id-1", r.Header.Get("x-client-id"))
		require.Equal(t, "sec-1", r.Header.Get("x-client-secret"))
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "client-token", "expiresIn": 1800})
	}))
	defer server.Close()

	store := newTestStore(t)
	refresher := NewTokenRefresher(store, nil, nil)
	creds := secrets.Credentials{ClientID: "id-1", ClientSecret: "sec-1"}
	rec, err := refresher.RefreshClient(context.Background(), "dev", "billing", server.URL, creds)
	require.NoError(t, err)
	assert.Equal(t, "client-token", rec.AccessToken)

	loaded, found, err := store.GetClientToken("dev", "billing")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "client-token", loaded.AccessToken)
}

func TestRefreshClient_ExpiresAtShape(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":     "client-token",
			"expiresAt": expiry.Format(time.RFC3339),
		})
	}))
	defer server.Close()

	store := newTestStore(t)
	refresher := NewTokenRefresher(store, nil, nil)
	rec, err := refresher.RefreshClient(context.Background(), "dev", "billing", server.URL, secrets.Credentials{ClientID: "i", ClientSecret: "s"})
	require.NoError(t, err)
	assert.True(t, rec.ExpiresAt.Equal(expiry))
}

func TestGetOrRefreshDeviceToken_ProactiveWindow(t *testing.T) {
	var refreshCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/refresh" {
			refreshCalls++
			_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "fresh", "refreshToken": "r2", "expiresIn": 3600})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := newTestStore(t)
	// 10 minutes out: not expired, but inside the 15-minute window.
	require.NoError(t, store.SaveDeviceToken(DeviceTokenRecord{
		ControllerURL: server.URL, AccessToken: "stale", RefreshToken: "r1", ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	refresher := NewTokenRefresher(store, nil, nil)
	rec, err := refresher.GetOrRefreshDeviceToken(context.Background(), server.URL)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "fresh", rec.AccessToken)
	assert.Equal(t, 1, refreshCalls)
}

func TestGetOrRefreshDeviceToken_OutsideWindowNoRefresh(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveDeviceToken(DeviceTokenRecord{
		ControllerURL: "https://ctl.example.com", AccessToken: "valid", RefreshToken: "r1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	// No server: any refresh attempt would fail with a network error.
	refresher := NewTokenRefresher(store, &http.Client{Timeout: 200 * time.Millisecond}, nil)
	rec, err := refresher.GetOrRefreshDeviceToken(context.Background(), "https://ctl.example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "valid", rec.AccessToken)
}

func TestGetOrRefreshDeviceToken_ProactiveFailureReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newTestStore(t)
	stale := DeviceTokenRecord{
		ControllerURL: server.URL, AccessToken: "stale", RefreshToken: "r1", ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, store.SaveDeviceToken(stale))

	refresher := NewTokenRefresher(store, nil, nil)
	rec, err := refresher.GetOrRefreshDeviceToken(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The stale record survives untouched.
	loaded, found, err := store.GetDeviceToken(server.URL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "stale", loaded.AccessToken)
}

func TestGetOrRefreshDeviceToken_ExpiredWithoutRefreshToken(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveDeviceToken(DeviceTokenRecord{
		ControllerURL: "https://ctl.example.com", AccessToken: "dead", ExpiresAt: time.Now().Add(-time.Minute),
	}))

	refresher := NewTokenRefresher(store, nil, nil)
	_, err := refresher.GetOrRefreshDeviceToken(context.Background(), "https://ctl.example.com")
	var refreshErr *RefreshExpiredError
	require.ErrorAs(t, err, &refreshErr)
}

func TestGetOrRefreshDeviceToken_NotFound(t *testing.T) {
	store := newTestStore(t)
	refresher := NewTokenRefresher(store, nil, nil)
	rec, err := refresher.GetOrRefreshDeviceToken(context.Background(), "https://ctl.example.com")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestForceRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "forced", "expiresIn": 3600})
	}))
	defer server.Close()

	store := newTestStore(t)
	// Token the client still believes valid; the controller disagrees.
	require.NoError(t, store.SaveDeviceToken(DeviceTokenRecord{
		ControllerURL: server.URL, AccessToken: "rejected", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour),
	}))

	refresher := NewTokenRefresher(store, nil, nil)
	rec, err := refresher.ForceRefresh(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "forced", rec.AccessToken)
}

func TestForceRefresh_NoRefreshToken(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	refresher := NewTokenRefresher(store, nil, nil)
	_, err := refresher.ForceRefresh(context.Background(), "https://ctl.example.com")
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
}
