package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/secrets"
)

// ProactiveRefreshWindow is how far ahead of expiry a token is refreshed.
// The controller terminates idle sessions after 30 minutes; refreshing at
// the 15 minute mark keeps a valid session alive under scheduling jitter.
const ProactiveRefreshWindow = 15 * time.Minute

// IsExpired reports whether the token is expired at now.
func IsExpired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

// NeedsProactiveRefresh reports whether the token is inside the proactive
// refresh window at now.
func NeedsProactiveRefresh(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt.Add(-ProactiveRefreshWindow))
}

// TokenRefresher applies the expiry policy and performs refresh calls,
// persisting results into the token store. A failed refresh never touches
// the stored record.
type TokenRefresher struct {
	store  TokenStore
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewTokenRefresher(store TokenStore, httpClient *http.Client, logger *zap.Logger) *TokenRefresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenRefresher{store: store, http: httpClient, logger: logger, now: time.Now}
}

// RefreshDevice exchanges the refresh token for a new access/refresh pair
// and persists it. The refresh token may rotate or stay the same.
func (r *TokenRefresher) RefreshDevice(ctx context.Context, controllerURL, refreshToken string) (*DeviceTokenRecord, error) {
	endpoint := joinURL(controllerURL, refreshPath)
	status, envelope, err := r.postToken(ctx, endpoint, map[string]string{"refreshToken": refreshToken}, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		if refreshTokenRejected(status, envelope.errorText()) {
			return nil, &RefreshExpiredError{ControllerURL: controllerURL}
		}
		return nil, fmt.Errorf("token refresh failed (%d): %s", status, envelope.errorText())
	}
	if envelope.accessToken() == "" {
		return nil, &ProtocolError{Endpoint: endpoint, Missing: []string{"accessToken"}}
	}
	expiry, ok := envelope.expiry(r.now())
	if !ok {
		return nil, &ProtocolError{Endpoint: endpoint, Missing: []string{"expiresIn"}}
	}
	rec := DeviceTokenRecord{
		ControllerURL: controllerURL,
		AccessToken:   envelope.accessToken(),
		RefreshToken:  envelope.refreshToken(),
		ExpiresAt:     expiry,
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = refreshToken
	}
	if err := r.store.SaveDeviceToken(rec); err != nil {
		return nil, err
	}
	r.logger.Debug("device token refreshed",
		zap.String("controller", controllerURL),
		zap.Time("expiresAt", rec.ExpiresAt))
	return &rec, nil
}

// RefreshClient exchanges client credentials for a fresh client token and
// persists it. Re-issuing is idempotent; no refresh token is involved.
func (r *TokenRefresher) RefreshClient(ctx context.Context, environment, appName, controllerURL string, creds secrets.Credentials) (*ClientTokenRecord, error) {
	endpoint := joinURL(controllerURL, clientTokenPath)
	headers := map[string]string{
		"x-client-id":     creds.ClientID,
		"x-client-secret": creds.ClientSecret,
	}
	status, envelope, err := r.postToken(ctx, endpoint, nil, headers)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("client token exchange failed (%d): %s", status, envelope.errorText())
	}
	if envelope.accessToken() == "" {
		return nil, &ProtocolError{Endpoint: endpoint, Missing: []string{"token"}}
	}
	expiry, ok := envelope.expiry(r.now())
	if !ok {
		return nil, &ProtocolError{Endpoint: endpoint, Missing: []string{"expiresIn"}}
	}
	rec := ClientTokenRecord{
		Environment:   environment,
		AppName:       appName,
		ControllerURL: controllerURL,
		AccessToken:   envelope.accessToken(),
		ExpiresAt:     expiry,
	}
	if err := r.store.SaveClientToken(rec); err != nil {
		return nil, err
	}
	r.logger.Debug("client token issued",
		zap.String("environment", environment),
		zap.String("app", appName),
		zap.Time("expiresAt", rec.ExpiresAt))
	return &rec, nil
}

// ForceRefresh refreshes the device token for a controller regardless of its
// stored expiry. Used after the controller rejects a token the client
// believed valid.
func (r *TokenRefresher) ForceRefresh(ctx context.Context, controllerURL string) (*DeviceTokenRecord, error) {
	rec, ok, err := r.store.GetDeviceToken(controllerURL)
	if err != nil {
		return nil, err
	}
	if !ok || rec.RefreshToken == "" {
		return nil, &AuthenticationError{ControllerURL: controllerURL, Reason: "no refresh token available"}
	}
	return r.RefreshDevice(ctx, controllerURL, rec.RefreshToken)
}

// GetOrRefreshDeviceToken returns a usable device token for the controller,
// refreshing ahead of expiry. An expired token without a successful refresh
// is an error. If only the proactive refresh fails, (nil, nil) is returned
// and the caller decides whether to fall back; the stale record stays in the
// store untouched.
func (r *TokenRefresher) GetOrRefreshDeviceToken(ctx context.Context, controllerURL string) (*DeviceTokenRecord, error) {
	rec, ok, err := r.store.GetDeviceToken(controllerURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	now := r.now()
	if IsExpired(now, rec.ExpiresAt) {
		if rec.RefreshToken == "" {
			return nil, &RefreshExpiredError{ControllerURL: controllerURL}
		}
		return r.RefreshDevice(ctx, controllerURL, rec.RefreshToken)
	}
	if NeedsProactiveRefresh(now, rec.ExpiresAt) && rec.RefreshToken != "" {
		refreshed, err := r.RefreshDevice(ctx, controllerURL, rec.RefreshToken)
		if err != nil {
			r.logger.Warn("proactive refresh failed",
				zap.String("controller", controllerURL),
				zap.Error(err))
			return nil, nil
		}
		return refreshed, nil
	}
	return rec, nil
}

func (r *TokenRefresher) postToken(ctx context.Context, endpoint string, body map[string]string, headers map[string]string) (int, tokenEnvelope, error) {
	var envelope tokenEnvelope
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, envelope, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, envelope, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return 0, envelope, &NetworkError{Op: "POST", URL: endpoint, Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	return resp.StatusCode, envelope, nil
}

// refreshTokenRejected decides whether a refresh failure means the refresh
// token itself is dead. The controller signals this via a 401 or by wording;
// the substring match mirrors the controller's unstructured error messages.
func refreshTokenRejected(status int, message string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "expired") || strings.Contains(lower, "unauthorized")
}
