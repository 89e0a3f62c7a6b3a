package auth

import (
	"time"
)

// Controller auth endpoints, relative to the controller origin.
const (
	loginPath       = "/api/v1/auth/login"
	deviceTokenPath = "/api/v1/auth/login/device/token"
	refreshPath     = "/api/v1/auth/refresh"
	clientTokenPath = "/api/v1/auth/token"
)

const defaultPollInterval = 5

// deviceAuthEnvelope accepts both the controller's camelCase fields and the
// RFC 8628 snake_case aliases. Shape differences are resolved here, at the
// boundary, never further in.
type deviceAuthEnvelope struct {
	DeviceCode         string `json:"deviceCode"`
	DeviceCodeAlias    string `json:"device_code"`
	UserCode           string `json:"userCode"`
	UserCodeAlias      string `json:"user_code"`
	VerificationURI    string `json:"verificationUri"`
	VerificationAlias  string `json:"verification_uri"`
	ExpiresIn          int    `json:"expiresIn"`
	ExpiresInAlias     int    `json:"expires_in"`
	Interval           int    `json:"interval"`
	ErrorCode          string `json:"error"`
	ErrorDescription   string `json:"error_description"`
	Message            string `json:"message"`
}

func (e deviceAuthEnvelope) errorText() string {
	return firstNonEmpty(e.ErrorDescription, e.Message, e.ErrorCode)
}

// DeviceAuthorization is the normalized result of initiating a device login.
type DeviceAuthorization struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int
	Interval        int
}

func (e deviceAuthEnvelope) normalize(endpoint string) (*DeviceAuthorization, error) {
	out := DeviceAuthorization{
		DeviceCode:      firstNonEmpty(e.DeviceCode, e.DeviceCodeAlias),
		UserCode:        firstNonEmpty(e.UserCode, e.UserCodeAlias),
		VerificationURI: firstNonEmpty(e.VerificationURI, e.VerificationAlias),
		ExpiresIn:       firstPositive(e.ExpiresIn, e.ExpiresInAlias),
		Interval:        e.Interval,
	}
	if out.Interval <= 0 {
		out.Interval = defaultPollInterval
	}
	var missing []string
	if out.DeviceCode == "" {
		missing = append(missing, "deviceCode")
	}
	if out.UserCode == "" {
		missing = append(missing, "userCode")
	}
	if out.VerificationURI == "" {
		missing = append(missing, "verificationUri")
	}
	if out.ExpiresIn <= 0 {
		missing = append(missing, "expiresIn")
	}
	if len(missing) > 0 {
		return nil, &ProtocolError{Endpoint: endpoint, Missing: missing}
	}
	return &out, nil
}

// tokenEnvelope covers every token-bearing response the controller sends:
// device-token polling, refresh, and client-token issuance.
type tokenEnvelope struct {
	AccessToken       string `json:"accessToken"`
	AccessTokenAlias  string `json:"access_token"`
	Token             string `json:"token"`
	RefreshToken      string `json:"refreshToken"`
	RefreshTokenAlias string `json:"refresh_token"`
	ExpiresIn         int    `json:"expiresIn"`
	ExpiresInAlias    int    `json:"expires_in"`
	ExpiresAt         string `json:"expiresAt"`
	ErrorCode         string `json:"error"`
	ErrorDescription  string `json:"error_description"`
	Message           string `json:"message"`
}

func (e tokenEnvelope) accessToken() string {
	return firstNonEmpty(e.AccessToken, e.AccessTokenAlias, e.Token)
}

func (e tokenEnvelope) refreshToken() string {
	return firstNonEmpty(e.RefreshToken, e.RefreshTokenAlias)
}

func (e tokenEnvelope) expiresIn() int {
	return firstPositive(e.ExpiresIn, e.ExpiresInAlias)
}

// expiry resolves the token expiry instant: an explicit expiresAt timestamp
// wins, otherwise expiresIn seconds from now.
func (e tokenEnvelope) expiry(now time.Time) (time.Time, bool) {
	if e.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, e.ExpiresAt); err == nil {
			return t, true
		}
	}
	if n := e.expiresIn(); n > 0 {
		return now.Add(time.Duration(n) * time.Second), true
	}
	return time.Time{}, false
}

func (e tokenEnvelope) errorText() string {
	return firstNonEmpty(e.ErrorDescription, e.Message, e.ErrorCode)
}

// TokenGrant is the normalized result of a completed device flow or a
// refresh call.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

func (e tokenEnvelope) grant() *TokenGrant {
	return &TokenGrant{
		AccessToken:  e.accessToken(),
		RefreshToken: e.refreshToken(),
		ExpiresIn:    e.expiresIn(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
