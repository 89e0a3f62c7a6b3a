package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Grace added on top of the server-reported expiresIn before the poll loop
// gives up.
const pollDeadlineGrace = 30 * time.Second

// PollFunc is invoked once per poll iteration, including the first, before
// the token request is sent. It is a pure progress hook.
type PollFunc func(attempt int)

// DeviceCodeClient drives the controller's device-authorization protocol:
// initiation plus the timed polling loop.
type DeviceCodeClient struct {
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewDeviceCodeClient(httpClient *http.Client, logger *zap.Logger) *DeviceCodeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceCodeClient{http: httpClient, logger: logger, now: time.Now}
}

// Initiate starts a device login for the given environment and scope.
func (c *DeviceCodeClient) Initiate(ctx context.Context, controllerURL, environment, scope string) (*DeviceAuthorization, error) {
	endpoint := joinURL(controllerURL, loginPath)
	if environment != "" {
		endpoint += "?environment=" + url.QueryEscape(environment)
	}
	var envelope deviceAuthEnvelope
	status, err := c.postJSON(ctx, endpoint, map[string]string{"scope": scope}, &envelope)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("device login initiation failed (%d): %s", status, envelope.errorText())
	}
	authz, err := envelope.normalize(endpoint)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("device login initiated",
		zap.String("controller", controllerURL),
		zap.String("userCode", authz.UserCode),
		zap.Int("expiresIn", authz.ExpiresIn),
		zap.Int("interval", authz.Interval))
	return authz, nil
}

// Poll exchanges the device code for tokens, waiting for the user to approve
// the login in a browser. Each non-terminal iteration suspends for the
// current interval; slow_down doubles it. The loop is bounded by a hard
// deadline of expiresIn plus a 30 second grace.
func (c *DeviceCodeClient) Poll(ctx context.Context, controllerURL, deviceCode string, interval, expiresIn int, onPoll PollFunc) (*TokenGrant, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	wait := time.Duration(interval) * time.Second
	deadline := c.now().Add(time.Duration(expiresIn)*time.Second + pollDeadlineGrace)
	endpoint := joinURL(controllerURL, deviceTokenPath)

	for attempt := 1; ; attempt++ {
		if c.now().After(deadline) {
			return nil, &TerminalDeclineError{Reason: "expired_token"}
		}
		if onPoll != nil {
			onPoll(attempt)
		}
		var envelope tokenEnvelope
		status, err := c.postJSON(ctx, endpoint, map[string]string{"deviceCode": deviceCode}, &envelope)
		if err != nil {
			return nil, err
		}
		state := evalPollResponse(status, envelope)
		c.logger.Debug("device token poll",
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Stringer("state", state))
		switch state {
		case stateSuccess:
			return envelope.grant(), nil
		case stateExpired:
			return nil, &TerminalDeclineError{Reason: "expired_token"}
		case stateDeclined:
			return nil, &TerminalDeclineError{Reason: "authorization_declined"}
		case stateFailed:
			return nil, fmt.Errorf("device token poll failed (%d): %s", status, envelope.errorText())
		case stateSlowDown:
			wait *= 2
		case statePending:
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *DeviceCodeClient) postJSON(ctx context.Context, endpoint string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &NetworkError{Op: "POST", URL: endpoint, Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	// Error payloads share the envelope shape; a body that fails to decode
	// is ignored and the caller falls back to the HTTP status.
	_ = json.NewDecoder(resp.Body).Decode(out)
	return resp.StatusCode, nil
}

// sleep suspends for d, honoring context cancellation. This is the only
// backpressure in the poll loop.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
