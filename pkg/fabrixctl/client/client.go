// Package client is the authenticated HTTP client for the controller's
// deployment APIs. It attaches headers according to the resolved AuthConfig
// and recovers from a 401 with one forced refresh plus one retry.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/auth"
)

// Refresher force-refreshes the device token for a controller after the
// controller rejected the current one.
type Refresher interface {
	ForceRefresh(ctx context.Context, controllerURL string) (*auth.DeviceTokenRecord, error)
}

type Client struct {
	rest      *resty.Client
	auth      auth.AuthConfig
	refresher Refresher
	logger    *zap.Logger
	verbose   func(format string, args ...any)
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	rest := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "fabrixctl")
	c := &Client{rest: rest, logger: zap.NewNop()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.rest.BaseURL == "" {
		return nil, errors.New("controller URL is required")
	}
	return c, nil
}

func WithController(controllerURL string) Option {
	return func(c *Client) error {
		if controllerURL == "" {
			return errors.New("controller URL is required")
		}
		if _, err := url.Parse(controllerURL); err != nil {
			return fmt.Errorf("invalid controller URL: %w", err)
		}
		c.rest.SetBaseURL(strings.TrimRight(controllerURL, "/"))
		return nil
	}
}

func WithAuth(cfg auth.AuthConfig) Option {
	return func(c *Client) error {
		c.auth = cfg
		return nil
	}
}

func WithRefresher(r Refresher) Option {
	return func(c *Client) error {
		c.refresher = r
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.rest.SetTimeout(timeout)
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.rest.SetHeader("User-Agent", userAgent)
		return nil
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithVerbose installs a debug hook that receives one line per request.
func WithVerbose(fn func(format string, args ...any)) Option {
	return func(c *Client) error {
		c.verbose = fn
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecureSkipTLSVerify}
		if caFile != "" {
			data, err := os.ReadFile(caFile)
			if err != nil {
				return fmt.Errorf("failed to read CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if ok := pool.AppendCertsFromPEM(data); !ok {
				return errors.New("failed to parse CA file")
			}
			tlsConfig.RootCAs = pool
		}
		c.rest.SetTLSClientConfig(tlsConfig)
		return nil
	}
}

// Do performs one authenticated request. A 401 triggers a forced refresh of
// the device token for the request's controller and exactly one retry; any
// other failure status is returned as an HTTPError untouched.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any) error {
	resp, err := c.execute(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		retried, err := c.recover401(ctx, method, endpoint, body, resp)
		if err != nil {
			return err
		}
		if retried.StatusCode() == http.StatusUnauthorized {
			return &auth.AuthenticationError{
				ControllerURL: controllerOrigin(retried.Request.URL),
				Reason:        "request rejected with 401 after refresh",
			}
		}
		resp = retried
	}
	if resp.StatusCode() >= 400 {
		return decodeError(resp)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

func (c *Client) execute(ctx context.Context, method, endpoint string, body any) (*resty.Response, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
	switch c.auth.Type {
	case auth.AuthTypeClientCredentials:
		req.SetHeader("x-client-id", c.auth.ClientID)
		req.SetHeader("x-client-secret", c.auth.ClientSecret)
	default:
		if c.auth.Token != "" {
			req.SetHeader("Authorization", "Bearer "+c.auth.Token)
		}
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if c.verbose != nil {
		c.verbose("%s %s -> %d", method, resp.Request.URL, resp.StatusCode())
	}
	return resp, nil
}

// recover401 runs the single-retry recovery path. It is mutually exclusive
// with the proactive refresh that happened before the call; the two never
// compound.
func (c *Client) recover401(ctx context.Context, method, endpoint string, body any, failed *resty.Response) (*resty.Response, error) {
	if c.refresher == nil || c.auth.Type != auth.AuthTypeBearer {
		return nil, &auth.AuthenticationError{
			ControllerURL: controllerOrigin(failed.Request.URL),
			Reason:        "request rejected with 401",
		}
	}
	origin := controllerOrigin(failed.Request.URL)
	c.logger.Debug("401 received, forcing token refresh", zap.String("controller", origin))
	rec, err := c.refresher.ForceRefresh(ctx, origin)
	if err != nil {
		return nil, &auth.AuthenticationError{ControllerURL: origin, Reason: err.Error()}
	}
	c.auth.Token = rec.AccessToken
	return c.execute(ctx, method, endpoint, body)
}

var originPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^/]+`)

// controllerOrigin extracts scheme://host from a request URL, with a regex
// fallback for inputs net/url cannot parse and the literal input as last
// resort.
func controllerOrigin(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	if m := originPattern.FindString(raw); m != "" {
		return m
	}
	return raw
}

func decodeError(resp *resty.Response) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	body := resp.Body()
	if len(body) > 0 {
		_ = json.Unmarshal(body, &apiErr)
	}
	msg := strings.TrimSpace(apiErr.Error)
	if msg == "" {
		msg = strings.TrimSpace(apiErr.Message)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = resp.Status()
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Message: msg}
}

// HTTPError is a non-auth API failure, passed through as-is.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}
