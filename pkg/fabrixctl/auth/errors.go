package auth

import (
	"fmt"
	"strings"
)

// ProtocolError indicates the controller answered a device-authorization
// request with a response that is missing required protocol fields.
type ProtocolError struct {
	Endpoint string
	Missing  []string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed response from %s: missing %s", e.Endpoint, strings.Join(e.Missing, ", "))
}

// TerminalDeclineError is returned when the device authorization can no
// longer succeed: the user declined, or the device code expired. The user
// must start a new login.
type TerminalDeclineError struct {
	Reason string
}

func (e *TerminalDeclineError) Error() string {
	return fmt.Sprintf("device authorization failed: %s", e.Reason)
}

// RefreshExpiredError indicates the refresh token itself was rejected by the
// controller. Re-authentication is required.
type RefreshExpiredError struct {
	ControllerURL string
	Cause         error
}

func (e *RefreshExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("refresh token for %s expired: %v", e.ControllerURL, e.Cause)
	}
	return fmt.Sprintf("refresh token for %s expired", e.ControllerURL)
}

func (e *RefreshExpiredError) Unwrap() error { return e.Cause }

// NetworkError wraps a transport-level failure talking to the controller.
type NetworkError struct {
	Op    string
	URL   string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// AuthenticationError is a terminal failure to authenticate against one
// specific controller.
type AuthenticationError struct {
	ControllerURL string
	Reason        string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.ControllerURL, e.Reason)
}

// NoAuthenticationAvailable is returned when every resolver strategy has
// been exhausted. Attempted lists the controller URLs that were tried.
type NoAuthenticationAvailable struct {
	Attempted []string
}

func (e *NoAuthenticationAvailable) Error() string {
	if len(e.Attempted) == 0 {
		return "no authentication available: no controller URL and no stored tokens"
	}
	return fmt.Sprintf("no authentication available for %s; run 'fabrixctl auth login'", strings.Join(e.Attempted, ", "))
}
