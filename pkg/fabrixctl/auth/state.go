package auth

import "net/http"

// pollState is the outcome of one device-token poll iteration.
type pollState int

const (
	statePending pollState = iota
	stateSlowDown
	stateSuccess
	stateDeclined
	stateExpired
	stateFailed
)

func (s pollState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateSlowDown:
		return "slow_down"
	case stateSuccess:
		return "success"
	case stateDeclined:
		return "declined"
	case stateExpired:
		return "expired"
	default:
		return "failed"
	}
}

// evalPollResponse maps one token-endpoint response onto the next poll state.
// The body's error field is authoritative; the HTTP status is consulted only
// when the body carries neither an error nor a token, so a 200 whose body
// still says authorization_pending stays pending.
func evalPollResponse(status int, body tokenEnvelope) pollState {
	switch body.ErrorCode {
	case "authorization_pending":
		return statePending
	case "slow_down":
		return stateSlowDown
	case "expired_token":
		return stateExpired
	case "authorization_declined":
		return stateDeclined
	}
	if body.ErrorCode != "" {
		return stateFailed
	}
	if body.accessToken() != "" {
		return stateSuccess
	}
	switch status {
	case http.StatusAccepted:
		return statePending
	case http.StatusGone:
		return stateExpired
	}
	return stateFailed
}
