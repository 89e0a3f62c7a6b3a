// Package auth implements the fabrixctl authentication core: the RFC 8628
// device-code flow against the controller, the on-disk token store, the
// expiry/proactive-refresh policy, and the priority-ordered strategy chain
// that turns stored tokens or client credentials into a per-call AuthConfig.
package auth
