package cmd

import (
	"github.com/golang-jwt/jwt/v4"
)

// subjectFromToken extracts a display identity from an access token without
// verifying it; the controller did the verification when it issued the token.
func subjectFromToken(token string) string {
	if token == "" {
		return ""
	}
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return ""
	}
	if email, ok := claims["email"].(string); ok && email != "" {
		return email
	}
	if username, ok := claims["preferred_username"].(string); ok && username != "" {
		return username
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	return ""
}
