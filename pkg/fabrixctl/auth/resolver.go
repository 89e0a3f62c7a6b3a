package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/secrets"
)

// AuthType selects which header scheme an outbound call uses.
type AuthType string

const (
	AuthTypeBearer            AuthType = "bearer"
	AuthTypeClientCredentials AuthType = "client-credentials"
)

// AuthConfig is the normalized, call-scoped description of how to
// authenticate one outbound request. Type determines which fields are set:
// bearer carries Token, client-credentials carries ClientID/ClientSecret.
// It is produced per call and never persisted.
type AuthConfig struct {
	Type         AuthType
	Token        string
	ClientID     string
	ClientSecret string
	Controller   string
}

// AuthResolver produces an AuthConfig by walking a fixed strategy priority:
// device token (user-level audit attribution), then client token
// (app-scoped), then raw client credentials. A failing strategy is logged
// and the chain continues.
type AuthResolver struct {
	store     TokenStore
	refresher *TokenRefresher
	creds     secrets.Loader
	logger    *zap.Logger
}

func NewAuthResolver(store TokenStore, refresher *TokenRefresher, creds secrets.Loader, logger *zap.Logger) *AuthResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthResolver{store: store, refresher: refresher, creds: creds, logger: logger}
}

// Resolve finds authentication for the given controller. With an empty
// controllerURL the device-token search walks every stored controller URL in
// stored order; an explicit controllerURL is never broadened. Exhausting all
// strategies yields NoAuthenticationAvailable with the attempted URLs.
func (r *AuthResolver) Resolve(ctx context.Context, controllerURL, environment, appName string) (*AuthConfig, error) {
	var attempted []string

	if controllerURL != "" {
		attempted = append(attempted, controllerURL)
		cfg, err := r.deviceTokenStrategy(ctx, controllerURL)
		if err != nil {
			r.logger.Warn("device token strategy failed",
				zap.String("controller", controllerURL), zap.Error(err))
		} else if cfg != nil {
			return cfg, nil
		}
	} else {
		urls, err := r.store.DeviceTokenURLs()
		if err != nil {
			r.logger.Warn("device token store unreadable", zap.Error(err))
		}
		for _, u := range urls {
			attempted = append(attempted, u)
			cfg, err := r.deviceTokenStrategy(ctx, u)
			if err != nil {
				r.logger.Warn("device token strategy failed",
					zap.String("controller", u), zap.Error(err))
				continue
			}
			if cfg != nil {
				return cfg, nil
			}
		}
	}

	if environment != "" && appName != "" {
		cfg, err := r.clientTokenStrategy(ctx, controllerURL, environment, appName)
		if err != nil {
			r.logger.Warn("client token strategy failed",
				zap.String("environment", environment), zap.String("app", appName), zap.Error(err))
		} else if cfg != nil {
			return cfg, nil
		}
	}

	if controllerURL != "" {
		cfg, err := r.credentialsStrategy(controllerURL, appName)
		if err != nil {
			r.logger.Warn("client credentials strategy failed",
				zap.String("app", appName), zap.Error(err))
		} else if cfg != nil {
			return cfg, nil
		}
	}

	return nil, &NoAuthenticationAvailable{Attempted: attempted}
}

// deviceTokenStrategy returns a bearer config for the stored device token.
// With an explicit URL a missing token is a hard AuthenticationError so the
// search never silently widens to other controllers.
func (r *AuthResolver) deviceTokenStrategy(ctx context.Context, controllerURL string) (*AuthConfig, error) {
	rec, err := r.refresher.GetOrRefreshDeviceToken(ctx, controllerURL)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &AuthenticationError{ControllerURL: controllerURL, Reason: "no usable device token"}
	}
	return &AuthConfig{Type: AuthTypeBearer, Token: rec.AccessToken, Controller: controllerURL}, nil
}

// clientTokenStrategy uses a stored app-scoped token, re-issuing it through
// the credentials when expired or inside the proactive window.
func (r *AuthResolver) clientTokenStrategy(ctx context.Context, controllerURL, environment, appName string) (*AuthConfig, error) {
	rec, ok, err := r.store.GetClientToken(environment, appName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if controllerURL != "" && rec.ControllerURL != controllerURL {
		return nil, nil
	}
	now := r.refresher.now()
	if IsExpired(now, rec.ExpiresAt) || NeedsProactiveRefresh(now, rec.ExpiresAt) {
		creds, err := r.creds.Load(appName)
		if err == nil && creds != nil {
			fresh, issueErr := r.refresher.RefreshClient(ctx, environment, appName, rec.ControllerURL, *creds)
			if issueErr == nil {
				return &AuthConfig{Type: AuthTypeBearer, Token: fresh.AccessToken, Controller: fresh.ControllerURL}, nil
			}
			r.logger.Warn("client token re-issue failed",
				zap.String("app", appName), zap.Error(issueErr))
		}
		if IsExpired(now, rec.ExpiresAt) {
			return nil, nil
		}
	}
	return &AuthConfig{Type: AuthTypeBearer, Token: rec.AccessToken, Controller: rec.ControllerURL}, nil
}

// credentialsStrategy hands the raw credentials to the caller, which sends
// them as x-client-id/x-client-secret headers directly.
func (r *AuthResolver) credentialsStrategy(controllerURL, appName string) (*AuthConfig, error) {
	creds, err := r.creds.Load(appName)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, nil
	}
	return &AuthConfig{
		Type:         AuthTypeClientCredentials,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Controller:   controllerURL,
	}, nil
}
