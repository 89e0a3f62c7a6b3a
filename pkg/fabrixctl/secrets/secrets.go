// Package secrets resolves client credentials from the OS keychain with an
// environment-variable fallback. Only credentials live here; issued tokens
// belong to the auth token store.
package secrets

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

// DefaultService is the keychain service name under which fabrixctl stores
// credential entries.
const DefaultService = "fabrixctl"

// Credentials is a resolved client-id/secret pair, immutable once loaded.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Loader resolves credentials for an app. A nil result with a nil error
// means no usable pair exists anywhere.
type Loader interface {
	Load(appName string) (*Credentials, error)
}

// KeyringLoader looks up `<app>-client-id` / `<app>-client-secret` entries
// in the OS keychain, then falls back to environment variables.
type KeyringLoader struct {
	Service string
	Logger  *zap.Logger
}

func NewKeyringLoader(logger *zap.Logger) *KeyringLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyringLoader{Service: DefaultService, Logger: logger}
}

func (l *KeyringLoader) service() string {
	if l.Service != "" {
		return l.Service
	}
	return DefaultService
}

func (l *KeyringLoader) Load(appName string) (*Credentials, error) {
	if appName != "" {
		creds, err := l.fromKeyring(appName)
		if err != nil {
			l.logger().Debug("keychain lookup failed", zap.String("app", appName), zap.Error(err))
		} else if creds != nil {
			return creds, nil
		}
	}
	return credentialsFromEnv()
}

func (l *KeyringLoader) fromKeyring(appName string) (*Credentials, error) {
	id, err := keyring.Get(l.service(), appName+"-client-id")
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain read failed: %w", err)
	}
	secret, err := keyring.Get(l.service(), appName+"-client-secret")
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain read failed: %w", err)
	}
	if id == "" || secret == "" {
		return nil, nil
	}
	return &Credentials{ClientID: id, ClientSecret: secret}, nil
}

func (l *KeyringLoader) logger() *zap.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return zap.NewNop()
}

// envCredentials accepts both the canonical CLIENTID/CLIENTSECRET variables
// and their underscored aliases.
type envCredentials struct {
	ClientID        string `env:"CLIENTID"`
	ClientSecret    string `env:"CLIENTSECRET"`
	ClientIDAlt     string `env:"CLIENT_ID"`
	ClientSecretAlt string `env:"CLIENT_SECRET"`
}

func credentialsFromEnv() (*Credentials, error) {
	var ec envCredentials
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("failed to read credential env vars: %w", err)
	}
	id := ec.ClientID
	if id == "" {
		id = ec.ClientIDAlt
	}
	secret := ec.ClientSecret
	if secret == "" {
		secret = ec.ClientSecretAlt
	}
	if id == "" || secret == "" {
		return nil, nil
	}
	return &Credentials{ClientID: id, ClientSecret: secret}, nil
}

// Store writes a credential pair into the keychain for the given app.
func Store(service, appName string, creds Credentials) error {
	if service == "" {
		service = DefaultService
	}
	if appName == "" {
		return errors.New("app name is required")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return errors.New("client id and secret are required")
	}
	if err := keyring.Set(service, appName+"-client-id", creds.ClientID); err != nil {
		return fmt.Errorf("keychain write failed: %w", err)
	}
	if err := keyring.Set(service, appName+"-client-secret", creds.ClientSecret); err != nil {
		return fmt.Errorf("keychain write failed: %w", err)
	}
	return nil
}

// Remove deletes the credential pair for the given app. Missing entries are
// not an error.
func Remove(service, appName string) error {
	if service == "" {
		service = DefaultService
	}
	if appName == "" {
		return errors.New("app name is required")
	}
	for _, key := range []string{appName + "-client-id", appName + "-client-secret"} {
		if err := keyring.Delete(service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keychain delete failed: %w", err)
		}
	}
	return nil
}
