package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DeviceTokenRecord is the persisted result of a completed device login.
// Exactly one live record exists per controller URL.
type DeviceTokenRecord struct {
	ControllerURL string    `json:"controllerUrl"`
	AccessToken   string    `json:"accessToken"`
	RefreshToken  string    `json:"refreshToken,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// ClientTokenRecord is a token issued from client credentials, keyed by
// (environment, appName). It carries no refresh token; expiry is handled by
// re-issuing through the credentials.
type ClientTokenRecord struct {
	Environment   string    `json:"environment"`
	AppName       string    `json:"appName"`
	ControllerURL string    `json:"controllerUrl"`
	AccessToken   string    `json:"accessToken"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// TokenStore persists issued tokens. Client secrets are never stored here.
type TokenStore interface {
	GetDeviceToken(controllerURL string) (*DeviceTokenRecord, bool, error)
	SaveDeviceToken(rec DeviceTokenRecord) error
	DeleteDeviceToken(controllerURL string) error
	// DeviceTokenURLs returns the controller URLs with a stored device
	// token, in stored order.
	DeviceTokenURLs() ([]string, error)
	GetClientToken(environment, appName string) (*ClientTokenRecord, bool, error)
	SaveClientToken(rec ClientTokenRecord) error
}

// tokenFile is the on-disk layout. Records are lists, not maps, so that the
// resolver's fallback search sees device tokens in the order they were saved.
type tokenFile struct {
	DeviceTokens []DeviceTokenRecord `json:"deviceTokens"`
	ClientTokens []ClientTokenRecord `json:"clientTokens"`
}

// FileTokenStore is a JSON-file-backed TokenStore. Saves are atomic: the
// file is replaced via rename so no reader ever observes a half-written
// record.
type FileTokenStore struct {
	Path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

func (s *FileTokenStore) load() (*tokenFile, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &tokenFile{}, nil
		}
		return nil, err
	}
	var file tokenFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &file, nil
}

func (s *FileTokenStore) save(file *tokenFile) error {
	if file == nil {
		return errors.New("token file is nil")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	content, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

func (s *FileTokenStore) GetDeviceToken(controllerURL string) (*DeviceTokenRecord, bool, error) {
	file, err := s.load()
	if err != nil {
		return nil, false, err
	}
	for i := range file.DeviceTokens {
		if file.DeviceTokens[i].ControllerURL == controllerURL {
			rec := file.DeviceTokens[i]
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

func (s *FileTokenStore) SaveDeviceToken(rec DeviceTokenRecord) error {
	if rec.ControllerURL == "" {
		return errors.New("device token record needs a controller URL")
	}
	file, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range file.DeviceTokens {
		if file.DeviceTokens[i].ControllerURL == rec.ControllerURL {
			file.DeviceTokens[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		file.DeviceTokens = append(file.DeviceTokens, rec)
	}
	return s.save(file)
}

func (s *FileTokenStore) DeleteDeviceToken(controllerURL string) error {
	file, err := s.load()
	if err != nil {
		return err
	}
	kept := file.DeviceTokens[:0]
	for _, rec := range file.DeviceTokens {
		if rec.ControllerURL != controllerURL {
			kept = append(kept, rec)
		}
	}
	file.DeviceTokens = kept
	return s.save(file)
}

func (s *FileTokenStore) DeviceTokenURLs() ([]string, error) {
	file, err := s.load()
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(file.DeviceTokens))
	for _, rec := range file.DeviceTokens {
		urls = append(urls, rec.ControllerURL)
	}
	return urls, nil
}

func (s *FileTokenStore) GetClientToken(environment, appName string) (*ClientTokenRecord, bool, error) {
	file, err := s.load()
	if err != nil {
		return nil, false, err
	}
	for i := range file.ClientTokens {
		if file.ClientTokens[i].Environment == environment && file.ClientTokens[i].AppName == appName {
			rec := file.ClientTokens[i]
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

func (s *FileTokenStore) SaveClientToken(rec ClientTokenRecord) error {
	if rec.Environment == "" || rec.AppName == "" {
		return errors.New("client token record needs environment and app name")
	}
	file, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range file.ClientTokens {
		if file.ClientTokens[i].Environment == rec.Environment && file.ClientTokens[i].AppName == rec.AppName {
			file.ClientTokens[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		file.ClientTokens = append(file.ClientTokens, rec)
	}
	return s.save(file)
}
