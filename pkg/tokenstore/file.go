package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const consentKeySuffix = "_consent"

// FileStore keeps all records in a single JSON file with owner-only
// permissions. Access is whole-file read-modify-write guarded by a process
// mutex; there is no cross-process file locking.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at path. The parent directory is
// created if needed.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating token store directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("reading token store: %w", err)
	}

	entries := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &entries); err != nil {
		// An unreadable store is treated as empty rather than fatal; the
		// next save rewrites it.
		return map[string]json.RawMessage{}, nil
	}
	return entries, nil
}

func (s *FileStore) save(entries map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing token store: %w", err)
	}
	return nil
}

func (s *FileStore) SaveUserToken(appID string, token *UserToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshaling user token: %w", err)
	}
	entries[appID] = raw
	return s.save(entries)
}

func (s *FileStore) UserToken(appID string) (*UserToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	raw, ok := entries[appID]
	if !ok {
		return nil, ErrTokenNotFound
	}

	var token UserToken
	if err := json.Unmarshal(raw, &token); err != nil || !token.valid() {
		// Malformed entry: drop it and re-save so it is not seen again.
		delete(entries, appID)
		_ = s.save(entries)
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func (s *FileStore) DeleteUserToken(appID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return false, err
	}
	if _, ok := entries[appID]; !ok {
		return false, nil
	}
	delete(entries, appID)
	return true, s.save(entries)
}

func (s *FileStore) SaveConsent(appID string, consent *ConsentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(consent)
	if err != nil {
		return fmt.Errorf("marshaling consent state: %w", err)
	}
	entries[appID+consentKeySuffix] = raw
	return s.save(entries)
}

func (s *FileStore) Consent(appID string) (*ConsentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	raw, ok := entries[appID+consentKeySuffix]
	if !ok {
		return nil, ErrConsentNotFound
	}

	var consent ConsentState
	if err := json.Unmarshal(raw, &consent); err != nil || consent.State == "" {
		delete(entries, appID+consentKeySuffix)
		_ = s.save(entries)
		return nil, ErrConsentNotFound
	}
	return &consent, nil
}

func (s *FileStore) ClearConsent(appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[appID+consentKeySuffix]; !ok {
		return nil
	}
	delete(entries, appID+consentKeySuffix)
	return s.save(entries)
}
