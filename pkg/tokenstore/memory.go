package tokenstore

import "sync"

// MemoryStore is an in-memory store for tests and development.
type MemoryStore struct {
	mu       sync.RWMutex
	tokens   map[string]*UserToken
	consents map[string]*ConsentState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]*UserToken),
		consents: make(map[string]*ConsentState),
	}
}

func (m *MemoryStore) SaveUserToken(appID string, token *UserToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[appID] = &cp
	return nil
}

func (m *MemoryStore) UserToken(appID string) (*UserToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[appID]
	if !ok || !tok.valid() {
		return nil, ErrTokenNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *MemoryStore) DeleteUserToken(appID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[appID]
	delete(m.tokens, appID)
	return ok, nil
}

func (m *MemoryStore) SaveConsent(appID string, consent *ConsentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *consent
	m.consents[appID] = &cp
	return nil
}

func (m *MemoryStore) Consent(appID string) (*ConsentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	consent, ok := m.consents[appID]
	if !ok {
		return nil, ErrConsentNotFound
	}
	cp := *consent
	return &cp, nil
}

func (m *MemoryStore) ClearConsent(appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consents, appID)
	return nil
}
