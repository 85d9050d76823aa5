package oauth

import (
	"sync"

	"github.com/google/uuid"
)

// SessionManager is the Session Manager (C9): it maps a (collectionUid,
// tokenUrl) pair to a stable opaque session identifier. First access for a
// pair allocates a fresh identifier; subsequent accesses reuse it, while
// distinct endpoints or collections get distinct identifiers. The
// orchestrator passes the identifier to the BrowserDriver as
// AuthorizeParams.SessionID; the driver does not use it, and no cookie or
// login state is kept per session.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]string
}

// NewSessionManager returns an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]string)}
}

func sessionKey(collectionUID, tokenURL string) string {
	return collectionUID + "\x00" + tokenURL
}

// SessionID returns the stable session identifier for (collectionUID,
// tokenURL), allocating one on first access.
func (m *SessionManager) SessionID(collectionUID, tokenURL string) string {
	key := sessionKey(collectionUID, tokenURL)

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.sessions[key]; ok {
		return id
	}
	id := uuid.NewString()
	m.sessions[key] = id
	return id
}

// Forget drops the session identifier for (collectionUID, tokenURL), if any.
// The next SessionID call for the pair allocates a fresh one.
func (m *SessionManager) Forget(collectionUID, tokenURL string) {
	key := sessionKey(collectionUID, tokenURL)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}
