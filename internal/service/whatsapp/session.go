package whatsapp

import (
	"sync"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

// SessionManager keeps each producer's last collection point and milk type.
type SessionManager struct {
	sessions map[string]models.ProducerSession
	mu       sync.RWMutex
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]models.ProducerSession),
	}
}

// Last returns the producer's remembered session.
func (sm *SessionManager) Last(producerID string) (models.ProducerSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, ok := sm.sessions[producerID]
	return session, ok
}

// Remember stores the producer's latest session.
func (sm *SessionManager) Remember(producerID string, session models.ProducerSession) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[producerID] = session
}
