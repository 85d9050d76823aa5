package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionManager_FirstAccessAllocates(t *testing.T) {
	m := NewSessionManager()
	id := m.SessionID("col-1", "https://example.com/token")
	assert.NotEmpty(t, id)
}

func TestSessionManager_SubsequentAccessReuses(t *testing.T) {
	m := NewSessionManager()
	a := m.SessionID("col-1", "https://example.com/token")
	b := m.SessionID("col-1", "https://example.com/token")
	assert.Equal(t, a, b)
}

func TestSessionManager_DistinctPairsIsolated(t *testing.T) {
	m := NewSessionManager()
	a := m.SessionID("col-1", "https://example.com/token")
	b := m.SessionID("col-2", "https://example.com/token")
	c := m.SessionID("col-1", "https://other.example.com/token")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestSessionManager_ForgetAllocatesFresh(t *testing.T) {
	m := NewSessionManager()
	a := m.SessionID("col-1", "https://example.com/token")
	m.Forget("col-1", "https://example.com/token")
	b := m.SessionID("col-1", "https://example.com/token")
	assert.NotEqual(t, a, b)
}
