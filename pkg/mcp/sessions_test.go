package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_RegisterAndLookup(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("view-1", "session-abc")
	sid, ok := r.SessionFor("view-1")
	assert.True(t, ok)
	assert.Equal(t, "session-abc", sid)
}

func TestSessionRegistry_NotFound(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.SessionFor("unknown")
	assert.False(t, ok)
}

func TestSessionRegistry_Overwrite(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("view-1", "session-old")
	r.Register("view-1", "session-new")

	sid, ok := r.SessionFor("view-1")
	assert.True(t, ok)
	assert.Equal(t, "session-new", sid)
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("view-1", "session-abc")
	r.Register("view-2", "session-abc")
	r.Register("view-3", "session-xyz")

	r.Remove("session-abc")

	_, ok := r.SessionFor("view-1")
	assert.False(t, ok)
	_, ok = r.SessionFor("view-2")
	assert.False(t, ok)
	sid, ok := r.SessionFor("view-3")
	assert.True(t, ok)
	assert.Equal(t, "session-xyz", sid)
}

func TestSessionRegistry_Forget(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("view-1", "session-abc")
	r.Register("view-2", "session-abc")
	r.Forget("view-1")

	_, ok := r.SessionFor("view-1")
	assert.False(t, ok)
	_, ok = r.SessionFor("view-2")
	assert.True(t, ok)
}
