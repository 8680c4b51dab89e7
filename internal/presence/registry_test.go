package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindUnbind(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Bind("conn1", "alice"))
	assert.True(t, r.Online("alice"))

	// second connection for the same user is not a fresh online
	assert.False(t, r.Bind("conn2", "alice"))

	user, offline := r.Unbind("conn1")
	assert.Equal(t, "alice", user)
	assert.False(t, offline)
	assert.True(t, r.Online("alice"))

	user, offline = r.Unbind("conn2")
	assert.Equal(t, "alice", user)
	assert.True(t, offline)
	assert.False(t, r.Online("alice"))
}

func TestRebindOverwrites(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Bind("conn1", "alice"))
	// re-authentication on the same connection switches identity
	assert.True(t, r.Bind("conn1", "bob"))

	assert.False(t, r.Online("alice"))
	assert.True(t, r.Online("bob"))

	// same identity again is a no-op
	assert.False(t, r.Bind("conn1", "bob"))
}

func TestUnbindUnknownConnection(t *testing.T) {
	r := NewRegistry()
	user, offline := r.Unbind("ghost")
	assert.Equal(t, "", user)
	assert.False(t, offline)
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Bind("c1", "carol")
	r.Bind("c2", "alice")
	r.Bind("c3", "alice")

	assert.Equal(t, []string{"alice", "carol"}, r.Snapshot())

	r.Close()
	assert.Empty(t, r.Snapshot())
}
