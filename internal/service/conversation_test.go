package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirecraft/realtime/internal/apperr"
	"github.com/inspirecraft/realtime/internal/logger"
	"github.com/inspirecraft/realtime/internal/models"
	"github.com/inspirecraft/realtime/internal/repository/memory"
)

func newConvFixture() (*ConversationService, *MessageService) {
	convs := memory.NewConversationRepo()
	msgs := memory.NewMessageRepo()
	log := logger.Nop()
	return NewConversationService(convs, msgs, log),
		NewMessageService(msgs, convs, nil, nil, log)
}

func TestGetOrCreateDirect(t *testing.T) {
	svc, _ := newConvFixture()
	ctx := context.Background()

	conv, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationDirect, conv.Kind)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.Participants)
	assert.False(t, conv.IsGroup())

	// either participant opening the chat again reuses the same document
	again, err := svc.GetOrCreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestGetOrCreateDirectConcurrent(t *testing.T) {
	svc, _ := newConvFixture()
	ctx := context.Background()

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := svc.GetOrCreateDirect(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetOrCreateDirectValidation(t *testing.T) {
	svc, _ := newConvFixture()
	ctx := context.Background()

	_, err := svc.GetOrCreateDirect(ctx, "alice", "alice")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.GetOrCreateDirect(ctx, "alice", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateGroup(t *testing.T) {
	svc, _ := newConvFixture()
	ctx := context.Background()

	conv, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "painters", "")
	require.NoError(t, err)
	assert.True(t, conv.IsGroup())
	assert.Equal(t, []string{"alice"}, conv.Admins)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, conv.Participants)

	// creator in the participant list does not count toward the minimum
	_, err = svc.CreateGroup(ctx, "alice", []string{"bob", "alice"}, "too-small", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreateGroup(ctx, "alice", []string{"bob"}, "pair", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetHidesExistenceFromOutsiders(t *testing.T) {
	svc, _ := newConvFixture()
	ctx := context.Background()

	conv, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.Get(ctx, conv.ID, "mallory")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	ok, err := svc.IsParticipant(ctx, conv.ID, "mallory")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsParticipant(ctx, "no-such-conversation", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListForUserAnnotatesLatestMessage(t *testing.T) {
	svc, msgs := newConvFixture()
	ctx := context.Background()

	c1, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	c2, err := svc.GetOrCreateDirect(ctx, "alice", "carol")
	require.NoError(t, err)

	_, err = msgs.Send(ctx, SendRequest{ConversationID: c1.ID, SenderID: "bob", Kind: "text", Content: "first"})
	require.NoError(t, err)
	latest, err := msgs.Send(ctx, SendRequest{ConversationID: c1.ID, SenderID: "alice", Kind: "text", Content: "second"})
	require.NoError(t, err)

	views, err := svc.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 2)

	// conversation with the newest activity sorts first
	assert.Equal(t, c1.ID, views[0].ID)
	require.NotNil(t, views[0].Latest)
	assert.Equal(t, latest.ID, views[0].Latest.ID)
	assert.Equal(t, "second", views[0].Latest.Content)

	assert.Equal(t, c2.ID, views[1].ID)
	assert.Nil(t, views[1].Latest)
}

func TestGroupAdministration(t *testing.T) {
	svc, _ := newConvFixture()
	ctx := context.Background()

	conv, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol", "dave"}, "crew", "")
	require.NoError(t, err)

	// only admins rename
	_, err = svc.Rename(ctx, conv.ID, "bob", "new name")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	renamed, err := svc.Rename(ctx, conv.ID, "alice", "new name")
	require.NoError(t, err)
	assert.Equal(t, "new name", renamed.Name)

	// non-admin cannot remove someone else, but may leave
	err = svc.RemoveParticipant(ctx, conv.ID, "bob", "carol")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	require.NoError(t, svc.RemoveParticipant(ctx, conv.ID, "bob", "bob"))

	// shrinking below 3 participants is rejected
	err = svc.RemoveParticipant(ctx, conv.ID, "alice", "carol")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
