package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/internal/repository"
	"ecoadvisor-go/pkg/ecoapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, remote *fakeRemote) (ConversationService, repository.ConversationCache) {
	t.Helper()
	cache := repository.NewMemoryConversationCache()
	t.Cleanup(func() { _ = cache.Close() })
	return NewConversationService(remote, cache, PreferLocal), cache
}

func TestRefreshAdoptsMostRecentServerConversation(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("old", "Old", 1000))
	remote.put(conversationAt("new", "New", 2000))
	store, cache := newStore(t, remote)

	require.NoError(t, store.Refresh(context.Background()))

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "new", current.ID)
	assert.Len(t, store.List(), 2)
	assert.Equal(t, StateConfirmed, store.Status("new").State)

	cached, err := cache.LoadConversations(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 2)
	id, err := cache.LoadCurrentID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", id)
}

func TestRefreshFailureKeepsLocalState(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", "A", 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	remote.listErr = networkErr
	err := store.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ecoapi.ErrNetwork))

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "a", current.ID)
	assert.Len(t, store.List(), 1)
}

func TestRefreshFailureRestoresFromCacheWhenEmpty(t *testing.T) {
	remote := newFakeRemote()
	remote.listErr = networkErr
	cache := repository.NewMemoryConversationCache()
	ctx := context.Background()
	require.NoError(t, cache.SaveConversations(ctx, []model.Conversation{
		conversationAt("x", "X", 2000),
		conversationAt("y", "Y", 1000),
	}))
	require.NoError(t, cache.SaveCurrentID(ctx, "y"))

	store := NewConversationService(remote, cache, PreferLocal)
	require.Error(t, store.Refresh(ctx))

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "y", current.ID)
	assert.Len(t, store.List(), 2)
}

func TestRefreshKeepsNewerLocalEdit(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", model.PlaceholderTitle, 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	current, _ := store.Current()
	current.Title = "Local edit"
	current.Touch(time.UnixMilli(5000))
	store.Stage(current)

	require.NoError(t, store.Refresh(context.Background()))
	got, _ := store.Current()
	assert.Equal(t, "Local edit", got.Title)
	assert.Equal(t, StatePending, store.Status("a").State)
}

func TestDeleteOnlyConversationCreatesExactlyOneReplacement(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("only", "Only", 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	current, err := store.Delete(context.Background(), "only")
	require.NoError(t, err)

	assert.Equal(t, 1, remote.createCalls)
	assert.NotEqual(t, "only", current.ID)
	assert.Equal(t, model.PlaceholderTitle, current.Title)
	require.Len(t, current.Messages, 1)
	assert.Equal(t, model.WelcomeMessageID, current.Messages[0].ID)

	list := store.List()
	require.Len(t, list, 1)
	assert.Equal(t, current.ID, list[0].ID)
}

func TestDeleteOtherConversationKeepsCurrent(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", "A", 2000))
	remote.put(conversationAt("b", "B", 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	current, err := store.Delete(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "a", current.ID)
	assert.Equal(t, 0, remote.createCalls)
	assert.Len(t, store.List(), 1)
}

func TestDeleteWithoutCurrentDoesNotCreate(t *testing.T) {
	remote := newFakeRemote()
	store, _ := newStore(t, remote)

	current, err := store.Delete(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, "", current.ID)
	assert.Equal(t, 0, remote.createCalls)
	assert.Equal(t, 1, remote.deleteCalls)

	_, ok := store.Current()
	assert.False(t, ok)
	assert.Empty(t, store.List())
}

func TestDeleteFailureLeavesStateUnchanged(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", "A", 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	remote.deleteErr = &ecoapi.Error{Kind: ecoapi.KindServer, Message: "server error"}
	_, err := store.Delete(context.Background(), "a")
	require.Error(t, err)

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "a", current.ID)
	assert.Len(t, store.List(), 1)
}

func TestNewFallsBackToLocalConversation(t *testing.T) {
	remote := newFakeRemote()
	remote.createErr = networkErr
	store, cache := newStore(t, remote)

	conv, err := store.New(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, model.PlaceholderTitle, conv.Title)
	assert.Len(t, conv.Messages, 1)
	assert.Equal(t, StateFailed, store.Status(conv.ID).State)

	cached, err := cache.LoadConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, conv.ID, cached[0].ID)
}

func TestNewReturnsNonNetworkErrors(t *testing.T) {
	remote := newFakeRemote()
	remote.createErr = &ecoapi.Error{Kind: ecoapi.KindPermission, Message: "access denied"}
	store, _ := newStore(t, remote)

	_, err := store.New(context.Background())
	assert.True(t, errors.Is(err, ecoapi.ErrPermission))
	_, ok := store.Current()
	assert.False(t, ok)
}

func TestPersistConfirmsOnSuccess(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", model.PlaceholderTitle, 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	conv, _ := store.Current()
	conv.Title = "Renamed"
	conv.Touch(time.UnixMilli(2000))

	saved, err := store.Persist(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", saved.Title)
	assert.Equal(t, StateConfirmed, store.Status("a").State)
	assert.Equal(t, 1, remote.updateCalls)
}

func TestPersistFailureRetainsLocalEdit(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", model.PlaceholderTitle, 1000))
	store, cache := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	remote.updateErr = networkErr
	conv, _ := store.Current()
	conv.Title = "Unsaved"
	conv.Touch(time.UnixMilli(2000))

	_, err := store.Persist(context.Background(), conv)
	require.Error(t, err)

	status := store.Status("a")
	assert.Equal(t, StateFailed, status.State)
	assert.Error(t, status.Err)

	current, _ := store.Current()
	assert.Equal(t, "Unsaved", current.Title)

	cached, err := cache.LoadConversations(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cached)
	assert.Equal(t, "Unsaved", cached[0].Title)
}

func TestStageOtherConversationIsVisible(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", "A", 2000))
	remote.put(conversationAt("b", "B", 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	other, ok := store.Get("b")
	require.True(t, ok)
	other.Title = "Edited"
	other.Touch(time.UnixMilli(3000))
	store.Stage(other)

	got, ok := store.Get("b")
	require.True(t, ok)
	assert.Equal(t, "Edited", got.Title)
	assert.Equal(t, StatePending, store.Status("b").State)

	current, _ := store.Current()
	assert.Equal(t, "a", current.ID)
	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
}

func TestRefreshKeepsFailedEditOfOtherConversation(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", "A", 2000))
	remote.put(conversationAt("b", "B", 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	remote.updateErr = networkErr
	other, _ := store.Get("b")
	other.Title = "Unsaved"
	other.Touch(time.UnixMilli(3000))
	_, err := store.Persist(context.Background(), other)
	require.Error(t, err)
	assert.Equal(t, StateFailed, store.Status("b").State)

	require.NoError(t, store.Refresh(context.Background()))
	got, ok := store.Get("b")
	require.True(t, ok)
	assert.Equal(t, "Unsaved", got.Title)
	assert.Equal(t, StateFailed, store.Status("b").State)
}

func TestSelectUsesLocalCopyWhenOffline(t *testing.T) {
	remote := newFakeRemote()
	remote.put(conversationAt("a", "A", 2000))
	remote.put(conversationAt("b", "B", 1000))
	store, _ := newStore(t, remote)
	require.NoError(t, store.Refresh(context.Background()))

	remote.getErr = networkErr
	conv, err := store.Select(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", conv.ID)

	current, _ := store.Current()
	assert.Equal(t, "b", current.ID)
}

func TestSelectUnknownConversation(t *testing.T) {
	store, _ := newStore(t, newFakeRemote())
	_, err := store.Select(context.Background(), "missing")
	assert.True(t, errors.Is(err, ecoapi.ErrNotFound))
}
