package harvest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

func seedRoot(t *testing.T, store *memoryStore, id, username, text string) *models.Post {
	t.Helper()
	root := &models.Post{
		ID:       id,
		Username: username,
		Link:     "https://x.com/" + username + "/status/" + id,
		Text:     text,
	}
	require.NoError(t, store.SavePost(root))
	return root
}

func TestResolverRun(t *testing.T) {
	logger := arbor.NewLogger()

	t.Run("Resolves and persists a conversation", func(t *testing.T) {
		store := newMemoryStore()
		seedRoot(t, store, "100", "alice", "root text")

		source := &fakeSource{
			pages: [][]models.ExtractedPost{{
				post(0, "100", "alice", "root text"),
				post(1, "101", "bob", "question"),
				post(2, "102", "alice", "answer"),
			}},
		}

		resolver := NewResolver(source, store, nil, testHarvestConfig(), logger)
		summary, err := resolver.Run(context.Background(), "alice")

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 0, summary.Failed)

		conv, _ := store.GetConversation("100")
		require.NotNil(t, conv)
		assert.Equal(t, "alice", conv.Username)
		require.Len(t, conv.Replies, 1)
		assert.Equal(t, "101", conv.Replies[0].Post.ID)
		assert.Equal(t, 3, conv.PostCount)

		progress, _ := store.GetProgress("alice", models.PhaseConversations)
		assert.Equal(t, "100", progress.LastPostID)
	})

	t.Run("Skips roots with an existing conversation", func(t *testing.T) {
		store := newMemoryStore()
		seedRoot(t, store, "100", "alice", "root text")
		require.NoError(t, store.SaveConversation(&models.Conversation{
			RootID:   "100",
			Username: "alice",
		}))

		source := &fakeSource{}
		resolver := NewResolver(source, store, nil, testHarvestConfig(), logger)
		summary, err := resolver.Run(context.Background(), "alice")

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		assert.Empty(t, source.navigated, "skipped roots must not touch the page source")
	})

	t.Run("Empty extraction persists nothing", func(t *testing.T) {
		store := newMemoryStore()
		seedRoot(t, store, "100", "alice", "root text")

		source := &fakeSource{pages: [][]models.ExtractedPost{{}}}
		resolver := NewResolver(source, store, nil, testHarvestConfig(), logger)
		summary, err := resolver.Run(context.Background(), "alice")

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)

		conv, _ := store.GetConversation("100")
		assert.Nil(t, conv)
	})

	t.Run("Logged out aborts the pass", func(t *testing.T) {
		store := newMemoryStore()
		seedRoot(t, store, "100", "alice", "root text")

		source := &fakeSource{loggedOut: true}
		resolver := NewResolver(source, store, nil, testHarvestConfig(), logger)
		_, err := resolver.Run(context.Background(), "alice")

		assert.ErrorIs(t, err, interfaces.ErrLoggedOut)
	})

	t.Run("Session failure recreates the session and retries the root", func(t *testing.T) {
		store := newMemoryStore()
		seedRoot(t, store, "100", "alice", "root text")

		source := &fakeSource{
			navErr: &interfaces.SessionError{Err: errors.New("target crashed")},
			pages: [][]models.ExtractedPost{{
				post(0, "100", "alice", "root text"),
				post(1, "101", "bob", "question"),
				post(2, "102", "alice", "answer"),
			}},
		}

		resolver := NewResolver(source, store, nil, testHarvestConfig(), logger)
		summary, err := resolver.Run(context.Background(), "alice")

		require.NoError(t, err)
		assert.Equal(t, 0, summary.Failed)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 1, source.recreated)

		conv, _ := store.GetConversation("100")
		require.NotNil(t, conv)
	})

	t.Run("Failed image fetch drops only that image", func(t *testing.T) {
		store := newMemoryStore()
		seedRoot(t, store, "100", "alice", "root text")

		withRefs := post(0, "100", "alice", "root text")
		withRefs.ImageRefs = []string{"good-ref", "bad-ref"}

		source := &fakeSource{pages: [][]models.ExtractedPost{{withRefs}}}
		fetcher := &fakeFetcher{data: map[string]string{
			"good-ref": "data:image/jpeg;base64,AAA",
		}}

		resolver := NewResolver(source, store, fetcher, testHarvestConfig(), logger)
		summary, err := resolver.Run(context.Background(), "alice")

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)

		conv, _ := store.GetConversation("100")
		require.NotNil(t, conv)
		require.Len(t, conv.Root.Images, 1)
		assert.Equal(t, "data:image/jpeg;base64,AAA", conv.Root.Images[0])
	})
}
