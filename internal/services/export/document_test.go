package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/models"
)

func TestCleanText(t *testing.T) {
	t.Run("Replaces known emojis", func(t *testing.T) {
		out := cleanText("thank you \U0001F64F stay blessed \U0001F60A")
		assert.Equal(t, "thank you [namaste] stay blessed :)", out)
	})

	t.Run("Strips unknown emojis", func(t *testing.T) {
		out := cleanText("hello \U0001F984 world")
		assert.Equal(t, "hello  world", out)
	})

	t.Run("Normalizes line endings and trailing whitespace", func(t *testing.T) {
		out := cleanText("line one  \r\nline two\t\r\n")
		assert.Equal(t, "line one\nline two\n", out)
	})
}

func TestSmartTitle(t *testing.T) {
	t.Run("Uses the first meaningful line", func(t *testing.T) {
		title := smartTitle("\n\nSaturn transit results for this year\nmore detail below")
		assert.Equal(t, "Saturn transit results for this year", title)
	})

	t.Run("Skips very short lines", func(t *testing.T) {
		title := smartTitle("Ok\nThe planets do not cause events, they indicate them")
		assert.Equal(t, "The planets do not cause events, they indicate them", title)
	})

	t.Run("Strips URLs", func(t *testing.T) {
		title := smartTitle("Read this https://example.com/post carefully")
		assert.Equal(t, "Read this carefully", title)
	})

	t.Run("Truncates long lines", func(t *testing.T) {
		long := strings.Repeat("word ", 40)
		title := smartTitle(long)
		assert.LessOrEqual(t, len(title), 90)
		assert.True(t, strings.HasSuffix(title, "..."))
	})

	t.Run("Empty input", func(t *testing.T) {
		assert.Equal(t, "Untitled", smartTitle("  \n "))
	})
}

func TestExtractTags(t *testing.T) {
	tags := extractTags("The lagna and nakshatra in your chart show career and job changes")
	require.NotEmpty(t, tags)
	assert.Equal(t, "astrology", tags[0], "highest scoring bucket first")
	assert.Contains(t, tags, "career")
	assert.LessOrEqual(t, len(tags), 4)

	assert.Empty(t, extractTags("nothing relevant here"))
}

func TestBuildAccountDocument(t *testing.T) {
	items := []Item{
		{
			Post: &models.Post{ID: "100", Username: "alice", Text: "timeline text"},
			Conversation: &models.Conversation{
				RootID:   "100",
				Username: "alice",
				Root:     models.ConversationPost{ID: "100", Author: "alice", Text: "Root body about the chart"},
				Thread: []models.ConversationPost{
					{ID: "110", Author: "alice", Text: "thread continuation"},
				},
				Replies: []models.Reply{{
					Post: models.ConversationPost{ID: "101", Author: "bob", Text: "a question"},
					AuthorResponses: []models.ConversationPost{
						{ID: "102", Author: "alice", Text: "the answer"},
					},
				}},
			},
		},
		{
			Post: &models.Post{ID: "200", Username: "alice", Text: "unresolved post"},
		},
	}

	doc := BuildAccountDocument("alice", items)

	assert.Contains(t, doc, "# @alice")
	assert.Contains(t, doc, "2 posts harvested.")
	assert.Contains(t, doc, "Root body about the chart")
	assert.Contains(t, doc, "thread continuation")
	assert.Contains(t, doc, "**@bob asked:**")
	assert.Contains(t, doc, "> a question")
	assert.Contains(t, doc, "**@alice answered:**")
	assert.Contains(t, doc, "the answer")
	assert.Contains(t, doc, "unresolved post")

	// Conversation root text wins over the timeline copy.
	assert.NotContains(t, doc, "timeline text")
}
