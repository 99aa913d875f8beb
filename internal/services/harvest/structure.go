package harvest

import (
	"sort"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

// placeholderText marks seeded root posts whose body was never observed;
// it must never win root-text selection.
const placeholderText = "[seeded for phase2 test]"

// BuildConversation converts a flat, visually-ordered extraction into the
// structured conversation rooted at root. It is a pure function of its
// inputs: ordering keys are strictly extraction positions, so the same
// flat list always produces an identical tree.
//
// The platform exposes no reply-to linkage in the rendered view, so
// attribution is positional: each owner post between a reply and the next
// reply is treated as the owner's response to that reply. This assumes
// replies and responses interleave in visual order; it is an accepted
// approximation, not a recovered reply graph.
func BuildConversation(root *models.Post, flat []models.ExtractedPost, owner string) *models.Conversation {
	seen := map[string]struct{}{root.ID: {}}

	rootPost := buildRoot(root, flat, owner)

	// Partition the remainder, dropping duplicate IDs (first occurrence
	// wins) while preserving extraction order.
	var ownerPosts, otherPosts []models.ExtractedPost
	for _, p := range flat {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if p.Author == owner {
			ownerPosts = append(ownerPosts, p)
		} else {
			otherPosts = append(otherPosts, p)
		}
	}

	sort.SliceStable(ownerPosts, func(i, j int) bool { return ownerPosts[i].Position < ownerPosts[j].Position })
	sort.SliceStable(otherPosts, func(i, j int) bool { return otherPosts[i].Position < otherPosts[j].Position })

	// For each reply, claim the owner posts inside its response window:
	// the half-open interval up to the next reply's position. Replies the
	// owner never answered are dropped.
	claimed := make(map[string]struct{})
	replies := make([]models.Reply, 0, len(otherPosts))
	for i, reply := range otherPosts {
		boundary := -1
		if i+1 < len(otherPosts) {
			boundary = otherPosts[i+1].Position
		}

		var responses []models.ConversationPost
		for _, op := range ownerPosts {
			if _, used := claimed[op.ID]; used {
				continue
			}
			if op.Position <= reply.Position {
				continue
			}
			if boundary >= 0 && op.Position >= boundary {
				continue
			}
			claimed[op.ID] = struct{}{}
			responses = append(responses, toConversationPost(op))
		}

		if len(responses) > 0 {
			replies = append(replies, models.Reply{
				Post:            toConversationPost(reply),
				AuthorResponses: responses,
			})
		}
	}

	// Owner posts never claimed as a response are the owner's own
	// continuation of the root.
	thread := make([]models.ConversationPost, 0, len(ownerPosts))
	for _, op := range ownerPosts {
		if _, used := claimed[op.ID]; used {
			continue
		}
		thread = append(thread, toConversationPost(op))
	}

	return &models.Conversation{
		RootID:   root.ID,
		Username: owner,
		Root:     rootPost,
		Thread:   thread,
		Replies:  replies,
	}
}

// buildRoot selects the root's content. The discussion view's copy of the
// root is preferred because it can reveal media the timeline view hides;
// the timeline text is the fallback, and as a last resort the first
// usable owner post in the extraction stands in.
func buildRoot(root *models.Post, flat []models.ExtractedPost, owner string) models.ConversationPost {
	var fromFlat *models.ExtractedPost
	for i := range flat {
		if flat[i].ID == root.ID {
			fromFlat = &flat[i]
			break
		}
	}

	text := ""
	if fromFlat != nil {
		text = strings.TrimSpace(fromFlat.Text)
	}
	if text == "" || text == placeholderText {
		if root.Text != "" && root.Text != placeholderText {
			text = root.Text
		} else {
			text = ""
		}
	}
	if text == "" {
		best := -1
		for i := range flat {
			p := &flat[i]
			if p.Author != owner || p.Text == "" || p.Text == placeholderText {
				continue
			}
			if best < 0 || p.Position < flat[best].Position {
				best = i
			}
		}
		if best >= 0 {
			text = strings.TrimSpace(flat[best].Text)
		}
	}

	rootPost := models.ConversationPost{
		ID:     root.ID,
		Author: owner,
		Link:   root.Link,
		Text:   text,
		Images: []string{},
	}
	if fromFlat != nil {
		if len(fromFlat.Images) > 0 {
			rootPost.Images = fromFlat.Images
		}
		rootPost.Timestamp = fromFlat.CreatedAt
	}
	return rootPost
}

func toConversationPost(p models.ExtractedPost) models.ConversationPost {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return models.ConversationPost{
		ID:        p.ID,
		Author:    p.Author,
		Link:      p.Link,
		Text:      p.Text,
		Timestamp: p.CreatedAt,
		Images:    images,
	}
}
