package models

import "time"

// ConversationPost is a post as it appears inside a resolved conversation.
// Unlike the timeline Post it carries inlined image content, because the
// discussion view is the only place the full media set is visible.
type ConversationPost struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	Link      string     `json:"link"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp"`
	Images    []string   `json:"images"`
}

// Reply pairs a non-owner post with the owner posts that answered it.
// Replies the owner never responded to are not recorded.
type Reply struct {
	Post            ConversationPost   `json:"post"`
	AuthorResponses []ConversationPost `json:"author_responses"`
}

// Conversation is the resolved discussion rooted at one owner post:
// the root, the owner's own continuation thread, and the replies the
// owner responded to. A re-resolution replaces the record wholesale.
type Conversation struct {
	RootID   string `badgerhold:"key" json:"root_id"`
	Username string `badgerhold:"index" json:"username"`

	Root    ConversationPost   `json:"root"`
	Thread  []ConversationPost `json:"thread"`
	Replies []Reply            `json:"replies"`

	PostCount int       `json:"post_count"`
	ScrapedAt time.Time `json:"scraped_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CountPosts returns the number of posts referenced across root, thread
// and replies.
func (c *Conversation) CountPosts() int {
	n := 1 + len(c.Thread) + len(c.Replies)
	for _, r := range c.Replies {
		n += len(r.AuthorResponses)
	}
	return n
}
