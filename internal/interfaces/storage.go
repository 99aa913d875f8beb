package interfaces

import (
	"github.com/ternarybob/colligo/internal/models"
)

// PostOrder selects the ordering of ListPosts results.
type PostOrder string

const (
	// OrderByInsertion returns posts in scrape-insertion order.
	OrderByInsertion PostOrder = "insertion"
	// OrderByCreatedDesc returns posts newest-first by origin timestamp,
	// falling back to scrape time when the origin timestamp was never
	// observed.
	OrderByCreatedDesc PostOrder = "created_desc"
)

// PostStorage persists timeline posts keyed by their platform-global ID.
// Writes are upserts: writing an existing ID fully replaces the record.
type PostStorage interface {
	SavePost(post *models.Post) error

	// SavePosts writes the batch atomically: either every post in the
	// batch becomes visible or none does.
	SavePosts(posts []*models.Post) error

	// GetPost returns nil without error when the ID is unknown.
	GetPost(id string) (*models.Post, error)
	PostExists(id string) (bool, error)

	ListPosts(username string, order PostOrder) ([]*models.Post, error)
	CountPosts(username string) (int, error)
}

// ConversationStorage persists resolved conversations keyed by root post ID.
type ConversationStorage interface {
	SaveConversation(conv *models.Conversation) error

	// GetConversation returns nil without error when no conversation has
	// been resolved for the root.
	GetConversation(rootID string) (*models.Conversation, error)
	ConversationExists(rootID string) (bool, error)

	ListConversations(username string) ([]*models.Conversation, error)
	CountConversations(username string) (int, error)
}

// ProgressStorage persists the per-(account, phase) resume cursor.
type ProgressStorage interface {
	// GetProgress returns a zero-value cursor, never an absence error, so
	// callers always have something to resume from.
	GetProgress(username, phase string) (*models.Progress, error)
	SaveProgress(progress *models.Progress) error
}

// StorageManager bundles the entity store collections behind one handle.
type StorageManager interface {
	PostStorage() PostStorage
	ConversationStorage() ConversationStorage
	ProgressStorage() ProgressStorage
	Close() error
}
