package badger

import (
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ConversationStorage implements the ConversationStorage interface for Badger
type ConversationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewConversationStorage creates a new ConversationStorage instance
func NewConversationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ConversationStorage {
	return &ConversationStorage{
		db:     db,
		logger: logger,
	}
}

// SaveConversation replaces any prior record for the root wholesale.
// Only the first-scrape timestamp survives a re-resolution.
func (s *ConversationStorage) SaveConversation(conv *models.Conversation) error {
	if conv.RootID == "" {
		return fmt.Errorf("conversation root ID is required")
	}
	if conv.Username == "" {
		return fmt.Errorf("conversation username is required: %s", conv.RootID)
	}

	now := time.Now()
	conv.PostCount = conv.CountPosts()
	conv.UpdatedAt = now
	conv.ScrapedAt = now

	var existing models.Conversation
	if err := s.db.Store().Get(conv.RootID, &existing); err == nil {
		conv.ScrapedAt = existing.ScrapedAt
	}

	if err := s.db.Store().Upsert(conv.RootID, conv); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.RootID, err)
	}
	return nil
}

func (s *ConversationStorage) GetConversation(rootID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.Store().Get(rootID, &conv); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *ConversationStorage) ConversationExists(rootID string) (bool, error) {
	conv, err := s.GetConversation(rootID)
	if err != nil {
		return false, err
	}
	return conv != nil, nil
}

func (s *ConversationStorage) ListConversations(username string) ([]*models.Conversation, error) {
	var convs []models.Conversation
	if err := s.db.Store().Find(&convs, badgerhold.Where("Username").Eq(username).Index("Username")); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].ScrapedAt.After(convs[j].ScrapedAt)
	})

	result := make([]*models.Conversation, len(convs))
	for i := range convs {
		result[i] = &convs[i]
	}
	return result, nil
}

func (s *ConversationStorage) CountConversations(username string) (int, error) {
	count, err := s.db.Store().Count(&models.Conversation{}, badgerhold.Where("Username").Eq(username).Index("Username"))
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return int(count), nil
}
