package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	post         *PostStorage
	conversation interfaces.ConversationStorage
	progress     interfaces.ProgressStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	post, err := NewPostStorage(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		post:         post,
		conversation: NewConversationStorage(db, logger),
		progress:     NewProgressStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// PostStorage returns the Post storage interface
func (m *Manager) PostStorage() interfaces.PostStorage {
	return m.post
}

// ConversationStorage returns the Conversation storage interface
func (m *Manager) ConversationStorage() interfaces.ConversationStorage {
	return m.conversation
}

// ProgressStorage returns the Progress storage interface
func (m *Manager) ProgressStorage() interfaces.ProgressStorage {
	return m.progress
}

// Close closes the storage manager and its database connection
func (m *Manager) Close() error {
	if m.post != nil {
		if err := m.post.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to release post sequence")
		}
	}
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
