package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ProgressStorage implements the ProgressStorage interface for Badger
type ProgressStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProgressStorage creates a new ProgressStorage instance
func NewProgressStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProgressStorage {
	return &ProgressStorage{
		db:     db,
		logger: logger,
	}
}

func progressKey(username, phase string) string {
	return username + "|" + phase
}

// GetProgress returns a zero-value cursor when none has been written yet,
// so callers always have something to resume from.
func (s *ProgressStorage) GetProgress(username, phase string) (*models.Progress, error) {
	var progress models.Progress
	if err := s.db.Store().Get(progressKey(username, phase), &progress); err != nil {
		if err == badgerhold.ErrNotFound {
			return &models.Progress{Username: username, Phase: phase}, nil
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return &progress, nil
}

func (s *ProgressStorage) SaveProgress(progress *models.Progress) error {
	if progress.Username == "" || progress.Phase == "" {
		return fmt.Errorf("progress username and phase are required")
	}

	progress.LastRunAt = time.Now()
	if err := s.db.Store().Upsert(progressKey(progress.Username, progress.Phase), progress); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}
