package badger

import (
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PostStorage implements the PostStorage interface for Badger
type PostStorage struct {
	db     *BadgerDB
	seq    *badgerdb.Sequence
	logger arbor.ILogger
}

// NewPostStorage creates a new PostStorage instance. The badger sequence
// backs scrape-insertion ordering across process restarts.
func NewPostStorage(db *BadgerDB, logger arbor.ILogger) (*PostStorage, error) {
	seq, err := db.Store().Badger().GetSequence([]byte("colligo/post-sequence"), 128)
	if err != nil {
		return nil, fmt.Errorf("failed to create post sequence: %w", err)
	}
	return &PostStorage{
		db:     db,
		seq:    seq,
		logger: logger,
	}, nil
}

func (s *PostStorage) SavePost(post *models.Post) error {
	return s.SavePosts([]*models.Post{post})
}

// SavePosts writes the batch inside a single badger transaction: either
// every post becomes visible or none does. Re-upserting an existing ID
// keeps its original sequence number and scrape time so insertion order
// is stable across runs.
func (s *PostStorage) SavePosts(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	for _, post := range posts {
		if post.ID == "" {
			return fmt.Errorf("post ID is required")
		}
		if post.Username == "" {
			return fmt.Errorf("post username is required: %s", post.ID)
		}
	}

	now := time.Now()
	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		for _, post := range posts {
			var existing models.Post
			switch err := s.db.Store().TxGet(tx, post.ID, &existing); err {
			case nil:
				post.Sequence = existing.Sequence
				post.ScrapedAt = existing.ScrapedAt
			case badgerhold.ErrNotFound:
				next, err := s.seq.Next()
				if err != nil {
					return fmt.Errorf("failed to advance post sequence: %w", err)
				}
				post.Sequence = next
				post.ScrapedAt = now
			default:
				return fmt.Errorf("failed to check existing post %s: %w", post.ID, err)
			}

			if err := s.db.Store().TxUpsert(tx, post.ID, post); err != nil {
				return fmt.Errorf("failed to save post %s: %w", post.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("post batch write failed: %w", err)
	}

	return nil
}

func (s *PostStorage) GetPost(id string) (*models.Post, error) {
	var post models.Post
	if err := s.db.Store().Get(id, &post); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

func (s *PostStorage) PostExists(id string) (bool, error) {
	post, err := s.GetPost(id)
	if err != nil {
		return false, err
	}
	return post != nil, nil
}

func (s *PostStorage) ListPosts(username string, order interfaces.PostOrder) ([]*models.Post, error) {
	var posts []models.Post
	if err := s.db.Store().Find(&posts, badgerhold.Where("Username").Eq(username).Index("Username")); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	switch order {
	case interfaces.OrderByCreatedDesc:
		sort.SliceStable(posts, func(i, j int) bool {
			ti, tj := posts[i].SortTime(), posts[j].SortTime()
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return posts[i].Sequence > posts[j].Sequence
		})
	default:
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].Sequence < posts[j].Sequence
		})
	}

	result := make([]*models.Post, len(posts))
	for i := range posts {
		result[i] = &posts[i]
	}
	return result, nil
}

func (s *PostStorage) CountPosts(username string) (int, error) {
	count, err := s.db.Store().Count(&models.Post{}, badgerhold.Where("Username").Eq(username).Index("Username"))
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return int(count), nil
}

// Close releases the insertion-order sequence.
func (s *PostStorage) Close() error {
	if s.seq != nil {
		return s.seq.Release()
	}
	return nil
}
