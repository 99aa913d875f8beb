package harvest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// memoryStore is an in-memory StorageManager for exercising the harvest
// loops without a database.
type memoryStore struct {
	posts         map[string]*models.Post
	order         []string
	conversations map[string]*models.Conversation
	progress      map[string]*models.Progress
	failSaves     bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		posts:         make(map[string]*models.Post),
		conversations: make(map[string]*models.Conversation),
		progress:      make(map[string]*models.Progress),
	}
}

func (m *memoryStore) PostStorage() interfaces.PostStorage                 { return m }
func (m *memoryStore) ConversationStorage() interfaces.ConversationStorage { return m }
func (m *memoryStore) ProgressStorage() interfaces.ProgressStorage         { return m }
func (m *memoryStore) Close() error                                        { return nil }

func (m *memoryStore) SavePost(post *models.Post) error {
	return m.SavePosts([]*models.Post{post})
}

func (m *memoryStore) SavePosts(posts []*models.Post) error {
	if m.failSaves {
		return errors.New("save failed")
	}
	for _, p := range posts {
		if p.ID == "" {
			return errors.New("post missing id")
		}
	}
	for _, p := range posts {
		if _, ok := m.posts[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		clone := *p
		m.posts[p.ID] = &clone
	}
	return nil
}

func (m *memoryStore) GetPost(id string) (*models.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (m *memoryStore) PostExists(id string) (bool, error) {
	_, ok := m.posts[id]
	return ok, nil
}

func (m *memoryStore) ListPosts(username string, order interfaces.PostOrder) ([]*models.Post, error) {
	var out []*models.Post
	for _, id := range m.order {
		if p := m.posts[id]; p.Username == username {
			out = append(out, p)
		}
	}
	if order == interfaces.OrderByCreatedDesc {
		sort.SliceStable(out, func(i, j int) bool { return out[i].SortTime().After(out[j].SortTime()) })
	}
	return out, nil
}

func (m *memoryStore) CountPosts(username string) (int, error) {
	posts, _ := m.ListPosts(username, interfaces.OrderByInsertion)
	return len(posts), nil
}

func (m *memoryStore) SaveConversation(conv *models.Conversation) error {
	if m.failSaves {
		return errors.New("save failed")
	}
	conv.PostCount = conv.CountPosts()
	m.conversations[conv.RootID] = conv
	return nil
}

func (m *memoryStore) GetConversation(rootID string) (*models.Conversation, error) {
	return m.conversations[rootID], nil
}

func (m *memoryStore) ConversationExists(rootID string) (bool, error) {
	_, ok := m.conversations[rootID]
	return ok, nil
}

func (m *memoryStore) ListConversations(username string) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for _, c := range m.conversations {
		if c.Username == username {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryStore) CountConversations(username string) (int, error) {
	convs, _ := m.ListConversations(username)
	return len(convs), nil
}

func (m *memoryStore) GetProgress(username, phase string) (*models.Progress, error) {
	if p, ok := m.progress[username+"|"+phase]; ok {
		return p, nil
	}
	return &models.Progress{Username: username, Phase: phase}, nil
}

func (m *memoryStore) SaveProgress(progress *models.Progress) error {
	m.progress[progress.Username+"|"+progress.Phase] = progress
	return nil
}

// fakeSource is a scripted PageSource: each ListVisiblePosts call serves
// the next page, the last page repeating; likewise for content extents.
type fakeSource struct {
	pages   [][]models.ExtractedPost
	extents []int

	pageIdx   int
	extentIdx int

	loggedOut bool
	navErr    error
	listErr   error

	navigated  []string
	scrolls    []int
	recreated  int
	expanderOK int
}

var _ interfaces.PageSource = (*fakeSource)(nil)

func (f *fakeSource) Navigate(ctx context.Context, url string) (string, error) {
	if f.navErr != nil {
		return "", f.navErr
	}
	f.navigated = append(f.navigated, url)
	return url, nil
}

func (f *fakeSource) IsLoggedOut(ctx context.Context) (bool, error) {
	return f.loggedOut, nil
}

func (f *fakeSource) ExpandTruncated(ctx context.Context) (int, error) {
	return 0, nil
}

func (f *fakeSource) ListVisiblePosts(ctx context.Context) ([]models.ExtractedPost, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[f.pageIdx]
	if f.pageIdx < len(f.pages)-1 {
		f.pageIdx++
	}
	out := make([]models.ExtractedPost, len(page))
	copy(out, page)
	return out, nil
}

func (f *fakeSource) ScrollBy(ctx context.Context, delta int) error {
	f.scrolls = append(f.scrolls, delta)
	return nil
}

func (f *fakeSource) ProbeContentExtent(ctx context.Context) (int, error) {
	if len(f.extents) == 0 {
		return 0, nil
	}
	extent := f.extents[f.extentIdx]
	if f.extentIdx < len(f.extents)-1 {
		f.extentIdx++
	}
	return extent, nil
}

func (f *fakeSource) ClickAllExpanders(ctx context.Context, labels []string) (int, error) {
	f.expanderOK++
	return 0, nil
}

func (f *fakeSource) Recreate(ctx context.Context) error {
	f.recreated++
	f.navErr = nil
	return nil
}

func (f *fakeSource) Close() error { return nil }

// fakeFetcher serves image refs from a fixed map and fails on anything
// else.
type fakeFetcher struct {
	data map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	if data, ok := f.data[ref]; ok {
		return data, nil
	}
	return "", fmt.Errorf("unknown ref %s", ref)
}
