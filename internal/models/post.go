package models

import "time"

// Post is a single authored message captured from an account's timeline.
// IDs are platform-global, so the ID alone is a safe primary key across
// every harvested account.
type Post struct {
	ID        string     `badgerhold:"key" json:"id"`
	Username  string     `badgerhold:"index" json:"username"`
	Link      string     `json:"link"`
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	HasImage  bool       `json:"has_image"`
	HasVideo  bool       `json:"has_video"`

	// Sequence preserves scrape-insertion order across store reads; it is
	// assigned by the store on first write and survives later upserts.
	Sequence  uint64    `json:"sequence"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// SortTime returns the timestamp used for newest-first ordering. Posts
// without an observed origin timestamp fall back to their scrape time.
func (p *Post) SortTime() time.Time {
	if p.CreatedAt != nil {
		return *p.CreatedAt
	}
	return p.ScrapedAt
}
