package models

import "time"

// ExtractedPost is one post as lifted from a rendered page, in visual
// order. Position is only meaningful within a single extraction and is
// never persisted; it is the ordering key the structuring heuristic
// depends on.
type ExtractedPost struct {
	Position  int
	ID        string
	Author    string
	Link      string
	Text      string
	CreatedAt *time.Time
	HasImage  bool
	HasVideo  bool

	// ImageRefs are platform media URLs still to be fetched; Images holds
	// the inlined results. A failed fetch drops the ref, nothing else.
	ImageRefs []string
	Images    []string
}

// Valid reports whether the extraction recovered enough of the post to
// use it: an identifier, an author and a body. Anything less is silently
// skipped by the collectors.
func (e *ExtractedPost) Valid() bool {
	return e.ID != "" && e.Author != "" && e.Text != ""
}
