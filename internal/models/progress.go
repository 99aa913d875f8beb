package models

import "time"

// Harvest phases tracked in the progress collection.
const (
	PhaseTimeline      = "timeline"
	PhaseConversations = "conversations"
	PhaseExport        = "export"
)

// Progress is the resume cursor for one (account, phase) pair.
//
// The cursor is advisory: conversation resolution never trusts LastIndex
// to decide whether a root is done, it checks conversation existence
// instead. A stale cursor can therefore never cause skipped work.
type Progress struct {
	Username   string    `json:"username"`
	Phase      string    `json:"phase"`
	LastIndex  int       `json:"last_index"`
	LastPostID string    `json:"last_post_id"`
	LastRunAt  time.Time `json:"last_run_at"`
}
