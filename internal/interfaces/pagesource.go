package interfaces

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrLoggedOut is returned when the page source lands on a login screen.
// It is fatal for the whole run: no further progress is possible without
// interactive re-authentication.
var ErrLoggedOut = errors.New("page source is logged out")

// SessionError wraps page-source failures that invalidate the underlying
// browser session (crashed renderer, closed target). Callers recover by
// recreating the session and retrying the current unit of work.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("page source session failed: %v", e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsSessionError reports whether err is (or wraps) a SessionError.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

// PageSource is the consumed browser capability. All calls are blocking;
// a session must never be driven by two callers at once. Implementations
// return SessionError for failures that require session recreation.
type PageSource interface {
	// Navigate loads the URL and returns the URL actually reached after
	// redirects.
	Navigate(ctx context.Context, url string) (string, error)

	// IsLoggedOut reports whether the current page is a login screen.
	IsLoggedOut(ctx context.Context) (bool, error)

	// ExpandTruncated clicks every truncated-body affordance currently on
	// the page and returns how many were clicked.
	ExpandTruncated(ctx context.Context) (int, error)

	// ListVisiblePosts extracts every post currently rendered, in visual
	// order with positions assigned.
	ListVisiblePosts(ctx context.Context) ([]models.ExtractedPost, error)

	// ScrollBy scrolls the viewport vertically by delta pixels (negative
	// scrolls up).
	ScrollBy(ctx context.Context, delta int) error

	// ProbeContentExtent returns the current loaded-content extent, used
	// to detect stagnation across load-more attempts.
	ProbeContentExtent(ctx context.Context) (int, error)

	// ClickAllExpanders clicks every button whose label contains one of
	// the given lowercase labels and returns how many were clicked.
	ClickAllExpanders(ctx context.Context, labels []string) (int, error)

	// Recreate tears down the current session and starts a fresh one.
	Recreate(ctx context.Context) error

	Close() error
}

// ImageFetcher resolves a media reference to inline content (a data URI).
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}
