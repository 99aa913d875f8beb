// -----------------------------------------------------------------------
// ChromeDP Page Source
// Drives an authenticated Chrome profile (User Data Directory) so the
// harvester sees the same timeline a logged-in user does.
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Session implements the PageSource capability on a single chromedp
// browser context. A session is exclusive: callers must not drive it
// concurrently.
type Session struct {
	config common.BrowserConfig
	logger arbor.ILogger
	parser *Parser

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	crashed       atomic.Bool
}

// Compile-time assertion
var _ interfaces.PageSource = (*Session)(nil)

// NewSession launches a browser against the configured user data
// directory and verifies it responds before returning.
func NewSession(config common.BrowserConfig, logger arbor.ILogger) (*Session, error) {
	s := &Session{
		config: config,
		logger: logger,
		parser: NewParser(config.BaseURL),
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(1280, 900),
	)
	if config.UserDataDir != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserDataDir(config.UserDataDir))
	}
	if config.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(config.ExecPath))
	}
	if config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(config.UserAgent))
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)

	if err := s.startBrowser(); err != nil {
		s.allocCancel()
		return nil, err
	}

	logger.Info().
		Str("user_data_dir", config.UserDataDir).
		Bool("headless", config.Headless).
		Msg("Browser session started")

	return s, nil
}

// startBrowser creates a fresh browser context off the allocator and
// runs a startup test. Must be called with no in-flight operations.
func (s *Session) startBrowser() error {
	browserCtx, browserCancel := chromedp.NewContext(s.allocCtx)

	s.crashed.Store(false)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if _, ok := ev.(*inspector.EventTargetCrashed); ok {
			s.crashed.Store(true)
			s.logger.Warn().Msg("Browser target crashed")
		}
	})

	testCtx, cancel := context.WithTimeout(browserCtx, s.config.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	s.mu.Lock()
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.mu.Unlock()

	return nil
}

// run executes chromedp actions against the session with a timeout,
// honoring caller cancellation and classifying session-level failures.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	browserCtx := s.browserCtx
	s.mu.Unlock()

	if browserCtx == nil {
		return &interfaces.SessionError{Err: fmt.Errorf("session closed")}
	}

	runCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.classify(err)
	}
	return nil
}

// classify maps renderer-level failures onto SessionError so callers
// know to recreate the session rather than retry in place.
func (s *Session) classify(err error) error {
	if err == nil {
		return nil
	}
	if s.crashed.Load() {
		return &interfaces.SessionError{Err: err}
	}
	msg := err.Error()
	for _, marker := range []string{"target crashed", "target closed", "session closed", "websocket url timeout", "context canceled"} {
		if strings.Contains(msg, marker) {
			return &interfaces.SessionError{Err: err}
		}
	}
	return err
}

// Navigate loads the URL and returns the URL actually reached.
func (s *Session) Navigate(ctx context.Context, url string) (string, error) {
	var current string
	err := s.run(ctx, s.config.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.Sleep(s.config.SettleDelay),
		chromedp.Location(&current),
	)
	if err != nil {
		return "", fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return current, nil
}

// IsLoggedOut reports whether the session has been bounced to a login
// screen.
func (s *Session) IsLoggedOut(ctx context.Context) (bool, error) {
	var current string
	if err := s.run(ctx, s.config.OperationTimeout, chromedp.Location(&current)); err != nil {
		return false, err
	}
	return strings.Contains(current, "/login") || strings.Contains(current, "/i/flow/login"), nil
}

// ExpandTruncated clicks every truncated-body affordance on the page.
func (s *Session) ExpandTruncated(ctx context.Context) (int, error) {
	total := 0
	// Repeated passes: expanding one body can reveal another affordance.
	for pass := 0; pass < maxExpandPasses; pass++ {
		var clicked int
		if err := s.run(ctx, s.config.OperationTimeout, chromedp.Evaluate(scriptExpandTruncated, &clicked)); err != nil {
			return total, err
		}
		total += clicked
		if clicked == 0 {
			break
		}
		if err := s.run(ctx, s.config.OperationTimeout, chromedp.Sleep(expandSettle)); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ListVisiblePosts snapshots the DOM and extracts every rendered post in
// visual order.
func (s *Session) ListVisiblePosts(ctx context.Context) ([]models.ExtractedPost, error) {
	var html string
	if err := s.run(ctx, s.config.OperationTimeout, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, err
	}
	return s.parser.ParsePosts(html)
}

// ScrollBy scrolls the viewport vertically by delta pixels.
func (s *Session) ScrollBy(ctx context.Context, delta int) error {
	return s.run(ctx, s.config.OperationTimeout,
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", delta), nil),
		chromedp.Sleep(scrollSettle),
	)
}

// ProbeContentExtent returns the loaded-content extent (scroll height).
func (s *Session) ProbeContentExtent(ctx context.Context) (int, error) {
	var extent int
	if err := s.run(ctx, s.config.OperationTimeout, chromedp.Evaluate(scriptContentExtent, &extent)); err != nil {
		return 0, err
	}
	return extent, nil
}

// ClickAllExpanders clicks every button whose label matches one of the
// given lowercase labels.
func (s *Session) ClickAllExpanders(ctx context.Context, labels []string) (int, error) {
	script, err := scriptClickExpanders(labels)
	if err != nil {
		return 0, err
	}
	var clicked int
	if err := s.run(ctx, s.config.OperationTimeout, chromedp.Evaluate(script, &clicked)); err != nil {
		return 0, err
	}
	if clicked > 0 {
		if err := s.run(ctx, s.config.OperationTimeout, chromedp.Sleep(expandSettle)); err != nil {
			return clicked, err
		}
	}
	return clicked, nil
}

// Recreate tears down the browser context and starts a fresh one off the
// same allocator, preserving the authenticated profile.
func (s *Session) Recreate(ctx context.Context) error {
	s.mu.Lock()
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCtx = nil
		s.browserCancel = nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.startBrowser(); err != nil {
		return fmt.Errorf("failed to recreate browser session: %w", err)
	}
	s.logger.Info().Msg("Browser session recreated")
	return nil
}

// Close shuts the session down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCtx = nil
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

const (
	maxExpandPasses = 10
	expandSettle    = 1200 * time.Millisecond
	scrollSettle    = 500 * time.Millisecond
)
