package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"golang.org/x/time/rate"
)

// Collector populates the entity store with the current snapshot of an
// account's posts, newest-first, by driving the page source until one of
// the stop conditions fires.
type Collector struct {
	source   interfaces.PageSource
	posts    interfaces.PostStorage
	progress interfaces.ProgressStorage
	config   common.HarvestConfig
	baseURL  string
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

// NewCollector creates a timeline collector.
func NewCollector(source interfaces.PageSource, storage interfaces.StorageManager, config common.HarvestConfig, baseURL string, logger arbor.ILogger) *Collector {
	scrollDelay := config.ScrollDelay
	if scrollDelay <= 0 {
		scrollDelay = time.Second
	}
	return &Collector{
		source:   source,
		posts:    storage.PostStorage(),
		progress: storage.ProgressStorage(),
		config:   config,
		baseURL:  baseURL,
		limiter:  rate.NewLimiter(rate.Every(scrollDelay), 1),
		logger:   logger,
	}
}

// collectState is the mutable loop state, threaded explicitly so the loop
// is testable without a live session.
type collectState struct {
	known                 map[string]struct{}
	staged                []*models.Post
	consecutiveDuplicates int
	stagnantRounds        int
	lastExtent            int
	total                 int
	lastPostID            string
}

// Run collects the account's timeline until a stop condition fires:
// duplicate saturation, the post cap, stagnation, or the wall-clock guard.
// It returns the number of posts newly stored this run.
func (c *Collector) Run(ctx context.Context, username string) (int, error) {
	log := c.logger

	existing, err := c.posts.ListPosts(username, interfaces.OrderByInsertion)
	if err != nil {
		return 0, fmt.Errorf("failed to load known posts: %w", err)
	}

	state := &collectState{known: make(map[string]struct{}, len(existing))}
	for _, p := range existing {
		state.known[p.ID] = struct{}{}
	}
	state.total = len(existing)

	log.Info().
		Str("username", username).
		Int("known_posts", state.total).
		Msg("Starting timeline collection")

	if _, err := c.source.Navigate(ctx, c.baseURL+"/"+username); err != nil {
		return 0, fmt.Errorf("failed to open timeline: %w", err)
	}

	loggedOut, err := c.source.IsLoggedOut(ctx)
	if err != nil {
		return 0, err
	}
	if loggedOut {
		return 0, interfaces.ErrLoggedOut
	}

	added := 0
	deadline := time.Now().Add(c.config.TimelineTimeout)

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if round >= maxTimelineRounds {
			log.Warn().Int("rounds", round).Msg("Stopping: timeline iteration cap reached")
			break
		}

		if _, err := c.source.ExpandTruncated(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to expand truncated posts")
		}

		visible, err := c.source.ListVisiblePosts(ctx)
		if err != nil {
			return added, fmt.Errorf("failed to enumerate visible posts: %w", err)
		}

		c.ingest(state, visible, username)

		if len(state.staged) > 0 {
			batch := len(state.staged)
			if err := c.flush(state, username); err != nil {
				return added, err
			}
			added += batch
			log.Info().
				Str("username", username).
				Int("batch", batch).
				Int("total", state.total).
				Msg("Stored new posts")
		}

		// Stop condition A: duplicate saturation. The rest of the
		// account's history is presumed already collected.
		if c.config.DuplicateThreshold > 0 && state.consecutiveDuplicates >= c.config.DuplicateThreshold {
			log.Info().
				Int("threshold", c.config.DuplicateThreshold).
				Msg("Stopping: consecutive duplicate threshold reached")
			break
		}

		// Stop condition B: size cap.
		if c.config.MaxPosts >= 0 && state.total >= c.config.MaxPosts {
			log.Info().Int("max_posts", c.config.MaxPosts).Msg("Stopping: post cap reached")
			break
		}

		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", c.config.TimelineTimeout).Msg("Stopping: timeline wall-clock guard tripped")
			break
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return added, err
		}
		if err := c.source.ScrollBy(ctx, scrollStep); err != nil {
			return added, fmt.Errorf("failed to scroll timeline: %w", err)
		}

		// Stop condition C: stagnation. No extent growth across repeated
		// load-more attempts means end of history or a load failure.
		extent, err := c.source.ProbeContentExtent(ctx)
		if err != nil {
			return added, fmt.Errorf("failed to probe content extent: %w", err)
		}
		if extent == state.lastExtent {
			state.stagnantRounds++
			log.Debug().
				Int("round", state.stagnantRounds).
				Int("limit", c.config.StagnationRounds).
				Msg("No content growth")
			if state.stagnantRounds >= c.config.StagnationRounds {
				log.Info().Msg("Stopping: content extent stagnant")
				break
			}
			if err := wait(ctx, stagnationPause); err != nil {
				return added, err
			}
		} else {
			state.stagnantRounds = 0
			state.lastExtent = extent
		}
	}

	if err := c.progress.SaveProgress(&models.Progress{
		Username:   username,
		Phase:      models.PhaseTimeline,
		LastIndex:  state.total,
		LastPostID: state.lastPostID,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record timeline progress")
	}

	log.Info().
		Str("username", username).
		Int("total", state.total).
		Msg("Timeline collection complete")

	return added, nil
}

// ingest stages every valid, not-yet-known visible post and maintains the
// consecutive-duplicate counter. Posts missing an identifier, author or
// body are skipped without touching either count.
func (c *Collector) ingest(state *collectState, visible []models.ExtractedPost, username string) {
	stagedIDs := make(map[string]struct{}, len(state.staged))
	for _, p := range state.staged {
		stagedIDs[p.ID] = struct{}{}
	}

	for i := range visible {
		item := &visible[i]
		if !item.Valid() {
			continue
		}

		_, known := state.known[item.ID]
		if !known {
			_, known = stagedIDs[item.ID]
		}
		if known {
			state.consecutiveDuplicates++
			continue
		}

		stagedIDs[item.ID] = struct{}{}
		state.consecutiveDuplicates = 0
		state.staged = append(state.staged, &models.Post{
			ID:        item.ID,
			Username:  username,
			Link:      fmt.Sprintf("%s/%s/status/%s", c.baseURL, username, item.ID),
			Text:      item.Text,
			CreatedAt: item.CreatedAt,
			HasImage:  item.HasImage,
			HasVideo:  item.HasVideo,
		})
	}
}

// flush writes the staged posts as one atomic batch. The known set only
// advances on success, so a failed batch never counts as stored work.
func (c *Collector) flush(state *collectState, username string) error {
	if err := c.posts.SavePosts(state.staged); err != nil {
		return fmt.Errorf("failed to store post batch for %s: %w", username, err)
	}
	for _, p := range state.staged {
		state.known[p.ID] = struct{}{}
		state.lastPostID = p.ID
	}
	state.total += len(state.staged)
	state.staged = state.staged[:0]
	return nil
}

const (
	scrollStep      = 5000
	stagnationPause = 8 * time.Second

	// maxTimelineRounds caps the scroll loop independently of the
	// wall-clock guard.
	maxTimelineRounds = 10000
)

// wait sleeps for d or until the context ends, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
