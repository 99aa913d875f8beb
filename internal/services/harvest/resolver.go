package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// errEmptyExtraction marks a discussion view that yielded no posts. It is
// treated as a transient failure: nothing is persisted for the root.
var errEmptyExtraction = errors.New("extraction yielded no posts")

// Resolver reconstructs the conversation behind each stored post of an
// account: it expands the discussion view, extracts the flat post list,
// structures it and persists the result. Roots with an existing
// conversation are skipped without touching the page source.
type Resolver struct {
	source        interfaces.PageSource
	posts         interfaces.PostStorage
	conversations interfaces.ConversationStorage
	progress      interfaces.ProgressStorage
	images        interfaces.ImageFetcher
	config        common.HarvestConfig
	logger        arbor.ILogger
}

// NewResolver creates a conversation resolver.
func NewResolver(source interfaces.PageSource, storage interfaces.StorageManager, images interfaces.ImageFetcher, config common.HarvestConfig, logger arbor.ILogger) *Resolver {
	return &Resolver{
		source:        source,
		posts:         storage.PostStorage(),
		conversations: storage.ConversationStorage(),
		progress:      storage.ProgressStorage(),
		images:        images,
		config:        config,
		logger:        logger,
	}
}

// RunSummary reports the outcome of one resolution pass.
type RunSummary struct {
	Processed int
	Skipped   int
	Failed    int
}

// Run resolves conversations for every stored post of the account that
// does not already have one. A single root's failure never aborts the
// pass; only a logged-out state or a store failure does.
func (r *Resolver) Run(ctx context.Context, username string) (RunSummary, error) {
	summary := RunSummary{}
	log := r.logger.WithCorrelationId(uuid.NewString())

	roots, err := r.posts.ListPosts(username, interfaces.OrderByInsertion)
	if err != nil {
		return summary, fmt.Errorf("failed to list posts for %s: %w", username, err)
	}
	if len(roots) == 0 {
		log.Warn().Str("username", username).Msg("No stored posts; run timeline collection first")
		return summary, nil
	}

	log.Info().
		Str("username", username).
		Int("roots", len(roots)).
		Msg("Starting conversation resolution")

	sinceRecycle := 0
	for i, root := range roots {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// Existence in the conversation collection is the authority for
		// "already done"; the progress cursor is advisory only.
		exists, err := r.conversations.ConversationExists(root.ID)
		if err != nil {
			return summary, fmt.Errorf("failed to check conversation %s: %w", root.ID, err)
		}
		if exists {
			summary.Skipped++
			continue
		}

		// Recycle the browser session periodically to keep long passes
		// from exhausting the renderer.
		if r.config.SessionRecycleEvery > 0 && sinceRecycle >= r.config.SessionRecycleEvery {
			log.Info().Msg("Recycling browser session")
			if err := r.source.Recreate(ctx); err != nil {
				log.Warn().Err(err).Msg("Session recycle failed; continuing with current session")
			}
			sinceRecycle = 0
		}
		sinceRecycle++

		log.Info().
			Str("root_id", root.ID).
			Int("index", i+1).
			Int("of", len(roots)).
			Str("link", root.Link).
			Msg("Resolving conversation")

		err = r.resolveRoot(ctx, root, username)

		// A session-level failure gets one retry on a fresh session
		// before the root is written off for this pass.
		if err != nil && interfaces.IsSessionError(err) {
			log.Warn().Err(err).Str("root_id", root.ID).Msg("Session failed; recreating and retrying root")
			if recErr := r.source.Recreate(ctx); recErr != nil {
				return summary, fmt.Errorf("failed to recreate session: %w", recErr)
			}
			sinceRecycle = 0
			if werr := wait(ctx, r.config.RootCooldown); werr != nil {
				return summary, werr
			}
			err = r.resolveRoot(ctx, root, username)
		}

		if err != nil {
			if errors.Is(err, interfaces.ErrLoggedOut) {
				return summary, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}

			summary.Failed++
			log.Warn().Err(err).Str("root_id", root.ID).Msg("Conversation resolution failed; continuing")

			if err := wait(ctx, r.config.RootCooldown); err != nil {
				return summary, err
			}
			continue
		}

		summary.Processed++

		if err := r.progress.SaveProgress(&models.Progress{
			Username:   username,
			Phase:      models.PhaseConversations,
			LastIndex:  i,
			LastPostID: root.ID,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to record resolution progress")
		}
	}

	log.Info().
		Str("username", username).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Conversation resolution complete")

	return summary, nil
}

// resolveRoot navigates to the root's permalink, fully expands the
// discussion, extracts the flat post list and persists the structured
// conversation. Nothing is persisted when extraction comes back empty.
func (r *Resolver) resolveRoot(ctx context.Context, root *models.Post, username string) error {
	if _, err := r.source.Navigate(ctx, root.Link); err != nil {
		return err
	}

	loggedOut, err := r.source.IsLoggedOut(ctx)
	if err != nil {
		return err
	}
	if loggedOut {
		return interfaces.ErrLoggedOut
	}

	// Scroll up first so continuation posts rendered above the root are
	// loaded before expansion starts.
	if err := r.source.ScrollBy(ctx, -scrollStep); err != nil {
		return err
	}

	count, err := r.expandDiscussion(ctx)
	if err != nil {
		return err
	}
	r.logger.Debug().Int("visible", count).Str("root_id", root.ID).Msg("Discussion expanded")

	// Back to the top so the final extraction sees the whole view.
	if err := r.source.ScrollBy(ctx, -2*scrollStep); err != nil {
		return err
	}

	flat, err := r.source.ListVisiblePosts(ctx)
	if err != nil {
		return err
	}
	if len(flat) == 0 {
		return errEmptyExtraction
	}

	r.inlineImages(ctx, flat)

	conv := BuildConversation(root, flat, username)
	if err := r.conversations.SaveConversation(conv); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", root.ID, err)
	}

	r.logger.Info().
		Str("root_id", root.ID).
		Int("posts", conv.PostCount).
		Int("thread", len(conv.Thread)).
		Int("replies", len(conv.Replies)).
		Msg("Conversation saved")

	return nil
}

// expandDiscussion scrolls and clicks expansion affordances until the
// visible post count holds steady for the configured number of rounds.
// The iteration cap and wall-clock timeout each force progression on
// pathological pages, returning whatever was accumulated.
func (r *Resolver) expandDiscussion(ctx context.Context) (int, error) {
	lastCount := 0
	stableRounds := 0
	deadline := time.Now().Add(r.config.ExpandTimeout)

	for iteration := 0; iteration < r.config.MaxExpandIterations && stableRounds < r.config.StabilityRounds; iteration++ {
		if err := ctx.Err(); err != nil {
			return lastCount, err
		}
		if time.Now().After(deadline) {
			r.logger.Debug().Msg("Discussion expansion timed out; proceeding with current view")
			break
		}

		// Up to reveal the thread above the root, then down for more.
		if err := r.source.ScrollBy(ctx, -3000); err != nil {
			return lastCount, err
		}
		if err := r.source.ScrollBy(ctx, scrollStep); err != nil {
			return lastCount, err
		}

		if _, err := r.source.ExpandTruncated(ctx); err != nil {
			return lastCount, err
		}
		if _, err := r.source.ClickAllExpanders(ctx, r.config.ExpanderLabels); err != nil {
			return lastCount, err
		}

		visible, err := r.source.ListVisiblePosts(ctx)
		if err != nil {
			return lastCount, err
		}

		if len(visible) == lastCount {
			stableRounds++
		} else {
			stableRounds = 0
			lastCount = len(visible)
		}
	}

	return lastCount, nil
}

// inlineImages resolves each post's image refs to inline content. A
// failed fetch drops only that image.
func (r *Resolver) inlineImages(ctx context.Context, flat []models.ExtractedPost) {
	if r.images == nil {
		return
	}
	for i := range flat {
		for _, ref := range flat[i].ImageRefs {
			data, err := r.images.Fetch(ctx, ref)
			if err != nil {
				r.logger.Debug().Err(err).Str("ref", ref).Msg("Dropping image after failed fetch")
				continue
			}
			flat[i].Images = append(flat[i].Images, data)
		}
	}
}
