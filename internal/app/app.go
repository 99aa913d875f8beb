package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/browser"
	"github.com/ternarybob/colligo/internal/services/export"
	"github.com/ternarybob/colligo/internal/services/harvest"
	"github.com/ternarybob/colligo/internal/services/images"
	badgerstorage "github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	Session       *browser.Session
	ImageFetcher  interfaces.ImageFetcher
	Collector     *harvest.Collector
	Resolver      *harvest.Resolver
	ExportService *export.Service
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return app, nil
}

func (a *App) initDatabase() error {
	manager, err := badgerstorage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager
	return nil
}

func (a *App) initServices() error {
	session, err := browser.NewSession(a.Config.Browser, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	a.Session = session

	a.ImageFetcher = images.NewFetcher(images.WithLogger(a.Logger))

	a.Collector = harvest.NewCollector(a.Session, a.StorageManager, a.Config.Harvest, a.Config.Browser.BaseURL, a.Logger)
	a.Resolver = harvest.NewResolver(a.Session, a.StorageManager, a.ImageFetcher, a.Config.Harvest, a.Logger)
	a.ExportService = export.NewService(a.Config.Export.OutputDir, a.Logger)

	return nil
}

// Run executes the harvest. Without a schedule it runs one pass and
// returns; with a schedule it keeps running passes at each activation
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.Config.Schedule == "" {
		return a.RunOnce(ctx)
	}

	schedule, err := cron.ParseStandard(a.Config.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", a.Config.Schedule, err)
	}

	for {
		if err := a.RunOnce(ctx); err != nil {
			return err
		}

		next := schedule.Next(time.Now())
		a.Logger.Info().Str("next_run", next.Format(time.RFC3339)).Msg("Pass complete, waiting for next activation")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce executes the enabled phases for every configured account in
// order. A logged-out session or cancelled context aborts the pass;
// other per-account failures are logged and the pass moves on.
func (a *App) RunOnce(ctx context.Context) error {
	for _, username := range a.Config.Accounts {
		log := a.Logger.WithCorrelationId(username)

		if a.Config.Phases.Timeline {
			added, err := a.Collector.Run(ctx, username)
			if err != nil {
				if fatal(err) {
					return fmt.Errorf("timeline collection for %s: %w", username, err)
				}
				log.Warn().Err(err).Msg("Timeline collection failed, moving to next account")
				continue
			}
			log.Info().Int("new_posts", added).Msg("Timeline collected")
		}

		if a.Config.Phases.Conversations {
			summary, err := a.Resolver.Run(ctx, username)
			if err != nil {
				if fatal(err) {
					return fmt.Errorf("conversation resolution for %s: %w", username, err)
				}
				log.Warn().Err(err).Msg("Conversation resolution failed, moving to next account")
				continue
			}
			log.Info().
				Int("processed", summary.Processed).
				Int("skipped", summary.Skipped).
				Int("failed", summary.Failed).
				Msg("Conversations resolved")
		}

		if a.Config.Phases.Export {
			path, err := a.exportAccount(username)
			if err != nil {
				log.Warn().Err(err).Msg("Export failed, moving to next account")
				continue
			}
			log.Info().Str("path", path).Msg("Account exported")
		}
	}

	return nil
}

func (a *App) exportAccount(username string) (string, error) {
	posts, err := a.StorageManager.PostStorage().ListPosts(username, interfaces.OrderByInsertion)
	if err != nil {
		return "", fmt.Errorf("failed to list posts: %w", err)
	}

	items := make([]export.Item, 0, len(posts))
	for _, post := range posts {
		conv, err := a.StorageManager.ConversationStorage().GetConversation(post.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load conversation %s: %w", post.ID, err)
		}
		items = append(items, export.Item{Post: post, Conversation: conv})
	}

	path, err := a.ExportService.ExportAccount(username, items)
	if err != nil {
		return "", err
	}

	progress := &models.Progress{
		Username:  username,
		Phase:     models.PhaseExport,
		LastRunAt: time.Now().UTC(),
	}
	if err := a.StorageManager.ProgressStorage().SaveProgress(progress); err != nil {
		a.Logger.Warn().Err(err).Str("username", username).Msg("Failed to record export progress")
	}

	return path, nil
}

// fatal reports errors that should abort the whole pass rather than
// skip to the next account.
func fatal(err error) bool {
	return errors.Is(err, interfaces.ErrLoggedOut) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Close shuts down the browser session and storage.
func (a *App) Close() error {
	var errs []error

	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser session close: %w", err))
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	return errors.Join(errs...)
}
