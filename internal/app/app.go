package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/iamvkosarev/archive-relay-bot/internal/archive"
	"github.com/iamvkosarev/archive-relay-bot/internal/bot"
	"github.com/iamvkosarev/archive-relay-bot/internal/config"
	"github.com/iamvkosarev/archive-relay-bot/internal/handler"
	"github.com/iamvkosarev/archive-relay-bot/internal/publish"
	"github.com/iamvkosarev/archive-relay-bot/internal/server"
	"github.com/iamvkosarev/archive-relay-bot/internal/service/artwork"
	"github.com/iamvkosarev/archive-relay-bot/internal/service/audio"
	"github.com/iamvkosarev/archive-relay-bot/internal/session"
	"github.com/iamvkosarev/archive-relay-bot/internal/templates"
	"github.com/iamvkosarev/archive-relay-bot/internal/workflow"
)

const janitorInterval = time.Minute

type App struct {
	config    *config.Config
	bot       *bot.Bot
	server    *server.Server
	store     *session.MemoryStore
	runner    *workflow.Runner
	channel   publish.Destination
	startedAt time.Time
}

func New(cfg *config.Config) (*App, error) {
	SetupLogging(cfg.App.LogMode)

	dest, err := publish.ParseDestination(cfg.Telegram.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHANNEL_ID: %w", err)
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to Telegram: %w", err)
	}
	api.Debug = cfg.App.LogMode == config.LogModeDebug
	log.Printf("authorized as @%s", api.Self.UserName)

	catalog := archive.NewClient(archive.Options{
		BaseURL:           cfg.Archive.BaseURL,
		UserAgent:         cfg.Archive.UserAgent,
		Timeout:           cfg.Archive.RequestTimeout,
		RequestsPerSecond: cfg.Archive.RequestsPerSecond,
		MinPayloadBytes:   cfg.Archive.MinPayloadBytes,
	})
	tagger := audio.NewTagger()
	publisher := publish.NewPublisher(api, dest, publish.Options{
		MaxAttempts:    cfg.Workflow.PublishMaxAttempts,
		MaxUploadBytes: cfg.Telegram.MaxUploadBytes(),
		Prober:         tagger,
	})
	store := session.NewMemoryStore(cfg.Workflow.SessionTTL, nil)
	runner := workflow.New(store, catalog, tagger, publisher, workflow.Options{
		WorkDir:       cfg.Workflow.WorkDir,
		CoverMaxBytes: cfg.Archive.CoverMaxBytes,
		Thumbnailer:   artwork.NewImageService(),
		Reporter:      bot.NewNotifier(api),
	})

	a := &App{
		config:    cfg,
		store:     store,
		runner:    runner,
		channel:   dest,
		startedAt: time.Now(),
	}
	a.bot = bot.New(api, catalog, store, runner, bot.Options{
		AllowedUserIDs:    cfg.Telegram.AllowedUserIDs,
		MaxConcurrentJobs: int64(cfg.Workflow.MaxConcurrentJobs),
		UpdateTimeout:     cfg.Telegram.UpdateTimeout,
	})
	if cfg.Server.Enabled {
		a.server = server.New(&cfg.Server, handler.New(handler.StatusFunc(a.status)))
	}
	return a, nil
}

func (a *App) status() templates.StatusData {
	stats := a.runner.Stats()
	return templates.StatusData{
		Channel:   a.channel.String(),
		StartedAt: a.startedAt,
		Sessions:  a.store.Len(),
		Running:   stats.Running,
		Albums:    stats.Albums,
		Published: stats.Published,
		Failed:    stats.Failed,
	}
}

// Run blocks until SIGINT or SIGTERM, or until a component fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.bot.Run(ctx)
	})
	g.Go(func() error {
		return session.RunJanitor(ctx, a.store, janitorInterval)
	})
	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(ctx, a.config.App.ShutdownTimeout)
		})
	}

	log.Printf("publishing to %s", a.channel)
	err := g.Wait()
	log.Println("exited")
	return err
}

// SetupLogging applies LOG_MODE to the standard logger.
func SetupLogging(mode string) {
	switch mode {
	case config.LogModeProd:
		log.SetFlags(log.LstdFlags)
	case config.LogModeDev:
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	default:
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}
