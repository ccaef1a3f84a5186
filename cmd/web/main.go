package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/myrjola/taleweaver/internal/ai"
	"github.com/myrjola/taleweaver/internal/broker"
	"github.com/myrjola/taleweaver/internal/dispatch"
	"github.com/myrjola/taleweaver/internal/engine"
	"github.com/myrjola/taleweaver/internal/envstruct"
	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/myrjola/taleweaver/internal/game"
	"github.com/myrjola/taleweaver/internal/logging"
	"github.com/myrjola/taleweaver/internal/media"
	"github.com/myrjola/taleweaver/internal/observe"
	"github.com/myrjola/taleweaver/internal/pprofserver"
	"github.com/myrjola/taleweaver/internal/scenario"
	"github.com/myrjola/taleweaver/internal/sqlite"
	"github.com/myrjola/taleweaver/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

type config struct {
	// Addr is the address the API server listens on. Use port 0 to pick a free
	// port; the chosen address is logged with the "addr" attribute.
	Addr string `env:"TALEWEAVER_ADDR" envDefault:"localhost:4000"`
	// SQLiteURL points at the session database. The special value "memory"
	// keeps all sessions in process memory.
	SQLiteURL string `env:"TALEWEAVER_SQLITE_URL" envDefault:"./taleweaver.sqlite"`
	// MediaDir is where generated audio files are written and served from.
	MediaDir string `env:"TALEWEAVER_MEDIA_DIR" envDefault:"./media"`
	// ScenarioDir holds authored scenario YAML files. Missing directory means
	// no scenarios.
	ScenarioDir string `env:"TALEWEAVER_SCENARIO_DIR" envDefault:"./scenarios"`
	// OpenAIBaseURL overrides the OpenAI API endpoint, e.g. for a local stub.
	OpenAIBaseURL string `env:"TALEWEAVER_OPENAI_BASE_URL" envDefault:""`
	// OpenAIAPIKey authenticates against the OpenAI API.
	OpenAIAPIKey string `env:"OPENAI_API_KEY" envDefault:""`
	// Model names the chat completion model used for narration.
	Model string `env:"TALEWEAVER_MODEL" envDefault:""`
	// StrictToolCalls makes tool calls against deleted sessions fail the turn
	// instead of being skipped.
	StrictToolCalls bool `env:"TALEWEAVER_STRICT_TOOL_CALLS" envDefault:"false"`
}

type application struct {
	logger      *slog.Logger
	store       store.Store
	coordinator *engine.Coordinator
	broker      *broker.StreamBroker[string, game.NarrativeChunk]
	scenarios   *scenario.Library
	metrics     *prometheus.Registry
	mediaDir    string
}

// chunkPublisher feeds committed chunks into the stream broker for the SSE
// endpoint.
type chunkPublisher struct {
	broker *broker.StreamBroker[string, game.NarrativeChunk]
}

func (p chunkPublisher) PublishChunk(sessionID string, chunk game.NarrativeChunk) {
	p.broker.Publish(sessionID, chunk)
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "parse environment")
	}

	worldStore, closeStore, err := newStore(ctx, cfg.SQLiteURL, logger)
	if err != nil {
		return errors.Wrap(err, "initialise store")
	}
	defer closeStore()

	if err = os.MkdirAll(filepath.Clean(cfg.MediaDir), 0o750); err != nil {
		return errors.Wrap(err, "create media directory")
	}

	scenarios, err := scenario.Load(cfg.ScenarioDir, logger)
	if err != nil {
		return errors.Wrap(err, "load scenarios")
	}

	registry := prometheus.NewRegistry()
	metrics := observe.NewMetrics(registry)

	aiClient := ai.NewClient(ai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.Model,
	})
	mediaClient := media.NewOpenAIClient(media.Config{
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		MediaDir: cfg.MediaDir,
	})

	dispatchOpts := []dispatch.Option{dispatch.WithMetrics(metrics)}
	if cfg.StrictToolCalls {
		dispatchOpts = append(dispatchOpts, dispatch.WithStrictLifecycle())
	}
	dispatcher := dispatch.New(worldStore, mediaClient, aiClient, logger, dispatchOpts...)

	chunkBroker := broker.NewStreamBroker[string, game.NarrativeChunk]()

	coordinator := engine.NewCoordinator(worldStore, aiClient, dispatcher, logger,
		engine.WithPublisher(chunkPublisher{broker: chunkBroker}),
		engine.WithMetrics(metrics))

	app := application{
		logger:      logger,
		store:       worldStore,
		coordinator: coordinator,
		broker:      chunkBroker,
		scenarios:   scenarios,
		metrics:     registry,
		mediaDir:    cfg.MediaDir,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chunkBroker.Start()
		return nil
	})
	g.Go(func() error {
		defer chunkBroker.Stop()
		return app.configureAndStartServer(ctx, cfg.Addr)
	})
	return g.Wait()
}

// newStore picks the storage backend. "memory" serves single-process setups and
// tests; anything else is treated as a SQLite URL.
func newStore(ctx context.Context, sqliteURL string, logger *slog.Logger) (store.Store, func(), error) {
	if sqliteURL == "memory" {
		return store.NewMemoryStore(logger), func() {}, nil
	}
	db, err := sqlite.NewDatabase(ctx, sqliteURL, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open database", slog.String("url", sqliteURL))
	}
	closeStore := func() {
		if err := db.Close(); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "close database", errors.SlogError(err))
		}
	}
	return store.NewSQLiteStore(db, logger), closeStore, nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}))
	logger := slog.New(loggerHandler)

	// Initialise pprof listening on localhost so that it's not open to the world.
	pprofPort := os.Getenv("TALEWEAVER_PPROF_PORT")
	if pprofPort == "" {
		pprofPort = ":6060"
	}
	pprofserver.Launch(pprofPort, logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error(err.Error())
		os.Exit(1)
	}

	if err := run(context.Background(), logger, os.LookupEnv); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
