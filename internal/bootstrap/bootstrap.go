package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"chemviz-client-go/internal/apiclient"
	domainauth "chemviz-client-go/internal/domain/auth"
	authstore "chemviz-client-go/internal/domain/auth/store"
	"chemviz-client-go/internal/domain/dataset"
	"chemviz-client-go/internal/domain/eventbus"
	eventinfra "chemviz-client-go/internal/domain/eventbus/infrastructure"
	"chemviz-client-go/internal/domain/eventbus/repository"
	platformconfig "chemviz-client-go/internal/platform/config"
	platformerrors "chemviz-client-go/internal/platform/errors"
	platformlogging "chemviz-client-go/internal/platform/logging"
	platformobservability "chemviz-client-go/internal/platform/observability"
	platformstorage "chemviz-client-go/internal/platform/storage"
	"chemviz-client-go/internal/transport/cli"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

// IO carries the process streams.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type appState struct {
	options cli.GlobalOptions
	io      IO
	env     func(string) (string, bool)
	dotEnv  bool

	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	bus                   *eventbus.Bus
	events                repository.EventRepository
	sessions              authstore.Store
	client                *apiclient.Client
	authManager           *domainauth.Manager
	datasets              *dataset.Service
}

// Run parses args, wires the client and runs one command. It returns the
// process exit code.
func Run(ctx context.Context, args []string, streams IO) int {
	return run(ctx, args, streams, os.LookupEnv, true)
}

func run(ctx context.Context, args []string, streams IO, env func(string) (string, bool), dotEnv bool) int {
	if streams.Stdin == nil {
		streams.Stdin = os.Stdin
	}
	if streams.Stdout == nil {
		streams.Stdout = os.Stdout
	}
	if streams.Stderr == nil {
		streams.Stderr = os.Stderr
	}

	opts, rest, err := cli.ParseGlobal(args, streams.Stderr)
	if err != nil {
		return cli.ExitCode(err)
	}

	state := &appState{options: opts, io: streams, env: env, dotEnv: dotEnv}
	defer state.close()

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		fmt.Fprintf(streams.Stderr, "chemviz: %v\n", err)
		if platformerrors.IsKind(err, platformerrors.KindConfig) {
			return cli.ExitUsage
		}
		return cli.ExitError
	}
	logBootstrapGraph(InitGraph(), state.logger)

	app := cli.New(cli.Deps{
		Auth:      state.authManager,
		Datasets:  state.datasets,
		Events:    state.events,
		ReportDir: state.config.Report.OutputDir,
		Logger:    state.logger,
		Stdin:     streams.Stdin,
		Stdout:    streams.Stdout,
		Stderr:    streams.Stderr,
	})
	return app.Run(ctx, rest)
}

// close releases what the init steps created, newest first.
func (s *appState) close() {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.authManager != nil {
		_ = s.authManager.Close()
	} else if s.sessions != nil {
		_ = s.sessions.Close(context.Background())
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil && s.logger != nil {
			s.logger.WarnTag("bootstrap", "database not closed cleanly: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.observabilityShutdown(shutdownCtx)
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.DebugTag("bootstrap", "init graph")
	for _, step := range steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		logger.DebugTag("bootstrap", "%s: %s (after %s)", step.ID, step.Title, deps)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load-runtime",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-runtime"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Open database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Start session event bus",
			DependsOn: []string{"logging:init-provider", "storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "session:init-store",
			Title:     "Open session store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initSessionStoreStep,
		},
		{
			ID:        "apiclient:init",
			Title:     "Build api client and services",
			DependsOn: []string{"observability:setup-hooks", "events:init-bus", "session:init-store"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initClientStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	opts := state.options
	loader := platformconfig.NewLoader().
		WithDotEnv(state.dotEnv).
		WithPath(opts.ConfigPath).
		WithOverride(func(cfg *platformconfig.Config) {
			if opts.BaseURL != "" {
				cfg.API.BaseURL = strings.TrimRight(opts.BaseURL, "/")
			}
			if opts.Namespace != "" {
				cfg.Session.Namespace = opts.Namespace
			}
			if opts.Debug {
				cfg.Log.Level = "debug"
				cfg.Log.ConsoleLevel = "debug"
			}
		})
	if state.env != nil {
		loader = loader.WithEnv(state.env)
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}

	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:        state.config.Log.Level,
		ConsoleLevel: state.config.Log.ConsoleLevel,
		Dir:          state.config.Log.Dir,
		Filename:     state.config.Log.File,
		Console:      state.io.Stderr,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger
	logger.DebugTag("bootstrap", "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled || strings.EqualFold(state.config.Log.Level, "debug"),
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if !state.config.NeedsDatabase() {
		return nil
	}
	db, err := platformstorage.Open(state.config.Session.SQLite.DSN)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to open database", err)
	}
	state.db = db
	state.logger.DebugTag("bootstrap", "database ready at %s", state.config.Session.SQLite.DSN)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.New(state.config.Events.Workers, state.logger)
	state.bus = bus

	if err := eventbus.NotifyExpired(bus, state.io.Stderr); err != nil {
		return err
	}
	if err := eventbus.LogEvents(bus, state.logger); err != nil {
		return err
	}
	if state.config.Events.Persist && state.db != nil {
		state.events = eventinfra.NewEventRepository(state.db)
		if err := eventbus.NewRecorder(state.events, state.logger).Attach(bus); err != nil {
			return err
		}
	}
	return nil
}

func initSessionStoreStep(_ context.Context, state *appState) error {
	sc := state.config.Session
	cfg := authstore.Config{
		Driver:    sc.Driver,
		Namespace: sc.Namespace,
	}
	switch sc.Driver {
	case authstore.DriverFile:
		cfg.File = &authstore.FileConfig{Path: sc.File.Path}
	case authstore.DriverSQLite:
		cfg.SQLite = &authstore.SQLiteConfig{DSN: sc.SQLite.DSN}
	case authstore.DriverRedis:
		cfg.Redis = &authstore.RedisConfig{
			Addr:     sc.Redis.Addr,
			Username: sc.Redis.Username,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
			TTL:      sc.Redis.TTL,
		}
	}

	sessions, err := authstore.New(cfg, authstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return err
	}
	state.sessions = sessions
	state.logger.DebugTag("bootstrap", "session store %s (%s)", sc.Driver, sc.Namespace)
	return nil
}

func initClientStep(_ context.Context, state *appState) error {
	api := state.config.API
	client, err := apiclient.New(apiclient.Options{
		BaseURL:         api.BaseURL,
		Store:           state.sessions,
		Timeout:         api.Timeout,
		RefreshPath:     api.RefreshPath,
		LoginRoute:      api.LoginRoute,
		UserAgent:       api.UserAgent,
		CoalesceRefresh: api.CoalesceRefresh,
		Logger:          state.logger,
		Hooks:           domainauth.EventHooks(state.bus, state.config.Session.Namespace),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "apiclient:init", "invalid api client options", err)
	}
	state.client = client

	manager, err := domainauth.NewManager(domainauth.Options{
		Client:    client,
		Logger:    state.logger,
		Events:    state.bus,
		Namespace: state.config.Session.Namespace,
	})
	if err != nil {
		return err
	}
	state.authManager = manager
	state.datasets = dataset.NewService(client, state.logger)
	return nil
}
