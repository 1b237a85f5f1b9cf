package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/mailmirror/internal/api"
	"github.com/matheus3301/mailmirror/internal/auth"
	"github.com/matheus3301/mailmirror/internal/bus"
	"github.com/matheus3301/mailmirror/internal/config"
	"github.com/matheus3301/mailmirror/internal/httpapi"
	"github.com/matheus3301/mailmirror/internal/lock"
	"github.com/matheus3301/mailmirror/internal/logging"
	"github.com/matheus3301/mailmirror/internal/natsfeed"
	"github.com/matheus3301/mailmirror/internal/notify"
	"github.com/matheus3301/mailmirror/internal/poller"
	"github.com/matheus3301/mailmirror/internal/provider"
	"github.com/matheus3301/mailmirror/internal/provider/gmail"
	"github.com/matheus3301/mailmirror/internal/provider/outlook"
	"github.com/matheus3301/mailmirror/internal/session"
	"github.com/matheus3301/mailmirror/internal/status"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	Debug       bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideProvider,
			provideEngine,
			provideHub,
			providePoller,
			provideJetStream,
			provideRelay,
			provideHTTP,
			provideSessionService,
			provideThreadService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.Debug)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Session, error) {
	path := session.SessionConfigPath(p.SessionName)
	cfg, err := config.LoadSession(path)
	if err != nil {
		return nil, err
	}
	if cfg.Provider.Gmail.TokenFile == "" {
		cfg.Provider.Gmail.TokenFile = session.GmailTokenPath(p.SessionName)
	}
	logger.Info("session config loaded",
		zap.String("path", path),
		zap.String("provider", cfg.Provider.Kind),
		zap.Duration("poll_interval", cfg.Sync.PollInterval),
	)
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by the
// process that owns the session.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideProvider(cfg *config.Session, logger *zap.Logger) (provider.Provider, error) {
	var (
		p   provider.Provider
		err error
	)
	switch cfg.Provider.Kind {
	case config.ProviderGmail:
		p, err = gmail.New(context.Background(), gmail.Config{
			ClientID:     cfg.Provider.Gmail.ClientID,
			ClientSecret: cfg.Provider.Gmail.ClientSecret,
			TokenFile:    cfg.Provider.Gmail.TokenFile,
			User:         cfg.Provider.Gmail.User,
		})
	case config.ProviderOutlook:
		if cfg.Provider.Outlook.AccessToken == "" {
			return nil, errors.New("outlook provider needs provider.outlook.access_token or MAILMIRROR_OUTLOOK_TOKEN")
		}
		p, err = outlook.New(cfg.Provider.Outlook.AccessToken, "")
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider.Kind, err)
	}
	logger.Info("provider ready",
		zap.String("kind", cfg.Provider.Kind),
		zap.Float64("rate_per_second", cfg.Provider.RatePerSecond),
	)
	return provider.WithRateLimit(p, cfg.Provider.RatePerSecond, cfg.Provider.Burst), nil
}

func provideEngine(db *store.DB, p provider.Provider, b *bus.Bus, cfg *config.Session, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, p, b, logger.Named("sync"), intsync.Options{Concurrency: cfg.Sync.Concurrency})
}

func provideHub(engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *notify.Hub {
	return notify.NewHub(engine, b, logger.Named("notify"))
}

func providePoller(engine *intsync.Engine, cfg *config.Session, logger *zap.Logger) *poller.Poller {
	return poller.New(engine, cfg.Sync.PollInterval, logger.Named("poller"))
}

// provideJetStream returns nil when the relay is not configured.
func provideJetStream(cfg *config.Session, logger *zap.Logger) (*natsfeed.JetStream, error) {
	if cfg.NATS.URL == "" {
		return nil, nil
	}
	js, err := natsfeed.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, err
	}
	if err := js.EnsureStream(cfg.NATS.Stream, natsfeed.Subjects()); err != nil {
		js.Close()
		return nil, err
	}
	logger.Info("nats relay connected", zap.String("url", cfg.NATS.URL), zap.String("stream", cfg.NATS.Stream))
	return js, nil
}

func provideRelay(p Params, js *natsfeed.JetStream, b *bus.Bus, logger *zap.Logger) *natsfeed.Relay {
	if js == nil {
		return nil
	}
	return natsfeed.NewRelay(p.SessionName, js, b, logger.Named("relay"))
}

// provideHTTP returns nil when http.addr is empty.
func provideHTTP(cfg *config.Session, engine *intsync.Engine, hub *notify.Hub, logger *zap.Logger) (*httpapi.Server, error) {
	if cfg.HTTP.Addr == "" {
		return nil, nil
	}
	var (
		verifier *auth.Verifier
		err      error
	)
	if cfg.Auth.JWKSURL != "" {
		verifier, err = auth.NewJWKS(context.Background(), cfg.Auth.JWKSURL, cfg.Account.UserID)
	} else {
		verifier, err = auth.NewHS256([]byte(cfg.Auth.HS256Secret), cfg.Account.UserID)
	}
	if err != nil {
		return nil, err
	}
	srv := httpapi.New(engine, hub, verifier, httpapi.Options{AccountEmail: cfg.Account.Email}, logger.Named("http"))
	if err := srv.Listen(cfg.HTTP.Addr); err != nil {
		return nil, err
	}
	return srv, nil
}

func provideSessionService(p Params, cfg *config.Session, m *status.Machine, db *store.DB) *api.SessionService {
	return api.NewSessionService(p.SessionName, cfg.Provider.Kind, m, db)
}

func provideThreadService(engine *intsync.Engine, hub *notify.Hub) *api.ThreadService {
	return api.NewThreadService(engine, hub)
}

type lifecycleDeps struct {
	fx.In

	Server  *Server
	HTTP    *httpapi.Server
	Lock    *lock.Lock
	DB      *store.DB
	Engine  *intsync.Engine
	Hub     *notify.Hub
	Poller  *poller.Poller
	Stream  *natsfeed.JetStream
	Relay   *natsfeed.Relay
	Machine *status.Machine
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	runCtx, cancel := context.WithCancel(context.Background())
	logger := d.Logger

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Provider health follows sync outcomes.
			d.Machine.Watch(runCtx)

			if d.Relay != nil {
				d.Relay.Start()
			}

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if d.HTTP != nil {
				go func() {
					if err := d.HTTP.Serve(); err != nil {
						logger.Error("http server error", zap.Error(err))
					}
				}()
			}

			// First sweep decides the initial health; an empty mirror is ready.
			go func() {
				res, err := d.Engine.SyncAll(runCtx)
				if err != nil {
					logger.Error("initial sweep failed", zap.Error(err))
					return
				}
				logger.Info("initial sweep", zap.Int("threads", res.Threads), zap.Int("synced", res.Synced), zap.Int("failed", res.Failed))
				if res.Threads == 0 {
					_ = d.Machine.Transition(status.Ready)
				}
			}()

			d.Poller.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			d.Poller.Stop()
			if d.Relay != nil {
				d.Relay.Stop()
			}
			d.Stream.Close()
			d.Hub.Close()
			if d.HTTP != nil {
				if err := d.HTTP.Shutdown(ctx); err != nil {
					logger.Warn("http shutdown", zap.Error(err))
				}
			}
			d.Server.Stop(ctx)
			if err := d.Machine.Transition(status.Stopped); err != nil {
				logger.Warn("status transition", zap.Error(err))
			}
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
