package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tradewell/twchat/internal/auth"
	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/config"
	"github.com/tradewell/twchat/internal/gateway"
	"github.com/tradewell/twchat/internal/ingest"
	"github.com/tradewell/twchat/internal/lock"
	"github.com/tradewell/twchat/internal/logging"
	"github.com/tradewell/twchat/internal/outbox"
	"github.com/tradewell/twchat/internal/presence"
	"github.com/tradewell/twchat/internal/session"
	"github.com/tradewell/twchat/internal/status"
	"github.com/tradewell/twchat/internal/tui"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// token is the raw gateway JWT, provided once so the HTTP client and the
// stream share it.
type token string

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("twchat",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideToken,
			provideIdentity,
			provideGateway,
			provideStream,
			provideTracker,
			provideIngest,
			provideOutbox,
			provideLocation,
			provideTUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		// First run without a config file uses the defaults.
		return config.Default()
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
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
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("session", p.SessionName))
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CachePath(p.SessionName)
	db, err := cache.Open(dbPath)
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
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideToken(p Params) (token, error) {
	t, err := session.ReadToken(p.SessionName)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no token for session %q, run `twchat login` first", p.SessionName)
		}
		return "", err
	}
	return token(t), nil
}

func provideIdentity(t token) (auth.Identity, error) {
	id, err := auth.ParseIdentity(string(t))
	if err != nil {
		return auth.Identity{}, err
	}
	if id.Expired(time.Now()) {
		return auth.Identity{}, fmt.Errorf("token for %s expired, run `twchat login` again", id.User.ID)
	}
	return id, nil
}

func provideGateway(cfg *config.Config, t token, logger *zap.Logger) *gateway.Client {
	return gateway.NewClient(cfg.Gateway.HTTPURL, string(t), logger)
}

func provideStream(cfg *config.Config, t token, b *bus.Bus, m *status.Machine, logger *zap.Logger) *gateway.Stream {
	return gateway.NewStream(cfg.Gateway.WSURL, string(t), b, m, logger)
}

func provideTracker() *presence.Tracker {
	return presence.NewTracker()
}

func provideIngest(db *cache.DB, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, logger)
}

func provideOutbox(db *cache.DB, gw *gateway.Client, b *bus.Bus, id auth.Identity, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, gw, b, id.User.ID, logger)
}

func provideLocation(cfg *config.Config, logger *zap.Logger) *time.Location {
	if cfg.Display.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(cfg.Display.Timezone)
	if err != nil {
		logger.Warn("bad display timezone, using local",
			zap.String("timezone", cfg.Display.Timezone), zap.Error(err))
		return time.Local
	}
	return loc
}

func provideTUI(p Params, b *bus.Bus, db *cache.DB, gw *gateway.Client, box *outbox.Sender,
	eng *ingest.Engine, tracker *presence.Tracker, m *status.Machine, id auth.Identity,
	loc *time.Location, logger *zap.Logger) *tui.App {
	return tui.NewApp(tui.Deps{
		Bus:      b,
		DB:       db,
		Gateway:  gw,
		Outbox:   box,
		Ingest:   eng,
		Tracker:  tracker,
		Machine:  m,
		Self:     id.User,
		Session:  p.SessionName,
		Location: loc,
		Logger:   logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *cache.DB, stream *gateway.Stream,
	eng *ingest.Engine, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Ingest subscribes to gw.* bus events before the stream starts
			// publishing them.
			eng.Start(context.Background())
			sender.Start(context.Background())
			stream.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			stream.Stop()
			sender.Stop()
			eng.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
