package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio"
	"github.com/layer-3/folio/adapters/events"
	"github.com/layer-3/folio/adapters/store"
	"github.com/layer-3/folio/adapters/wallet"
	"github.com/layer-3/folio/config"
	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/ports"
	transporthttp "github.com/layer-3/folio/transport/http"
)

// runtime is a wired App plus what must be released after the command
type runtime struct {
	app     *folio.App
	closers []func() error
}

func (r *runtime) close(ctx context.Context) {
	if err := r.app.Close(ctx); err != nil {
		slogctx.Warn(ctx, "Failed to close app", "error", err)
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slogctx.Warn(ctx, "Failed to release resource", "error", err)
		}
	}
}

func initLogger(cfg *config.Config) error {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	handler := slogctx.NewHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}), nil)
	slog.SetDefault(slog.New(handler))
	return nil
}

// setup loads the configuration and wires the App
func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, oops.In("main").Wrapf(err, "Failed to load the configuration")
	}
	if err := initLogger(cfg); err != nil {
		return nil, oops.In("main").Wrapf(err, "Failed to initialise the logger")
	}

	rt := &runtime{}
	storage, publisher, err := rt.backing(ctx, cfg)
	if err != nil {
		rt.release()
		return nil, err
	}

	var providers []ports.WalletProvider
	if cfg.Wallet.PrivateKey != "" {
		provider, err := wallet.NewKeyProviderFromHex(core.ProviderID(cfg.Wallet.Provider), cfg.Wallet.PrivateKey)
		if err != nil {
			rt.release()
			return nil, oops.In("main").Wrapf(err, "Failed to load the wallet key")
		}
		providers = append(providers, provider)
	}

	app, err := folio.New(folio.Config{
		API: transporthttp.Config{
			BaseURL:  cfg.API.BaseURL,
			Timeout:  cfg.API.Timeout,
			CacheTTL: cfg.API.CacheTTL,
		},
		Storage:   storage,
		Providers: providers,
		Publisher: events.NewWatermillPublisher(publisher),
		Opener:    wallet.WriterOpener{W: os.Stderr},
		Network:   cfg.Wallet.Network,
		StateObserver: func(from, to core.AuthState) {
			slogctx.Debug(ctx, "Auth state changed", "from", from, "to", to)
		},
	})
	if err != nil {
		rt.release()
		return nil, oops.In("main").Wrapf(err, "Failed to create the app")
	}
	if err := app.Init(ctx); err != nil {
		rt.release()
		return nil, oops.In("main").Wrapf(err, "Failed to restore the session")
	}

	rt.app = app
	return rt, nil
}

// backing opens the storage and the event publisher: Redis for both when
// configured, otherwise a local SQLite file and an in-process channel
func (rt *runtime) backing(ctx context.Context, cfg *config.Config) (ports.Storage, message.Publisher, error) {
	logger := watermill.NewSlogLogger(slog.Default())

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, oops.In("main").Wrapf(err, "Failed to parse Redis URL")
		}
		client := redis.NewClient(opts)
		rt.closers = append(rt.closers, client.Close)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, logger)
		if err != nil {
			return nil, nil, oops.In("main").Wrapf(err, "Failed to create Redis publisher")
		}
		rt.closers = append(rt.closers, publisher.Close)

		return store.NewRedisStore(client, ""), publisher, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
		return nil, nil, oops.In("main").Wrapf(err, "Failed to create the storage directory")
	}
	sqlite, err := store.NewSQLiteStore(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, nil, oops.In("main").Wrapf(err, "Failed to open the session store")
	}
	rt.closers = append(rt.closers, sqlite.Close)

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, logger)
	rt.closers = append(rt.closers, pubSub.Close)
	if err := logSessionEvents(ctx, pubSub); err != nil {
		return nil, nil, err
	}
	return sqlite, pubSub, nil
}

func (rt *runtime) release() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// logSessionEvents logs lifecycle events published in-process
func logSessionEvents(ctx context.Context, subscriber message.Subscriber) error {
	messages, err := subscriber.Subscribe(ctx, events.SessionTopic)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to subscribe to session events")
	}

	go func() {
		for msg := range messages {
			event, err := events.Decode(msg)
			msg.Ack()
			if err != nil {
				slogctx.Warn(ctx, "Undecodable session event", "error", err)
				continue
			}
			slogctx.Info(ctx, "Session event", "type", event.Type, "origin", event.Origin, "reason", event.Reason)
		}
	}()
	return nil
}

// withApp runs fn with a wired App and closes it afterwards
func withApp(ctx context.Context, fn func(context.Context, *folio.App) error) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if err := fn(ctx, rt.app); err != nil {
		return oops.In("main").Wrapf(err, "%s", describe(err))
	}
	return nil
}

// describe gives a short hint for the common failures
func describe(err error) string {
	switch {
	case errors.Is(err, core.ErrRefreshExhausted):
		return "Session expired, log in again"
	case errors.Is(err, core.ErrNotAuthenticated), errors.Is(err, core.ErrUnauthorized):
		return "Not logged in"
	case errors.Is(err, core.ErrUnknownProvider):
		return "Wallet provider not configured, set wallet.private_key"
	case errors.Is(err, core.ErrNetwork):
		return "Backend unreachable"
	default:
		return fmt.Sprintf("Command failed (%s)", kindName(err))
	}
}

func kindName(err error) string {
	if kind := core.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "local"
}
