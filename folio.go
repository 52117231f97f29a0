// Package folio wires the session layer together: one session store, one
// wallet adapter, one request client and the auth orchestrator per App.
package folio

import (
	"context"
	"errors"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio/adapters/tokens"
	walletadapters "github.com/layer-3/folio/adapters/wallet"
	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/ports"
	"github.com/layer-3/folio/service"
	"github.com/layer-3/folio/session"
	transporthttp "github.com/layer-3/folio/transport/http"
	"github.com/layer-3/folio/wallet"
)

// Config holds the dependencies of an App
type Config struct {
	API       transporthttp.Config
	Storage   ports.Storage
	Providers []ports.WalletProvider

	// optional
	Publisher     ports.EventPublisher
	Opener        ports.PageOpener // install pages are logged when nil
	Network       string
	StateObserver service.StateObserver
}

// App is an application root
type App struct {
	Sessions *session.Store
	Wallet   *wallet.Adapter
	API      *transporthttp.Client
	Auth     *service.AuthService
}

var _ Client = (*App)(nil)

// New creates a new App. Call Init before use.
func New(cfg Config) (*App, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	sessionOpts := []session.Option{session.WithInspector(tokens.NewInspector())}
	if cfg.Publisher != nil {
		sessionOpts = append(sessionOpts, session.WithPublisher(cfg.Publisher))
	}
	sessions := session.NewStore(cfg.Storage, sessionOpts...)

	api, err := transporthttp.New(cfg.API, sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to create request client: %w", err)
	}

	opener := cfg.Opener
	if opener == nil {
		opener = walletadapters.LogOpener{}
	}
	walletOpts := []wallet.Option{wallet.WithOpener(opener)}
	if cfg.Network != "" {
		walletOpts = append(walletOpts, wallet.WithNetwork(cfg.Network))
	}
	adapter := wallet.NewAdapter(cfg.Storage, cfg.Providers, walletOpts...)

	var authOpts []service.Option
	if cfg.StateObserver != nil {
		authOpts = append(authOpts, service.WithStateObserver(cfg.StateObserver))
	}

	return &App{
		Sessions: sessions,
		Wallet:   adapter,
		API:      api,
		Auth:     service.NewAuthService(adapter, api, sessions, authOpts...),
	}, nil
}

// Init restores the persisted session
func (a *App) Init(ctx context.Context) error {
	if err := a.Sessions.Init(ctx); err != nil {
		return err
	}
	// one user's cached reads are never served to the next
	a.Sessions.OnClear(a.API.ResetCache)
	a.Sessions.OnIdentityChange(a.API.ResetCache)

	if sess, ok := a.Sessions.Current(); ok {
		slogctx.Info(ctx, "Session restored", "origin", sess.Origin)
	}
	return nil
}

// Close releases the in-memory state. The persisted session survives.
func (a *App) Close(ctx context.Context) error {
	a.API.ResetCache()
	return a.Sessions.Close(ctx)
}

// Session returns the current session
func (a *App) Session() (core.Session, bool) {
	return a.Sessions.Current()
}

func (a *App) LoginWithWallet(ctx context.Context, provider core.ProviderID) (core.Session, error) {
	return a.Auth.LoginWithWallet(ctx, provider)
}

func (a *App) Login(ctx context.Context, email, password string) (core.Session, error) {
	return a.Auth.Login(ctx, email, password)
}

func (a *App) Register(ctx context.Context, email, password string) (core.Session, error) {
	return a.Auth.Register(ctx, email, password)
}

func (a *App) Me(ctx context.Context) (core.Identity, error) {
	return a.Auth.Me(ctx)
}

func (a *App) Logout(ctx context.Context) error {
	return a.Auth.Logout(ctx)
}

func (a *App) Get(ctx context.Context, path string, out any) error {
	return a.API.Get(ctx, path, out)
}
