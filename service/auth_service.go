package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/session"
	transporthttp "github.com/layer-3/folio/transport/http"
)

// Backend paths used by the orchestrator
const (
	PathMe              = "/auth/me"
	PathLogin           = "/auth/login"
	PathRegister        = "/auth/register"
	PathWalletChallenge = "/auth/wallet/challenge"
	PathWalletLogin     = "/auth/wallet/login"
)

// fallbackNamespace scopes identity ids derived from wallet addresses
var fallbackNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("folio.local-fallback"))

// Wallet is the part of the wallet adapter the orchestrator drives
type Wallet interface {
	Connect(ctx context.Context, id core.ProviderID) (string, error)
	SignMessage(ctx context.Context, text string) (string, error)
	Disconnect(ctx context.Context)
}

// API is the part of the request client the orchestrator calls
type API interface {
	Get(ctx context.Context, path string, out any, opts ...transporthttp.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...transporthttp.RequestOption) error
}

// Sessions is the part of the session store the orchestrator writes
type Sessions interface {
	Current() (core.Session, bool)
	Set(ctx context.Context, sess core.Session) error
	Clear(ctx context.Context, reason string) error
}

// StateObserver is called on every state transition
type StateObserver func(from, to core.AuthState)

// Option configures an AuthService
type Option func(*AuthService)

// WithStateObserver registers fn to observe state transitions
func WithStateObserver(fn StateObserver) Option {
	return func(s *AuthService) { s.observer = fn }
}

// AuthService runs the login flows and owns the fallback policy
type AuthService struct {
	wallet   Wallet
	api      API
	sessions Sessions
	observer StateObserver

	mu    sync.Mutex
	state core.AuthState
}

// NewAuthService creates a new authentication service
func NewAuthService(wallet Wallet, api API, sessions Sessions, opts ...Option) *AuthService {
	s := &AuthService{
		wallet:   wallet,
		api:      api,
		sessions: sessions,
		state:    core.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type challengeResponse struct {
	Challenge string          `json:"challenge"`
	Expire    json.RawMessage `json:"expire,omitempty"`
}

type walletLoginRequest struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID      string `json:"id"`
	Wallets []struct {
		Address string `json:"address"`
		Chain   string `json:"chain"`
	} `json:"wallets"`
}

type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *userPayload `json:"user"`
}

// State returns the current state of the login state machine
func (s *AuthService) State() core.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoginWithWallet connects the provider, signs the server challenge and
// exchanges the signature for a session. When the backend cannot be reached
// it settles for a local session bound to the wallet address.
func (s *AuthService) LoginWithWallet(ctx context.Context, provider core.ProviderID) (core.Session, error) {
	if err := s.begin(core.StateConnecting); err != nil {
		return core.Session{}, err
	}
	ctx = slogctx.With(ctx, "provider", provider)

	address, err := s.wallet.Connect(ctx, provider)
	if err != nil {
		return s.fail(ctx, err)
	}
	if address == "" {
		return s.fail(ctx, fmt.Errorf("%s: %w", provider, core.ErrProviderUnavailable))
	}
	ctx = slogctx.With(ctx, "address", address)

	s.transition(core.StateChallengeRequested)
	challenge, err := s.requestChallenge(ctx, address)
	if err != nil {
		if ctx.Err() != nil {
			return s.fail(ctx, err)
		}
		slogctx.Warn(ctx, "Challenge unavailable, using local session", "error", err)
		return s.fallback(ctx, provider.Chain(), address)
	}

	s.transition(core.StateSigning)
	signature, err := s.wallet.SignMessage(ctx, challenge)
	if err != nil {
		return s.fail(ctx, err)
	}

	s.transition(core.StateVerifying)
	var resp loginResponse
	err = s.api.Post(ctx, PathWalletLogin, walletLoginRequest{PublicKey: address, Signature: signature}, &resp)
	if err != nil {
		if classifyVerificationFailure(ctx, err) == verificationUnreachable {
			slogctx.Warn(ctx, "Wallet verification unreachable, using local session", "error", err)
			return s.fallback(ctx, provider.Chain(), address)
		}
		return s.fail(ctx, fmt.Errorf("wallet verification failed: %w", err))
	}

	return s.establish(ctx, resp)
}

// Login authenticates with email and password
func (s *AuthService) Login(ctx context.Context, email, password string) (core.Session, error) {
	return s.credentials(ctx, PathLogin, email, password)
}

// Register creates an account and authenticates with it
func (s *AuthService) Register(ctx context.Context, email, password string) (core.Session, error) {
	return s.credentials(ctx, PathRegister, email, password)
}

func (s *AuthService) credentials(ctx context.Context, path, email, password string) (core.Session, error) {
	if err := s.begin(core.StateVerifying); err != nil {
		return core.Session{}, err
	}

	var resp loginResponse
	if err := s.api.Post(ctx, path, credentialsRequest{Email: email, Password: password}, &resp); err != nil {
		return s.fail(ctx, err)
	}
	return s.establish(ctx, resp)
}

// Me returns the identity of the current session. A local session answers
// without a network call.
func (s *AuthService) Me(ctx context.Context) (core.Identity, error) {
	current, ok := s.sessions.Current()
	if !ok {
		return core.Identity{}, core.ErrNotAuthenticated
	}
	if current.IsFallback() {
		if current.Identity == nil {
			return core.Identity{}, core.ErrNotAuthenticated
		}
		return *current.Identity, nil
	}

	var user userPayload
	if err := s.api.Get(ctx, PathMe, &user); err != nil {
		return core.Identity{}, err
	}
	return *user.identity(), nil
}

// Logout clears the session and disconnects the wallet. Calling it without
// a session is a no-op. The wallet is disconnected even when the durable
// session could not be removed.
func (s *AuthService) Logout(ctx context.Context) error {
	clearErr := s.sessions.Clear(ctx, session.ReasonLogout)
	s.wallet.Disconnect(ctx)

	s.mu.Lock()
	from := s.state
	if from == core.StateAuthenticated {
		s.state = core.StateIdle
	}
	s.mu.Unlock()

	if from == core.StateAuthenticated {
		s.notify(from, core.StateIdle)
		slogctx.Info(ctx, "Logged out")
	}
	if clearErr != nil {
		return fmt.Errorf("failed to clear session: %w", clearErr)
	}
	return nil
}

func (s *AuthService) requestChallenge(ctx context.Context, address string) (string, error) {
	var resp challengeResponse
	query := url.Values{"publicKey": {address}}
	if err := s.api.Get(ctx, PathWalletChallenge, &resp, transporthttp.WithQuery(query)); err != nil {
		return "", err
	}
	if resp.Challenge == "" {
		return "", errors.New("empty challenge")
	}
	return resp.Challenge, nil
}

func (s *AuthService) establish(ctx context.Context, resp loginResponse) (core.Session, error) {
	if resp.AccessToken == "" {
		return s.fail(ctx, fmt.Errorf("login response without access token: %w", core.ErrInvalidSession))
	}

	sess := core.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Identity:     resp.User.identity(),
		Origin:       core.OriginServer,
	}
	if err := s.sessions.Set(ctx, sess); err != nil {
		return s.fail(ctx, err)
	}
	if stored, ok := s.sessions.Current(); ok {
		sess = stored
	}

	s.transition(core.StateAuthenticated)
	slogctx.Info(ctx, "Logged in", "identity", sess.Identity.ID)
	return sess, nil
}

// fallback stores a session that never leaves the client
func (s *AuthService) fallback(ctx context.Context, chain core.ChainKind, address string) (core.Session, error) {
	sess := core.Session{
		AccessToken: "local-" + uuid.NewString(),
		Identity: &core.Identity{
			ID:              FallbackIdentityID(chain, address),
			LinkedAddresses: []core.LinkedAddress{{Address: address, Chain: chain}},
		},
		Origin: core.OriginLocalFallback,
	}
	if err := s.sessions.Set(ctx, sess); err != nil {
		return s.fail(ctx, err)
	}
	if stored, ok := s.sessions.Current(); ok {
		sess = stored
	}

	s.transition(core.StateAuthenticated)
	slogctx.Info(ctx, "Logged in with local session", "identity", sess.Identity.ID)
	return sess, nil
}

// FallbackIdentityID derives the identity id of a local session. The same
// address always yields the same id.
func FallbackIdentityID(chain core.ChainKind, address string) string {
	return uuid.NewSHA1(fallbackNamespace, []byte(string(chain)+":"+address)).String()
}

type verificationOutcome int

const (
	verificationRejected verificationOutcome = iota
	verificationUnreachable
)

// classifyVerificationFailure tells an explicit rejection from a backend
// that could not answer. A caller that gave up is never unreachable.
func classifyVerificationFailure(ctx context.Context, err error) verificationOutcome {
	if ctx.Err() != nil {
		return verificationRejected
	}
	switch core.KindOf(err) {
	case core.KindNetwork, core.KindServer:
		return verificationUnreachable
	default:
		return verificationRejected
	}
}

// begin starts a login in state to
func (s *AuthService) begin(to core.AuthState) error {
	s.mu.Lock()
	from := s.state
	if from != core.StateIdle && from != core.StateAuthenticated {
		s.mu.Unlock()
		return core.ErrLoginInProgress
	}
	s.state = to
	s.mu.Unlock()

	s.notify(from, to)
	return nil
}

func (s *AuthService) transition(to core.AuthState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.notify(from, to)
}

// fail moves through Failed back to Idle and returns err
func (s *AuthService) fail(ctx context.Context, err error) (core.Session, error) {
	slogctx.Warn(ctx, "Login failed", "state", s.State(), "error", err)
	s.transition(core.StateFailed)
	s.transition(core.StateIdle)
	return core.Session{}, err
}

func (s *AuthService) notify(from, to core.AuthState) {
	if s.observer != nil && from != to {
		s.observer(from, to)
	}
}

func (u *userPayload) identity() *core.Identity {
	if u == nil {
		return &core.Identity{}
	}
	identity := &core.Identity{ID: u.ID}
	for _, w := range u.Wallets {
		identity.LinkedAddresses = append(identity.LinkedAddresses, core.LinkedAddress{
			Address: w.Address,
			Chain:   core.ChainKind(w.Chain),
		})
	}
	return identity
}
