// Package backendtest runs an in-process fake of the backend auth surface
// for tests. It issues real ES256 tokens, verifies personal_sign signatures
// and rotates refresh tokens.
package backendtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/layer-3/folio/adapters/wallet"
)

var (
	errNoChallenge        = errors.New("no pending challenge")
	errInvalidSignature   = errors.New("invalid signature")
	errInvalidCredentials = errors.New("invalid credentials")
	errAccountExists      = errors.New("account already exists")
)

type walletRecord struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

type user struct {
	ID      string         `json:"id"`
	Wallets []walletRecord `json:"wallets"`
}

type account struct {
	userID   string
	password string
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Backend is a running fake backend
type Backend struct {
	URL string

	server *httptest.Server
	tokens *tokenizer

	challengeTTL time.Duration
	accessTTL    time.Duration
	refreshTTL   time.Duration

	mu          sync.Mutex
	generation  int
	unavailable bool
	pending     map[string]string // address -> challenge token
	wallets     map[string]string // address -> user id
	accounts    map[string]account
	users       map[string]*user
	live        map[string]bool // refresh ids not yet rotated or revoked
	calls       map[string]int
}

// Option configures a Backend
type Option func(*Backend)

// WithAccessTTL sets the lifetime of issued access tokens
func WithAccessTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.accessTTL = ttl }
}

// WithAccount registers an email account
func WithAccount(email, password string) Option {
	return func(b *Backend) {
		_, _ = b.createAccount(email, password)
	}
}

// NewServer starts a fake backend that is closed when t finishes
func NewServer(t testing.TB, opts ...Option) *Backend {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	b := &Backend{
		tokens:       &tokenizer{signKey: signKey},
		challengeTTL: 5 * time.Minute,
		accessTTL:    5 * time.Minute,
		refreshTTL:   5 * 24 * time.Hour,
		pending:      make(map[string]string),
		wallets:      make(map[string]string),
		accounts:     make(map[string]account),
		users:        make(map[string]*user),
		live:         make(map[string]bool),
		calls:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.server = httptest.NewServer(b.router())
	b.URL = b.server.URL
	t.Cleanup(b.Close)
	return b
}

// Close stops the server
func (b *Backend) Close() {
	b.server.Close()
}

// Calls returns how often method and path were requested
func (b *Backend) Calls(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method+" "+path]
}

// ExpireAccessTokens makes every access token issued so far rejected
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
}

// RevokeRefreshTokens makes every outstanding refresh token rejected
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	clear(b.live)
}

// SetUnavailable makes the wallet auth endpoints answer 503
func (b *Backend) SetUnavailable(unavailable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = unavailable
}

func (b *Backend) isUnavailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unavailable
}

func (b *Backend) record(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[method+" "+path]++
}

// createChallenge issues a challenge for address, replacing any pending one
func (b *Backend) createChallenge(address string) (string, time.Time, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	address = common.HexToAddress(address).Hex()
	now := time.Now()
	token, err := b.tokens.challenge(address, uuid.NewString(), hex.EncodeToString(nonceBytes), now, b.challengeTTL)
	if err != nil {
		return "", time.Time{}, err
	}

	b.mu.Lock()
	b.pending[address] = token
	b.mu.Unlock()
	return token, now.Add(b.challengeTTL), nil
}

// walletLogin verifies the signature over the pending challenge of address
func (b *Backend) walletLogin(address, signature string) (tokenPair, *user, error) {
	address = common.HexToAddress(address).Hex()

	b.mu.Lock()
	challenge, ok := b.pending[address]
	b.mu.Unlock()
	if !ok {
		return tokenPair{}, nil, errNoChallenge
	}
	if _, err := b.tokens.parseChallenge(challenge); err != nil {
		return tokenPair{}, nil, err
	}

	signer, err := wallet.RecoverMessageSigner(challenge, signature)
	if err != nil || signer != address {
		return tokenPair{}, nil, errInvalidSignature
	}

	b.mu.Lock()
	delete(b.pending, address)
	userID, ok := b.wallets[address]
	if !ok {
		userID = uuid.NewString()
		b.wallets[address] = userID
		b.users[userID] = &user{ID: userID, Wallets: []walletRecord{{Address: address, Chain: "evm"}}}
	}
	u := b.users[userID]
	b.mu.Unlock()

	pair, err := b.issue(userID)
	return pair, u, err
}

func (b *Backend) createAccount(email, password string) (string, error) {
	email = strings.ToLower(email)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[email]; ok {
		return "", errAccountExists
	}
	userID := uuid.NewString()
	b.accounts[email] = account{userID: userID, password: password}
	b.users[userID] = &user{ID: userID}
	return userID, nil
}

func (b *Backend) login(email, password string) (tokenPair, *user, error) {
	b.mu.Lock()
	acc, ok := b.accounts[strings.ToLower(email)]
	b.mu.Unlock()
	if !ok || acc.password != password {
		return tokenPair{}, nil, errInvalidCredentials
	}

	pair, err := b.issue(acc.userID)
	return pair, b.user(acc.userID), err
}

func (b *Backend) register(email, password string) (tokenPair, *user, error) {
	userID, err := b.createAccount(email, password)
	if err != nil {
		return tokenPair{}, nil, err
	}
	pair, err := b.issue(userID)
	return pair, b.user(userID), err
}

// refresh rotates a refresh token; the old one is revoked
func (b *Backend) refresh(refreshToken string) (tokenPair, error) {
	claims, err := b.tokens.parseRefresh(refreshToken)
	if err != nil {
		return tokenPair{}, err
	}

	b.mu.Lock()
	if !b.live[claims.ID] {
		b.mu.Unlock()
		return tokenPair{}, errRevoked
	}
	delete(b.live, claims.ID)
	b.mu.Unlock()

	return b.issue(claims.Subject)
}

// authenticate validates an access token and returns its user
func (b *Backend) authenticate(accessToken string) (*user, error) {
	claims, err := b.tokens.parseAccess(accessToken)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if claims.Generation != b.generation || !b.live[claims.RefreshID] {
		return nil, errRevoked
	}
	u, ok := b.users[claims.Subject]
	if !ok {
		return nil, errInvalidToken
	}
	return u, nil
}

func (b *Backend) issue(userID string) (tokenPair, error) {
	refreshID := uuid.NewString()

	b.mu.Lock()
	generation := b.generation
	b.live[refreshID] = true
	b.mu.Unlock()

	now := time.Now()

	access, err := b.tokens.access(userID, refreshID, generation, now, b.accessTTL)
	if err != nil {
		return tokenPair{}, fmt.Errorf("failed to create access token: %w", err)
	}
	refresh, err := b.tokens.refresh(userID, refreshID, now, b.refreshTTL)
	if err != nil {
		return tokenPair{}, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return tokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (b *Backend) user(id string) *user {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.users[id]
}
