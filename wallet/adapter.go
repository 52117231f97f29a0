// Package wallet presents one connect/sign interface over several wallet
// providers and chain families.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/ports"
)

// ProviderKey is the storage key of the last used provider id
const ProviderKey = "folio.wallet.provider"

var installURLs = map[core.ProviderID]string{
	core.ProviderFreighter:     "https://www.freighter.app/",
	core.ProviderAlbedo:        "https://albedo.link/",
	core.ProviderMetaMask:      "https://metamask.io/download/",
	core.ProviderWalletConnect: "https://walletconnect.com/",
}

// Adapter owns the wallet connection of the client
type Adapter struct {
	providers map[core.ProviderID]ports.WalletProvider
	storage   ports.Storage
	opener    ports.PageOpener
	network   string

	// conn is read at call time by every signer
	conn atomic.Pointer[core.WalletConnection]

	mu         sync.Mutex
	connecting map[core.ProviderID]bool
}

// Option configures an Adapter
type Option func(*Adapter)

// WithOpener sets how install pages are opened
func WithOpener(opener ports.PageOpener) Option {
	return func(a *Adapter) { a.opener = opener }
}

// WithNetwork sets the network passed to envelope signers
// (a Stellar network passphrase or an EVM chain id)
func WithNetwork(network string) Option {
	return func(a *Adapter) { a.network = network }
}

// NewAdapter creates a new wallet adapter over the given providers
func NewAdapter(storage ports.Storage, providers []ports.WalletProvider, opts ...Option) *Adapter {
	a := &Adapter{
		providers:  make(map[core.ProviderID]ports.WalletProvider, len(providers)),
		storage:    storage,
		connecting: make(map[core.ProviderID]bool),
	}
	for _, p := range providers {
		a.providers[p.ID()] = p
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Providers returns the registered provider ids
func (a *Adapter) Providers() []core.ProviderID {
	ids := make([]core.ProviderID, 0, len(a.providers))
	for id := range a.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Connect binds the adapter to a provider and returns the wallet address.
// A provider that is not installed gets its install page opened and an
// empty address is returned with a nil error.
func (a *Adapter) Connect(ctx context.Context, id core.ProviderID) (string, error) {
	provider, ok := a.providers[id]
	if !ok || !id.Valid() {
		return "", fmt.Errorf("%s: %w", id, core.ErrUnknownProvider)
	}

	a.mu.Lock()
	if a.connecting[id] {
		a.mu.Unlock()
		return "", core.ErrConnectInProgress
	}
	a.connecting[id] = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.connecting, id)
		a.mu.Unlock()
	}()

	address, err := provider.GetAddress(ctx)
	if err != nil {
		if errors.Is(err, core.ErrProviderUnavailable) {
			a.openInstallPage(ctx, provider)
			return "", nil
		}
		return "", fmt.Errorf("failed to connect %s: %w", id, err)
	}

	address, err = normalizeAddress(id.Chain(), address)
	if err != nil {
		return "", fmt.Errorf("failed to connect %s: %w", id, err)
	}

	a.conn.Store(&core.WalletConnection{
		Chain:      id.Chain(),
		ProviderID: id,
		Address:    address,
	})

	if err := a.storage.Set(ctx, ProviderKey, string(id)); err != nil {
		slogctx.Warn(ctx, "Failed to remember wallet provider", "provider", id, "error", err)
	}

	slogctx.Info(ctx, "Wallet connected", "provider", id, "address", address)
	return address, nil
}

// IsConnecting reports whether a connect for id is in flight
func (a *Adapter) IsConnecting(id core.ProviderID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.connecting[id]
}

// Connection returns the current connection
func (a *Adapter) Connection() (core.WalletConnection, bool) {
	conn := a.conn.Load()
	if conn == nil {
		return core.WalletConnection{}, false
	}
	out := *conn
	out.IsConnecting = a.IsConnecting(conn.ProviderID)
	return out, true
}

// LastProvider returns the remembered provider id
func (a *Adapter) LastProvider(ctx context.Context) (core.ProviderID, bool) {
	raw, err := a.storage.Get(ctx, ProviderKey)
	if err != nil {
		return "", false
	}
	id := core.ProviderID(raw)
	return id, id.Valid()
}

// SignMessage signs text with the connected wallet
func (a *Adapter) SignMessage(ctx context.Context, text string) (string, error) {
	conn, provider, err := a.active()
	if err != nil {
		return "", err
	}

	signature, err := provider.SignMessage(ctx, conn.Address, text)
	if err != nil {
		return "", err
	}
	if err := a.checkUnchanged(conn); err != nil {
		return "", err
	}
	return signature, nil
}

// SignPayload signs an opaque transaction envelope with the connected wallet
func (a *Adapter) SignPayload(ctx context.Context, envelope string) (string, error) {
	conn, provider, err := a.active()
	if err != nil {
		return "", err
	}

	signer, ok := provider.(ports.EnvelopeSigner)
	if !ok {
		return "", fmt.Errorf("%s: %w", conn.ProviderID, core.ErrUnsupported)
	}

	signed, err := signer.SignTransactionEnvelope(ctx, envelope, a.network)
	if err != nil {
		return "", err
	}
	if err := a.checkUnchanged(conn); err != nil {
		return "", err
	}
	return signed, nil
}

// Disconnect clears the connection and the remembered provider
func (a *Adapter) Disconnect(ctx context.Context) {
	a.conn.Store(nil)

	if err := a.storage.Delete(ctx, ProviderKey); err != nil {
		slogctx.Warn(ctx, "Failed to forget wallet provider", "error", err)
	}
}

func (a *Adapter) active() (*core.WalletConnection, ports.WalletProvider, error) {
	conn := a.conn.Load()
	if conn == nil {
		return nil, nil, core.ErrNotConnected
	}
	provider, ok := a.providers[conn.ProviderID]
	if !ok || provider.ID().Chain() != conn.Chain {
		return nil, nil, fmt.Errorf("%s: %w", conn.ProviderID, core.ErrUnknownProvider)
	}
	return conn, provider, nil
}

// checkUnchanged rejects a signature made for a connection that has since
// been replaced or dropped
func (a *Adapter) checkUnchanged(conn *core.WalletConnection) error {
	if a.conn.Load() != conn {
		return fmt.Errorf("connection changed while signing: %w", core.ErrNotConnected)
	}
	return nil
}

func (a *Adapter) openInstallPage(ctx context.Context, provider ports.WalletProvider) {
	url := installURLs[provider.ID()]
	if info, ok := provider.(ports.InstallInfo); ok && info.InstallURL() != "" {
		url = info.InstallURL()
	}

	slogctx.Info(ctx, "Wallet provider not installed", "provider", provider.ID(), "install_url", url)
	if a.opener == nil || url == "" {
		return
	}
	if err := a.opener.Open(ctx, url); err != nil {
		slogctx.Warn(ctx, "Failed to open install page", "url", url, "error", err)
	}
}

func normalizeAddress(chain core.ChainKind, address string) (string, error) {
	address = strings.TrimSpace(address)
	switch chain {
	case core.ChainEVM:
		if !common.IsHexAddress(address) {
			return "", fmt.Errorf("invalid evm address %q", address)
		}
		return common.HexToAddress(address).Hex(), nil
	case core.ChainStellar:
		// strkey account ids are 56 base32 characters starting with G
		if len(address) != 56 || address[0] != 'G' {
			return "", fmt.Errorf("invalid stellar address %q", address)
		}
		return address, nil
	default:
		return "", core.ErrUnknownProvider
	}
}
