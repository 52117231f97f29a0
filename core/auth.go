package core

import "time"

// ChainKind identifies a ledger family
type ChainKind string

const (
	ChainStellar ChainKind = "stellar"
	ChainEVM     ChainKind = "evm"
)

// ProviderID identifies a wallet provider
type ProviderID string

const (
	ProviderFreighter     ProviderID = "freighter"
	ProviderAlbedo        ProviderID = "albedo"
	ProviderMetaMask      ProviderID = "metamask"
	ProviderWalletConnect ProviderID = "walletconnect"
)

// Chain returns the chain family the provider signs for
func (p ProviderID) Chain() ChainKind {
	switch p {
	case ProviderFreighter, ProviderAlbedo:
		return ChainStellar
	case ProviderMetaMask, ProviderWalletConnect:
		return ChainEVM
	default:
		return ""
	}
}

// Valid reports whether p is a known provider
func (p ProviderID) Valid() bool {
	return p.Chain() != ""
}

// Origin tells who issued a session
type Origin string

const (
	OriginServer        Origin = "server"
	OriginLocalFallback Origin = "local-fallback"
)

// LinkedAddress is a wallet address bound to an identity
type LinkedAddress struct {
	Address string    `json:"address"`
	Chain   ChainKind `json:"chain"`
}

// Identity is the authenticated user
type Identity struct {
	ID              string          `json:"id"`
	LinkedAddresses []LinkedAddress `json:"linkedAddresses,omitempty"`
}

// Session represents the authenticated identity of the current client.
// A stored session always carries a non-empty access token.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Identity     *Identity `json:"identity,omitempty"`
	Origin       Origin    `json:"origin"`
	AccessExpiry time.Time `json:"accessExpiry,omitempty"`
}

// Validate checks the session invariants
func (s Session) Validate() error {
	if s.AccessToken == "" {
		return ErrInvalidSession
	}
	switch s.Origin {
	case OriginServer, OriginLocalFallback:
		return nil
	default:
		return ErrInvalidSession
	}
}

// IsFallback reports whether the session was synthesized locally
func (s Session) IsFallback() bool {
	return s.Origin == OriginLocalFallback
}

// WalletConnection is the live binding to a signing capability
type WalletConnection struct {
	Chain        ChainKind  `json:"chain"`
	ProviderID   ProviderID `json:"providerId"`
	Address      string     `json:"address"`
	IsConnecting bool       `json:"isConnecting"`
}

// AuthState is a state of the login state machine
type AuthState int

const (
	StateIdle AuthState = iota
	StateConnecting
	StateChallengeRequested
	StateSigning
	StateVerifying
	StateAuthenticated
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateChallengeRequested:
		return "challenge_requested"
	case StateSigning:
		return "signing"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
