package folio

import (
	"context"

	"github.com/layer-3/folio/core"
)

// Client represents the public interface of the session layer
type Client interface {
	// LoginWithWallet runs the challenge-response login with a wallet provider
	LoginWithWallet(ctx context.Context, provider core.ProviderID) (core.Session, error)

	// Login authenticates with email and password
	Login(ctx context.Context, email, password string) (core.Session, error)

	// Register creates an account and authenticates with it
	Register(ctx context.Context, email, password string) (core.Session, error)

	// Me returns the identity of the current session
	Me(ctx context.Context) (core.Identity, error)

	// Logout clears the session and disconnects the wallet
	Logout(ctx context.Context) error

	// Get fetches path and decodes the unwrapped payload into out
	Get(ctx context.Context, path string, out any) error
}
