package ports

import (
	"context"

	"github.com/layer-3/folio/core"
)

// WalletProvider is the capability boundary of a wallet SDK.
// Errors wrap core.ErrProviderUnavailable when the wallet is not installed
// and core.ErrSigningRejected when the user declines.
type WalletProvider interface {
	ID() core.ProviderID
	GetAddress(ctx context.Context) (string, error)
	SignMessage(ctx context.Context, address, text string) (string, error)
}

// EnvelopeSigner is implemented by providers that sign ledger transactions
type EnvelopeSigner interface {
	SignTransactionEnvelope(ctx context.Context, envelope, network string) (string, error)
}

// InstallInfo is implemented by providers that have an install page
type InstallInfo interface {
	InstallURL() string
}

// PageOpener opens an external page, such as a wallet install page
type PageOpener interface {
	Open(ctx context.Context, url string) error
}
