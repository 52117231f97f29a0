// Package wallet contains wallet providers and install page openers that
// run without a browser extension.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/ports"
)

// KeyProvider is an EVM wallet backed by a local secp256k1 key.
// It registers under an EVM provider id so flows built for browser
// wallets can run from a terminal or a test.
type KeyProvider struct {
	id  core.ProviderID
	key *ecdsa.PrivateKey
}

// NewKeyProvider creates a provider for id signing with key
func NewKeyProvider(id core.ProviderID, key *ecdsa.PrivateKey) (*KeyProvider, error) {
	if id.Chain() != core.ChainEVM {
		return nil, fmt.Errorf("%s is not an evm provider: %w", id, core.ErrUnknownProvider)
	}
	return &KeyProvider{id: id, key: key}, nil
}

// NewKeyProviderFromHex parses a hex private key, with or without 0x
func NewKeyProviderFromHex(id core.ProviderID, hexKey string) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeyProvider(id, key)
}

var (
	_ ports.WalletProvider = (*KeyProvider)(nil)
	_ ports.EnvelopeSigner = (*KeyProvider)(nil)
)

// ID returns the provider id
func (p *KeyProvider) ID() core.ProviderID {
	return p.id
}

// GetAddress returns the checksummed address of the key
func (p *KeyProvider) GetAddress(ctx context.Context) (string, error) {
	return crypto.PubkeyToAddress(p.key.PublicKey).Hex(), nil
}

// SignMessage signs text the way personal_sign does (EIP-191)
func (p *KeyProvider) SignMessage(ctx context.Context, address, text string) (string, error) {
	if err := p.checkAddress(address); err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

// SignTransactionEnvelope signs a 0x-hex encoded unsigned transaction for
// the chain id given as network
func (p *KeyProvider) SignTransactionEnvelope(ctx context.Context, envelope, network string) (string, error) {
	chainID, ok := new(big.Int).SetString(network, 10)
	if !ok {
		return "", fmt.Errorf("invalid chain id %q", network)
	}

	raw, err := hexutil.Decode(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to decode envelope: %w", err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("failed to decode transaction: %w", err)
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	out, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return hexutil.Encode(out), nil
}

func (p *KeyProvider) checkAddress(address string) error {
	own := crypto.PubkeyToAddress(p.key.PublicKey).Hex()
	if !strings.EqualFold(own, address) {
		return fmt.Errorf("key does not control %s: %w", address, core.ErrSigningRejected)
	}
	return nil
}

// RecoverMessageSigner returns the address that produced a personal_sign
// signature over text
func RecoverMessageSigner(text, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
