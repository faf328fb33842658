package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
)

// BalanceReader reads live balances in smallest units.
type BalanceReader interface {
	TokenBalance(ctx context.Context, chain, address string) (*big.Int, error)
	NativeBalance(ctx context.Context, chain, address string) (*big.Int, error)
}

// Broadcaster signs and submits a token transfer, returning the tx hash.
type Broadcaster interface {
	SendTransfer(ctx context.Context, chainID int64, keyRef, to string, amount *big.Int) (string, error)
}

// KeyResolver resolves a signing key reference to a private key.
type KeyResolver interface {
	PrivateKey(ref string) (*ecdsa.PrivateKey, error)
}
