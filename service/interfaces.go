package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
)

// Stores are implemented by the mongo repositories. Getters return nil, nil
// when nothing matches.

type WalletStore interface {
	GetActiveByChain(ctx context.Context, chain string) (*entity.PlatformWallet, error)
	ListActive(ctx context.Context) ([]*entity.PlatformWallet, error)
}

type WhitelistStore interface {
	Create(ctx context.Context, w *entity.WhitelistAddress) error
	GetByID(ctx context.Context, id string) (*entity.WhitelistAddress, error)
	GetActiveByAddress(ctx context.Context, address string) (*entity.WhitelistAddress, error)
	ListActive(ctx context.Context) ([]*entity.WhitelistAddress, error)
	Deactivate(ctx context.Context, id, actorID string, at time.Time) (*entity.WhitelistAddress, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *entity.TreasuryWithdrawal) error
	GetByID(ctx context.Context, id string) (*entity.TreasuryWithdrawal, error)
	List(ctx context.Context, f entity.WithdrawalFilter) ([]*entity.TreasuryWithdrawal, error)
	ExistsByAddressAndStatus(ctx context.Context, address string, status entity.WithdrawalStatus) (bool, error)
	// Transition returns nil, nil when the record is not in status from.
	Transition(ctx context.Context, id string, from entity.WithdrawalStatus, u entity.WithdrawalUpdate, at time.Time) (*entity.TreasuryWithdrawal, error)
}

type RateConverter interface {
	ToUSD(ctx context.Context, symbol string, amount decimal.Decimal) (decimal.Decimal, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry *entity.AuditLog) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, withdrawalID string) error
}
