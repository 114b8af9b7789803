package core

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// ErrNoRecord is returned by Store implementations when a requested record
// does not exist. The engine maps it onto its own not-found sentinels.
var ErrNoRecord = xerrors.New("store: record not found")

// Store owns the engine's persisted state: the lot table, the pending
// payment and fee ledgers, the currency whitelist, and the global
// settings. All engine mutations run under the engine's operation guard,
// so implementations only need per-call consistency.
type Store interface {
	// NextLotID allocates the next sequential lot identifier.
	// Identifiers are never reused.
	NextLotID(ctx context.Context) (uint64, error)

	PutLot(ctx context.Context, lot AuctionLot) error
	GetLot(ctx context.Context, id uint64) (AuctionLot, error)
	UpdateLot(ctx context.Context, lot AuctionLot) error
	DeleteLot(ctx context.Context, id uint64) error
	ListLots(ctx context.Context) ([]AuctionLot, error)

	// AddPending credits a payee's unclaimed balance for a lot.
	AddPending(ctx context.Context, payee Address, lotID uint64, amount decimal.Decimal) error
	Pending(ctx context.Context, payee Address, lotID uint64) (decimal.Decimal, error)
	// TakePending reads and zeroes a pending balance in one step.
	TakePending(ctx context.Context, payee Address, lotID uint64) (decimal.Decimal, error)

	AccrueFee(ctx context.Context, currency Currency, amount decimal.Decimal) error
	Fees(ctx context.Context, currency Currency) (decimal.Decimal, error)
	// TakeFees reads and zeroes the accrued balance in one step.
	TakeFees(ctx context.Context, currency Currency) (decimal.Decimal, error)

	AddCurrency(ctx context.Context, currency Currency) error
	RemoveCurrency(ctx context.Context, currency Currency) error
	HasCurrency(ctx context.Context, currency Currency) (bool, error)

	FeeRate(ctx context.Context) (uint32, error)
	SetFeeRate(ctx context.Context, bps uint32) error
	MinDelta(ctx context.Context) (decimal.Decimal, error)
	SetMinDelta(ctx context.Context, value decimal.Decimal) error
}
