package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Clock supplies the current time. Each public operation reads the clock
// exactly once and never re-samples mid-operation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host's wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// AssetTransferGateway performs ownership transfers of auctioned assets and
// reports their transfer-capability class and royalty support.
type AssetTransferGateway interface {
	// IsAuthorized reports whether operator may transfer owner's assets.
	IsAuthorized(ctx context.Context, owner, operator Address) (bool, error)

	// AssetClass reports the transfer-capability class of the asset.
	AssetClass(ctx context.Context, ref AssetRef) (AssetClass, error)

	// SupportsRoyalty reports whether the asset reports royalty info.
	SupportsRoyalty(ctx context.Context, ref AssetRef) (bool, error)

	// Transfer moves quantity units of the asset from one owner to
	// another. Fails hard on any transfer precondition violation.
	Transfer(ctx context.Context, from, to Address, ref AssetRef, quantity uint64) error
}

// PaymentGateway moves native-currency and fungible-token balances.
type PaymentGateway interface {
	// Pull collects amount from payer and returns the amount actually
	// received, which may be lower for fee-on-transfer tokens.
	Pull(ctx context.Context, payer Address, amount decimal.Decimal, currency Currency) (decimal.Decimal, error)

	// Push sends amount to payee and reports whether the transfer
	// succeeded.
	Push(ctx context.Context, payee Address, amount decimal.Decimal, currency Currency) bool
}

// RoyaltyOracle reports the rights-holder repayment owed for a sale.
type RoyaltyOracle interface {
	RoyaltyInfo(ctx context.Context, ref AssetRef, salePrice decimal.Decimal) (Address, decimal.Decimal, error)
}

// AuthorizationGateway owns the role check behind the privileged admin
// surface.
type AuthorizationGateway interface {
	IsAdmin(ctx context.Context, caller Address) (bool, error)
}
