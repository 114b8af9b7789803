package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address identifies an account (creator, bidder, payee) in the host
// environment. The engine treats addresses as opaque strings.
type Address string

// Currency identifies the settlement currency of a lot. The zero value is
// the native currency of the host environment; anything else must be a
// whitelisted fungible-token identifier.
type Currency string

// NativeCurrency is the sentinel for the host environment's native currency.
// It is implicitly eligible as a payment currency and can never be
// whitelisted or removed.
const NativeCurrency Currency = ""

// IsNative reports whether c is the native-currency sentinel.
func (c Currency) IsNative() bool { return c == NativeCurrency }

// AssetClass is the transfer-capability class of an auctioned asset, as
// reported by the AssetTransferGateway.
type AssetClass int

const (
	AssetClassUnknown AssetClass = iota
	AssetClassUnit               // single non-fungible unit
	AssetClassBatch              // fungible batch, quantity transferred at settlement
)

// AssetRef identifies the asset being sold: a contract/collection plus a
// unit identifier within it.
type AssetRef struct {
	Contract Address `json:"contract"`
	TokenID  uint64  `json:"token_id"`
}

// AuctionLot is one auction's full state record. Lot identifiers are
// assigned sequentially and never reused.
type AuctionLot struct {
	ID              uint64          `json:"id"`
	Asset           AssetRef        `json:"asset"`
	Class           AssetClass      `json:"class"`
	Quantity        uint64          `json:"quantity"`
	Creator         Address         `json:"creator"`
	PaymentCurrency Currency        `json:"payment_currency"`
	BuyNowPrice     decimal.Decimal `json:"buy_now_price"`
	StartPrice      decimal.Decimal `json:"start_price"`
	MinBidDelta     decimal.Decimal `json:"min_bid_delta"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	LeadingBidder   Address         `json:"leading_bidder,omitempty"`
	LeadingBid      decimal.Decimal `json:"leading_bid"`
	Extended        bool            `json:"extended"`
	CreatedAt       time.Time       `json:"created_at"`
}

// HasBid reports whether any bid has ever been accepted on the lot.
// LeadingBid is zero exactly when LeadingBidder is unset.
func (l *AuctionLot) HasBid() bool { return l.LeadingBidder != "" }

// BoughtOut reports whether the lot hit its buy-now price. Bought-out lots
// are terminal before their end time.
func (l *AuctionLot) BoughtOut() bool {
	return l.HasBid() && l.LeadingBid.Equal(l.BuyNowPrice)
}

// Finished reports whether the lot can no longer accept bids at the given
// instant.
func (l *AuctionLot) Finished(now time.Time) bool {
	return now.After(l.EndTime) || l.BoughtOut()
}

// Ended reports whether the lot is eligible for settlement at the given
// instant.
func (l *AuctionLot) Ended(now time.Time) bool {
	return !now.Before(l.EndTime) || l.BoughtOut()
}

// CreateLotParams carries the caller-supplied fields of createLot. Times
// are offsets added to the creation timestamp.
type CreateLotParams struct {
	Asset           AssetRef
	Quantity        uint64
	PaymentCurrency Currency
	BuyNowPrice     decimal.Decimal
	StartPrice      decimal.Decimal
	StartOffset     time.Duration
	EndOffset       time.Duration
	MinBidDelta     decimal.Decimal
}

// EditLotParams carries the full editable field set of editLot. Each field
// is applied only when it differs from the lot's current value.
type EditLotParams struct {
	BuyNowPrice decimal.Decimal
	StartPrice  decimal.Decimal
	StartTime   time.Time
	EndTime     time.Time
	MinBidDelta decimal.Decimal
}

const (
	// MaxExtension caps how far a single extension may push out a lot's
	// end time.
	MaxExtension = 30 * 24 * time.Hour

	// MaxFeeRateBps caps the platform fee rate at 15%.
	MaxFeeRateBps = 1500

	// FeeDenominatorBps is the basis-point denominator (10000 = 100%).
	FeeDenominatorBps = 10000
)
