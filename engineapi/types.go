// Package engineapi defines the JSON wire types the auction daemon speaks,
// and the dispatcher that maps decoded requests onto the engine.
package engineapi

import (
	"time"

	"github.com/gavelworks/gavel/core"
)

// Request discriminators.
const (
	TypePing              = "ping"
	TypeCreateLot         = "create_lot"
	TypeEditLot           = "edit_lot"
	TypeDeleteLot         = "delete_lot"
	TypePlaceBid          = "place_bid"
	TypeExtendLot         = "extend_lot"
	TypeSettleLot         = "settle_lot"
	TypeReclaimPending    = "reclaim_pending"
	TypeWithdrawFees      = "withdraw_fees"
	TypeSetFeeRate        = "set_fee_rate"
	TypeWhitelistCurrency = "whitelist_currency"
	TypeRemoveCurrency    = "remove_currency"
	TypeSetMinDelta       = "set_min_delta"
	TypeGetLot            = "get_lot"
	TypeOpenLots          = "open_lots"
	TypePendingPayment    = "pending_payment"
	TypeCollectedFees     = "collected_fees"
	TypeIsWhitelisted     = "is_whitelisted"
)

// ErrorBody carries a rejected operation's classification and message.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the uniform reply envelope. Data is the operation-specific
// payload, present on success only.
type Response struct {
	Type    string     `json:"type"`
	Success bool       `json:"success"`
	Error   *ErrorBody `json:"error,omitempty"`
	Data    any        `json:"data,omitempty"`
}

// AssetRefBody is the wire form of an asset reference.
type AssetRefBody struct {
	Contract string `json:"contract"`
	TokenID  uint64 `json:"token_id"`
}

// CreateLotRequest registers a new lot. Monetary fields are decimal
// strings; offsets are seconds added to the creation timestamp. Currency
// is "native" or a whitelisted token identifier.
type CreateLotRequest struct {
	Type            string       `json:"type"`
	Caller          string       `json:"caller"`
	Asset           AssetRefBody `json:"asset"`
	Quantity        uint64       `json:"quantity"`
	Currency        string       `json:"currency"`
	BuyNowPrice     string       `json:"buy_now_price"`
	StartPrice      string       `json:"start_price"`
	StartOffsetSec  int64        `json:"start_offset_sec"`
	EndOffsetSec    int64        `json:"end_offset_sec"`
	MinBidDelta     string       `json:"min_bid_delta"`
}

// CreateLotData is the success payload of create_lot.
type CreateLotData struct {
	LotID uint64 `json:"lot_id"`
}

// EditLotRequest carries the editable field set. Omitted fields (empty
// amount strings, zero times) keep the lot's current values. Times are
// unix seconds.
type EditLotRequest struct {
	Type        string `json:"type"`
	Caller      string `json:"caller"`
	LotID       uint64 `json:"lot_id"`
	BuyNowPrice string `json:"buy_now_price,omitempty"`
	StartPrice  string `json:"start_price,omitempty"`
	StartTime   int64  `json:"start_time,omitempty"`
	EndTime     int64  `json:"end_time,omitempty"`
	MinBidDelta string `json:"min_bid_delta,omitempty"`
}

type DeleteLotRequest struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
	LotID  uint64 `json:"lot_id"`
}

// PlaceBidRequest admits a bid. Value is the attached native currency; it
// must equal Amount for native-currency lots and be absent otherwise.
type PlaceBidRequest struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
	LotID  uint64 `json:"lot_id"`
	Amount string `json:"amount"`
	Value  string `json:"value,omitempty"`
}

type ExtendLotRequest struct {
	Type       string `json:"type"`
	Caller     string `json:"caller"`
	LotID      uint64 `json:"lot_id"`
	NewEndTime int64  `json:"new_end_time"`
}

// SettleLotRequest finalizes a lot. Value carries the native royalty
// payment when the asset's rights-holder is owed one.
type SettleLotRequest struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
	LotID  uint64 `json:"lot_id"`
	Value  string `json:"value,omitempty"`
}

type ReclaimPendingRequest struct {
	Type        string `json:"type"`
	Caller      string `json:"caller"`
	LotID       uint64 `json:"lot_id"`
	Payee       string `json:"payee"`
	Destination string `json:"destination"`
}

type WithdrawFeesRequest struct {
	Type        string `json:"type"`
	Caller      string `json:"caller"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

type SetFeeRateRequest struct {
	Type    string `json:"type"`
	Caller  string `json:"caller"`
	RateBps uint32 `json:"rate_bps"`
}

type CurrencyRequest struct {
	Type     string `json:"type"`
	Caller   string `json:"caller"`
	Currency string `json:"currency"`
}

type SetMinDeltaRequest struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
	Value  string `json:"value"`
}

type GetLotRequest struct {
	Type  string `json:"type"`
	LotID uint64 `json:"lot_id"`
}

type OpenLotsRequest struct {
	Type string `json:"type"`
}

type PendingPaymentRequest struct {
	Type  string `json:"type"`
	Payee string `json:"payee"`
	LotID uint64 `json:"lot_id"`
}

type CollectedFeesRequest struct {
	Type     string `json:"type"`
	Currency string `json:"currency"`
}

type IsWhitelistedRequest struct {
	Type     string `json:"type"`
	Currency string `json:"currency"`
}

// WhitelistedData is the success payload of is_whitelisted.
type WhitelistedData struct {
	Currency    string `json:"currency"`
	Whitelisted bool   `json:"whitelisted"`
}

// LotBody is the wire form of a lot record.
type LotBody struct {
	ID            uint64       `json:"id"`
	Asset         AssetRefBody `json:"asset"`
	Quantity      uint64       `json:"quantity"`
	Creator       string       `json:"creator"`
	Currency      string       `json:"currency"`
	BuyNowPrice   string       `json:"buy_now_price"`
	StartPrice    string       `json:"start_price"`
	MinBidDelta   string       `json:"min_bid_delta"`
	StartTime     int64        `json:"start_time"`
	EndTime       int64        `json:"end_time"`
	LeadingBidder string       `json:"leading_bidder,omitempty"`
	LeadingBid    string       `json:"leading_bid"`
	Extended      bool         `json:"extended"`
	BoughtOut     bool         `json:"bought_out"`
}

// AmountData is the success payload of balance queries.
type AmountData struct {
	Amount string `json:"amount"`
}

// PingData is the success payload of ping.
type PingData struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// LotFromCore converts a lot record to its wire form.
func LotFromCore(lot core.AuctionLot) LotBody {
	return LotBody{
		ID:            lot.ID,
		Asset:         AssetRefBody{Contract: string(lot.Asset.Contract), TokenID: lot.Asset.TokenID},
		Quantity:      lot.Quantity,
		Creator:       string(lot.Creator),
		Currency:      CurrencyLabel(lot.PaymentCurrency),
		BuyNowPrice:   lot.BuyNowPrice.String(),
		StartPrice:    lot.StartPrice.String(),
		MinBidDelta:   lot.MinBidDelta.String(),
		StartTime:     lot.StartTime.Unix(),
		EndTime:       lot.EndTime.Unix(),
		LeadingBidder: string(lot.LeadingBidder),
		LeadingBid:    lot.LeadingBid.String(),
		Extended:      lot.Extended,
		BoughtOut:     lot.BoughtOut(),
	}
}

// CurrencyLabel renders a currency for the wire; the native sentinel is
// spelled "native".
func CurrencyLabel(c core.Currency) string {
	if c.IsNative() {
		return "native"
	}
	return string(c)
}

// ParseCurrency maps a wire currency onto the core sentinel form. Both
// "native" and the empty string mean the native currency.
func ParseCurrency(s string) core.Currency {
	if s == "" || s == "native" {
		return core.NativeCurrency
	}
	return core.Currency(s)
}

// ParseUnix converts unix seconds to UTC time.
func ParseUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
