package core

import "time"

// EventType discriminates audit records.
type EventType string

const (
	EventLotCreated          EventType = "lot_created"
	EventLotEdited           EventType = "lot_edited"
	EventLotExtended         EventType = "lot_extended"
	EventLotDeleted          EventType = "lot_deleted"
	EventBidAccepted         EventType = "bid_accepted"
	EventPendingRecorded     EventType = "pending_payment_recorded"
	EventPendingPaid         EventType = "pending_payment_paid"
	EventLotSettled          EventType = "lot_settled"
	EventFeeRateChanged      EventType = "fee_rate_changed"
	EventCurrencyWhitelisted EventType = "currency_whitelisted"
	EventCurrencyRemoved     EventType = "currency_removed"
	EventMinDeltaChanged     EventType = "min_delta_changed"
	EventFeesWithdrawn       EventType = "fees_withdrawn"
)

// Event is one audit record. Exactly one is emitted per successful
// mutating operation, after the mutation takes effect. Monetary fields are
// decimal strings; unused fields are omitted.
type Event struct {
	Type  EventType `json:"type" cbor:"type"`
	Time  time.Time `json:"time" cbor:"time"`
	LotID uint64    `json:"lot_id,omitempty" cbor:"lot_id,omitempty"`
	Actor string    `json:"actor,omitempty" cbor:"actor,omitempty"`
	// Payee is the ledger account the amount was credited to or drained
	// from; Destination is where a drained amount was delivered when that
	// differs from the account itself.
	Payee       string `json:"payee,omitempty" cbor:"payee,omitempty"`
	Destination string `json:"destination,omitempty" cbor:"destination,omitempty"`
	Currency    string `json:"currency,omitempty" cbor:"currency,omitempty"`

	Asset    *AssetRef `json:"asset,omitempty" cbor:"asset,omitempty"`
	Quantity uint64    `json:"quantity,omitempty" cbor:"quantity,omitempty"`

	Amount          string `json:"amount,omitempty" cbor:"amount,omitempty"`
	Fee             string `json:"fee,omitempty" cbor:"fee,omitempty"`
	Net             string `json:"net,omitempty" cbor:"net,omitempty"`
	Royalty         string `json:"royalty,omitempty" cbor:"royalty,omitempty"`
	RoyaltyReceiver string `json:"royalty_receiver,omitempty" cbor:"royalty_receiver,omitempty"`

	BuyNowPrice string     `json:"buy_now_price,omitempty" cbor:"buy_now_price,omitempty"`
	StartPrice  string     `json:"start_price,omitempty" cbor:"start_price,omitempty"`
	MinBidDelta string     `json:"min_bid_delta,omitempty" cbor:"min_bid_delta,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty" cbor:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty" cbor:"end_time,omitempty"`

	FeeRateBps uint32 `json:"fee_rate_bps,omitempty" cbor:"fee_rate_bps,omitempty"`
	BoughtOut  bool   `json:"bought_out,omitempty" cbor:"bought_out,omitempty"`
}

// Recorder is the audit sink. Record is called once per successful
// mutating operation, in the order mutations took effect. A failing
// recorder does not undo the mutation; the engine surfaces the failure in
// its log only.
type Recorder interface {
	Record(ev Event) error
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(Event) error { return nil }

// currencyLabel renders a currency for audit records; the native sentinel
// is spelled out so records stay self-describing.
func currencyLabel(c Currency) string {
	if c.IsNative() {
		return "native"
	}
	return string(c)
}
