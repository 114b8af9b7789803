package validation

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/journal"
)

// lotState is what the replay reconstructs for each lot from its events.
type lotState struct {
	startPrice  decimal.Decimal
	buyNowPrice decimal.Decimal
	minBidDelta decimal.Decimal
	endTime     time.Time
	leadingBid  decimal.Decimal
	hasBid      bool
	boughtOut   bool
	extended    bool
	terminal    bool
}

type pendingKey struct {
	payee string
	lotID uint64
}

// ReplayFile loads the journal at path and replays it.
func ReplayFile(path string) (*ReplayResult, error) {
	frames, err := journal.ReadFile(path)
	if err != nil {
		return &ReplayResult{
			ValidationDetails: []string{"Journal unreadable: " + err.Error()},
		}, nil
	}
	return Replay(frames), nil
}

// Replay re-checks the engine's guarantees against an already-verified
// frame sequence. Frame ordering is the order mutations took effect, so
// every property can be checked by folding the events into per-lot state.
func Replay(frames []journal.Frame) *ReplayResult {
	result := &ReplayResult{
		StreamValid:      true,
		LifecycleValid:   true,
		BidOrderingValid: true,
		ExtensionValid:   true,
		FeeValid:         true,
		PendingValid:     true,
		EventsSeen:       len(frames),
	}

	lots := make(map[uint64]*lotState)
	pending := make(map[pendingKey]decimal.Decimal)

	for _, frame := range frames {
		ev := frame.Event
		switch ev.Type {
		case core.EventLotCreated:
			replayCreate(result, lots, frame.Seq, ev)
		case core.EventLotEdited:
			replayEdit(result, lots, frame.Seq, ev)
		case core.EventLotExtended:
			replayExtend(result, lots, frame.Seq, ev)
		case core.EventLotDeleted:
			lot := liveLot(result, lots, frame.Seq, ev)
			if lot == nil {
				continue
			}
			if lot.hasBid {
				result.LifecycleValid = false
				result.detail("frame %d: lot %d deleted while carrying a bid", frame.Seq, ev.LotID)
			}
			lot.terminal = true
		case core.EventBidAccepted:
			replayBid(result, lots, frame.Seq, ev)
		case core.EventLotSettled:
			replaySettle(result, lots, frame.Seq, ev)
		case core.EventPendingRecorded:
			amount, ok := parseAmount(result, frame.Seq, ev.Amount)
			if !ok {
				continue
			}
			key := pendingKey{payee: ev.Payee, lotID: ev.LotID}
			pending[key] = pending[key].Add(amount)
		case core.EventPendingPaid:
			amount, ok := parseAmount(result, frame.Seq, ev.Amount)
			if !ok {
				continue
			}
			key := pendingKey{payee: ev.Payee, lotID: ev.LotID}
			balance := pending[key]
			if !amount.Equal(balance) {
				result.PendingValid = false
				result.detail("frame %d: pending payout of %s to %s for lot %d, ledger held %s",
					frame.Seq, amount, ev.Payee, ev.LotID, balance)
				continue
			}
			delete(pending, key)
		case core.EventFeeRateChanged:
			if ev.FeeRateBps > core.MaxFeeRateBps {
				result.LifecycleValid = false
				result.detail("frame %d: fee rate %d bps above the %d bps cap",
					frame.Seq, ev.FeeRateBps, core.MaxFeeRateBps)
			}
		case core.EventCurrencyWhitelisted, core.EventCurrencyRemoved,
			core.EventMinDeltaChanged, core.EventFeesWithdrawn:
			// Admin records; nothing to fold into lot state.
		default:
			result.StreamValid = false
			result.detail("frame %d: unknown event type %q", frame.Seq, ev.Type)
		}
	}

	result.LotsSeen = len(lots)
	if result.IsValid() {
		result.detail("Replayed %d events across %d lots; all properties held",
			result.EventsSeen, result.LotsSeen)
	}
	return result
}

func replayCreate(result *ReplayResult, lots map[uint64]*lotState, seq uint64, ev core.Event) {
	if _, exists := lots[ev.LotID]; exists {
		result.LifecycleValid = false
		result.detail("frame %d: lot %d created twice", seq, ev.LotID)
		return
	}
	startPrice, okStart := parseAmount(result, seq, ev.StartPrice)
	buyNow, okBuy := parseAmount(result, seq, ev.BuyNowPrice)
	delta, okDelta := parseAmount(result, seq, ev.MinBidDelta)
	if !okStart || !okBuy || !okDelta {
		return
	}
	if ev.EndTime == nil || ev.StartTime == nil {
		result.StreamValid = false
		result.detail("frame %d: lot %d created without start or end time", seq, ev.LotID)
		return
	}
	if !ev.EndTime.After(*ev.StartTime) {
		result.LifecycleValid = false
		result.detail("frame %d: lot %d created with end %s not after start %s",
			seq, ev.LotID, ev.EndTime, ev.StartTime)
	}
	if !buyNow.GreaterThan(startPrice) {
		result.LifecycleValid = false
		result.detail("frame %d: lot %d created with buy-now %s not above start price %s",
			seq, ev.LotID, buyNow, startPrice)
	}
	lots[ev.LotID] = &lotState{
		startPrice:  startPrice,
		buyNowPrice: buyNow,
		minBidDelta: delta,
		endTime:     *ev.EndTime,
	}
}

func replayEdit(result *ReplayResult, lots map[uint64]*lotState, seq uint64, ev core.Event) {
	lot := liveLot(result, lots, seq, ev)
	if lot == nil {
		return
	}
	startPrice, okStart := parseAmount(result, seq, ev.StartPrice)
	buyNow, okBuy := parseAmount(result, seq, ev.BuyNowPrice)
	delta, okDelta := parseAmount(result, seq, ev.MinBidDelta)
	if !okStart || !okBuy || !okDelta {
		return
	}
	if lot.hasBid && !startPrice.Equal(lot.startPrice) {
		result.LifecycleValid = false
		result.detail("frame %d: lot %d start price changed after a bid was taken", seq, ev.LotID)
	}
	if lot.hasBid && !buyNow.GreaterThan(lot.leadingBid) {
		result.LifecycleValid = false
		result.detail("frame %d: lot %d buy-now %s edited under the leading bid %s",
			seq, ev.LotID, buyNow, lot.leadingBid)
	}
	if ev.EndTime != nil && !ev.EndTime.Equal(lot.endTime) {
		checkExtension(result, lot, seq, ev.LotID, *ev.EndTime)
	}
	lot.startPrice = startPrice
	lot.buyNowPrice = buyNow
	lot.minBidDelta = delta
}

func replayExtend(result *ReplayResult, lots map[uint64]*lotState, seq uint64, ev core.Event) {
	lot := liveLot(result, lots, seq, ev)
	if lot == nil {
		return
	}
	if ev.EndTime == nil {
		result.StreamValid = false
		result.detail("frame %d: extension of lot %d carries no end time", seq, ev.LotID)
		return
	}
	checkExtension(result, lot, seq, ev.LotID, *ev.EndTime)
}

// checkExtension enforces the one-shot rule whether the end time moved via
// an explicit extension or an edit.
func checkExtension(result *ReplayResult, lot *lotState, seq, lotID uint64, newEnd time.Time) {
	if lot.extended {
		result.ExtensionValid = false
		result.detail("frame %d: lot %d extended a second time", seq, lotID)
	}
	if !newEnd.After(lot.endTime) {
		result.ExtensionValid = false
		result.detail("frame %d: lot %d end moved to %s, not after %s",
			seq, lotID, newEnd, lot.endTime)
	}
	if newEnd.Sub(lot.endTime) > core.MaxExtension {
		result.ExtensionValid = false
		result.detail("frame %d: lot %d extended by %s, beyond the %s bound",
			seq, lotID, newEnd.Sub(lot.endTime), core.MaxExtension)
	}
	lot.endTime = newEnd
	lot.extended = true
}

func replayBid(result *ReplayResult, lots map[uint64]*lotState, seq uint64, ev core.Event) {
	lot := liveLot(result, lots, seq, ev)
	if lot == nil {
		return
	}
	amount, ok := parseAmount(result, seq, ev.Amount)
	if !ok {
		return
	}
	if lot.boughtOut {
		result.BidOrderingValid = false
		result.detail("frame %d: bid on lot %d after buy-out", seq, ev.LotID)
	}
	if lot.hasBid {
		if !amount.GreaterThan(lot.leadingBid.Add(lot.minBidDelta)) {
			result.BidOrderingValid = false
			result.detail("frame %d: bid %s on lot %d does not clear leader %s plus delta %s",
				seq, amount, ev.LotID, lot.leadingBid, lot.minBidDelta)
		}
	} else if !amount.GreaterThan(lot.startPrice) {
		result.BidOrderingValid = false
		result.detail("frame %d: opening bid %s on lot %d not above start price %s",
			seq, amount, ev.LotID, lot.startPrice)
	}
	if amount.GreaterThan(lot.buyNowPrice) {
		result.BidOrderingValid = false
		result.detail("frame %d: bid %s on lot %d above buy-now %s",
			seq, amount, ev.LotID, lot.buyNowPrice)
	}
	lot.leadingBid = amount
	lot.hasBid = true
	if ev.BoughtOut {
		if !amount.Equal(lot.buyNowPrice) {
			result.BidOrderingValid = false
			result.detail("frame %d: lot %d marked bought out at %s, buy-now is %s",
				seq, ev.LotID, amount, lot.buyNowPrice)
		}
		lot.boughtOut = true
	}
}

func replaySettle(result *ReplayResult, lots map[uint64]*lotState, seq uint64, ev core.Event) {
	lot := liveLot(result, lots, seq, ev)
	if lot == nil {
		return
	}
	if !lot.hasBid {
		result.LifecycleValid = false
		result.detail("frame %d: lot %d settled without a bid", seq, ev.LotID)
	}
	amount, okAmount := parseAmount(result, seq, ev.Amount)
	fee, okFee := parseAmount(result, seq, ev.Fee)
	net, okNet := parseAmount(result, seq, ev.Net)
	if okAmount && okFee && okNet {
		if lot.hasBid && !amount.Equal(lot.leadingBid) {
			result.FeeValid = false
			result.detail("frame %d: lot %d settled at %s, leading bid was %s",
				seq, ev.LotID, amount, lot.leadingBid)
		}
		if !fee.Add(net).Equal(amount) {
			result.FeeValid = false
			result.detail("frame %d: lot %d fee %s plus net %s does not equal hammer price %s",
				seq, ev.LotID, fee, net, amount)
		}
		if fee.IsNegative() || net.IsNegative() {
			result.FeeValid = false
			result.detail("frame %d: lot %d settled with a negative fee or net", seq, ev.LotID)
		}
	}
	lot.terminal = true
}

// liveLot resolves the event's lot, flagging references to unknown lots
// and any activity after a terminal record.
func liveLot(result *ReplayResult, lots map[uint64]*lotState, seq uint64, ev core.Event) *lotState {
	lot, exists := lots[ev.LotID]
	if !exists {
		result.LifecycleValid = false
		result.detail("frame %d: %s references unknown lot %d", seq, ev.Type, ev.LotID)
		return nil
	}
	if lot.terminal {
		result.LifecycleValid = false
		result.detail("frame %d: %s for lot %d after its terminal record", seq, ev.Type, ev.LotID)
		return nil
	}
	return lot
}

func parseAmount(result *ReplayResult, seq uint64, s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, true
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		result.StreamValid = false
		result.detail("frame %d: unparseable amount %q", seq, s)
		return decimal.Zero, false
	}
	return amount, true
}

// OutstandingPending recomputes the pending-payment balances a journal
// leaves behind; a fully drained ledger returns an empty map.
func OutstandingPending(frames []journal.Frame) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal)
	for _, frame := range frames {
		ev := frame.Event
		switch ev.Type {
		case core.EventPendingRecorded, core.EventPendingPaid:
			amount, err := decimal.NewFromString(ev.Amount)
			if err != nil {
				return nil, xerrors.Errorf("frame %d: parse amount: %w", frame.Seq, err)
			}
			if ev.Type == core.EventPendingPaid {
				amount = amount.Neg()
			}
			key := ev.Payee
			next := balances[key].Add(amount)
			if next.IsZero() {
				delete(balances, key)
			} else {
				balances[key] = next
			}
		}
	}
	return balances, nil
}
