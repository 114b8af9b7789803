package core

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// BidEngine validates and admits competitive bids against a lot.
type BidEngine struct {
	store    Store
	payments PaymentGateway
	ledger   *PayoutLedger
	clock    Clock
	rec      Recorder
}

// Place admits a bid on lotID and returns the effective accepted amount.
// For native-currency lots the attached value must equal amount; for token
// lots the amount actually received from the payment gateway is the
// effective bid, which protects against fee-on-transfer currencies.
//
// Steps, in order: admission checks, fund collection, ordering rule,
// outgoing-leader refund, leader swap. A rejected bid never retains
// collected funds.
func (b *BidEngine) Place(ctx context.Context, caller Address, lotID uint64, amount, attachedValue decimal.Decimal) (decimal.Decimal, error) {
	lot, err := b.store.GetLot(ctx, lotID)
	if err != nil {
		if xerrors.Is(err, ErrNoRecord) {
			return decimal.Zero, ErrLotNotFound
		}
		return decimal.Zero, xerrors.Errorf("load lot: %w", err)
	}

	if caller == lot.Creator {
		return decimal.Zero, ErrSelfBid
	}
	if caller == lot.LeadingBidder {
		return decimal.Zero, ErrAlreadyLeading
	}
	now := b.clock.Now()
	if lot.Finished(now) {
		return decimal.Zero, ErrLotFinished
	}
	if now.Before(lot.StartTime) {
		return decimal.Zero, ErrLotNotStarted
	}
	if amount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	if amount.GreaterThan(lot.BuyNowPrice) {
		return decimal.Zero, ErrAboveBuyNow
	}

	// Collect funds. Validation past this point must hand collected
	// funds back before rejecting.
	effective := amount
	if lot.PaymentCurrency.IsNative() {
		if !attachedValue.Equal(amount) {
			return decimal.Zero, ErrValueMismatch
		}
	} else {
		if !attachedValue.IsZero() {
			return decimal.Zero, ErrValueMismatch
		}
		received, err := b.payments.Pull(ctx, caller, amount, lot.PaymentCurrency)
		if err != nil {
			return decimal.Zero, transferErr("collect bid", err)
		}
		effective = received
	}

	if err := b.checkOrdering(&lot, effective); err != nil {
		if rerr := b.returnCollected(ctx, &lot, caller, effective); rerr != nil {
			return decimal.Zero, rerr
		}
		return decimal.Zero, err
	}

	// Refund the outgoing leader before the leader swap. A failed token
	// refund rejects the bid and hands the collected funds back.
	if lot.HasBid() {
		if _, err := b.ledger.Push(ctx, lot.ID, lot.PaymentCurrency, lot.LeadingBidder, lot.LeadingBid); err != nil {
			if rerr := b.returnCollected(ctx, &lot, caller, effective); rerr != nil {
				return decimal.Zero, rerr
			}
			return decimal.Zero, xerrors.Errorf("refund outgoing leader: %w", err)
		}
	}

	lot.LeadingBidder = caller
	lot.LeadingBid = effective
	if err := b.store.UpdateLot(ctx, lot); err != nil {
		return decimal.Zero, xerrors.Errorf("update lot: %w", err)
	}

	_ = b.rec.Record(Event{
		Type:      EventBidAccepted,
		Time:      now,
		LotID:     lot.ID,
		Actor:     string(caller),
		Currency:  currencyLabel(lot.PaymentCurrency),
		Amount:    effective.String(),
		BoughtOut: lot.BoughtOut(),
	})
	return effective, nil
}

// checkOrdering applies the strict-increase rule: over the leader plus the
// lot's delta when a leader exists, over the start price otherwise.
func (b *BidEngine) checkOrdering(lot *AuctionLot, effective decimal.Decimal) error {
	if lot.HasBid() {
		if !effective.GreaterThan(lot.LeadingBid.Add(lot.MinBidDelta)) {
			return ErrBidTooLow
		}
		return nil
	}
	if !effective.GreaterThan(lot.StartPrice) {
		return ErrBidTooLow
	}
	return nil
}

// returnCollected hands back funds collected for a bid that is being
// rejected. Native value is simply not retained when the operation fails;
// pulled tokens are pushed straight back.
func (b *BidEngine) returnCollected(ctx context.Context, lot *AuctionLot, bidder Address, collected decimal.Decimal) error {
	if lot.PaymentCurrency.IsNative() || collected.IsZero() {
		return nil
	}
	if !b.payments.Push(ctx, bidder, collected, lot.PaymentCurrency) {
		return transferErr("return collected bid", nil)
	}
	return nil
}
