package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// LotRegistry owns the lot table: creation, edit, deletion and the
// one-shot end-time extension.
type LotRegistry struct {
	store    Store
	assets   AssetTransferGateway
	clock    Clock
	operator Address
	rec      Recorder
}

// Create validates params, allocates the next lot identifier and stores
// the lot with zeroed bid state.
func (r *LotRegistry) Create(ctx context.Context, caller Address, p CreateLotParams) (uint64, error) {
	now := r.clock.Now()

	if p.Quantity == 0 {
		return 0, ErrZeroQuantity
	}
	if p.StartOffset == 0 {
		return 0, ErrZeroStartOffset
	}
	if p.EndOffset <= p.StartOffset {
		return 0, ErrBadTimeWindow
	}
	if p.BuyNowPrice.IsNegative() || p.StartPrice.IsNegative() || p.MinBidDelta.IsNegative() {
		return 0, ErrNegativeAmount
	}
	if !p.BuyNowPrice.GreaterThan(p.StartPrice) {
		return 0, ErrBadPriceBounds
	}

	if !p.PaymentCurrency.IsNative() {
		listed, err := r.store.HasCurrency(ctx, p.PaymentCurrency)
		if err != nil {
			return 0, xerrors.Errorf("check currency whitelist: %w", err)
		}
		if !listed {
			return 0, ErrCurrencyNotListed
		}
	}

	floor, err := r.store.MinDelta(ctx)
	if err != nil {
		return 0, xerrors.Errorf("read min delta: %w", err)
	}
	if p.MinBidDelta.LessThan(floor) {
		return 0, ErrDeltaBelowFloor
	}

	authorized, err := r.assets.IsAuthorized(ctx, caller, r.operator)
	if err != nil {
		return 0, transferErr("asset authorization check", err)
	}
	if !authorized {
		return 0, ErrNotAuthorized
	}

	class, err := r.assets.AssetClass(ctx, p.Asset)
	if err != nil || class == AssetClassUnknown {
		return 0, ErrUnsupportedAsset
	}
	if class == AssetClassUnit && p.Quantity != 1 {
		return 0, ErrUnitQuantity
	}

	id, err := r.store.NextLotID(ctx)
	if err != nil {
		return 0, xerrors.Errorf("allocate lot id: %w", err)
	}

	lot := AuctionLot{
		ID:              id,
		Asset:           p.Asset,
		Class:           class,
		Quantity:        p.Quantity,
		Creator:         caller,
		PaymentCurrency: p.PaymentCurrency,
		BuyNowPrice:     p.BuyNowPrice,
		StartPrice:      p.StartPrice,
		MinBidDelta:     p.MinBidDelta,
		StartTime:       now.Add(p.StartOffset),
		EndTime:         now.Add(p.EndOffset),
		LeadingBid:      decimal.Zero,
		CreatedAt:       now,
	}
	if err := r.store.PutLot(ctx, lot); err != nil {
		return 0, xerrors.Errorf("store lot: %w", err)
	}

	_ = r.rec.Record(Event{
		Type:        EventLotCreated,
		Time:        now,
		LotID:       id,
		Actor:       string(caller),
		Currency:    currencyLabel(p.PaymentCurrency),
		Asset:       &lot.Asset,
		Quantity:    lot.Quantity,
		BuyNowPrice: lot.BuyNowPrice.String(),
		StartPrice:  lot.StartPrice.String(),
		MinBidDelta: lot.MinBidDelta.String(),
		StartTime:   &lot.StartTime,
		EndTime:     &lot.EndTime,
	})
	return id, nil
}

// Edit applies each differing field of p under its field-specific guard.
// The end-time branch shares the extension rules, so an edit that moves
// the end time is itself capped and single-use.
func (r *LotRegistry) Edit(ctx context.Context, caller Address, lotID uint64, p EditLotParams) error {
	lot, err := r.lookup(ctx, lotID)
	if err != nil {
		return err
	}
	if lot.Creator != caller {
		return ErrNotCreator
	}
	now := r.clock.Now()
	if lot.Finished(now) {
		return ErrLotFinished
	}

	if !p.StartPrice.Equal(lot.StartPrice) {
		if lot.HasBid() {
			return ErrBidExists
		}
		if p.StartPrice.IsNegative() {
			return ErrNegativeAmount
		}
		lot.StartPrice = p.StartPrice
	}

	if !p.BuyNowPrice.Equal(lot.BuyNowPrice) {
		if p.BuyNowPrice.IsNegative() {
			return ErrNegativeAmount
		}
		if lot.HasBid() && !p.BuyNowPrice.GreaterThan(lot.LeadingBid) {
			return ErrBadPriceBounds
		}
		lot.BuyNowPrice = p.BuyNowPrice
	}
	if !lot.BuyNowPrice.GreaterThan(lot.StartPrice) {
		return ErrBadPriceBounds
	}

	if !p.StartTime.Equal(lot.StartTime) {
		if !now.Before(lot.StartTime) {
			return ErrLotStarted
		}
		lot.StartTime = p.StartTime
	}

	if !p.EndTime.Equal(lot.EndTime) {
		if err := applyExtension(&lot, p.EndTime); err != nil {
			return err
		}
	}
	if !lot.EndTime.After(lot.StartTime) {
		return ErrBadTimeWindow
	}

	if !p.MinBidDelta.Equal(lot.MinBidDelta) {
		floor, err := r.store.MinDelta(ctx)
		if err != nil {
			return xerrors.Errorf("read min delta: %w", err)
		}
		if p.MinBidDelta.LessThan(floor) {
			return ErrDeltaBelowFloor
		}
		lot.MinBidDelta = p.MinBidDelta
	}

	if err := r.store.UpdateLot(ctx, lot); err != nil {
		return xerrors.Errorf("update lot: %w", err)
	}

	_ = r.rec.Record(Event{
		Type:        EventLotEdited,
		Time:        now,
		LotID:       lot.ID,
		Actor:       string(caller),
		BuyNowPrice: lot.BuyNowPrice.String(),
		StartPrice:  lot.StartPrice.String(),
		MinBidDelta: lot.MinBidDelta.String(),
		StartTime:   &lot.StartTime,
		EndTime:     &lot.EndTime,
	})
	return nil
}

// Delete removes a lot that has never been bid on.
func (r *LotRegistry) Delete(ctx context.Context, caller Address, lotID uint64) error {
	lot, err := r.lookup(ctx, lotID)
	if err != nil {
		return err
	}
	if lot.Creator != caller {
		return ErrNotCreator
	}
	if lot.HasBid() {
		return ErrBidExists
	}
	if err := r.store.DeleteLot(ctx, lotID); err != nil {
		return xerrors.Errorf("delete lot: %w", err)
	}
	_ = r.rec.Record(Event{
		Type:  EventLotDeleted,
		Time:  r.clock.Now(),
		LotID: lotID,
		Actor: string(caller),
	})
	return nil
}

// Extend pushes out a lot's end time. An auction may be extended at most
// once, by at most MaxExtension past its current end time.
func (r *LotRegistry) Extend(ctx context.Context, caller Address, lotID uint64, newEndTime time.Time) error {
	lot, err := r.lookup(ctx, lotID)
	if err != nil {
		return err
	}
	if lot.Creator != caller {
		return ErrNotCreator
	}
	now := r.clock.Now()
	if lot.Finished(now) {
		return ErrLotFinished
	}
	if err := applyExtension(&lot, newEndTime); err != nil {
		return err
	}
	if err := r.store.UpdateLot(ctx, lot); err != nil {
		return xerrors.Errorf("update lot: %w", err)
	}
	_ = r.rec.Record(Event{
		Type:    EventLotExtended,
		Time:    now,
		LotID:   lot.ID,
		Actor:   string(caller),
		EndTime: &lot.EndTime,
	})
	return nil
}

// applyExtension mutates lot's end time under the one-shot extension
// rules.
func applyExtension(lot *AuctionLot, newEndTime time.Time) error {
	if lot.Extended {
		return ErrAlreadyExtended
	}
	if !newEndTime.After(lot.EndTime) {
		return ErrExtensionNotLater
	}
	if newEndTime.Sub(lot.EndTime) > MaxExtension {
		return ErrExtensionTooLong
	}
	lot.EndTime = newEndTime
	lot.Extended = true
	return nil
}

func (r *LotRegistry) lookup(ctx context.Context, lotID uint64) (AuctionLot, error) {
	lot, err := r.store.GetLot(ctx, lotID)
	if err != nil {
		if xerrors.Is(err, ErrNoRecord) {
			return AuctionLot{}, ErrLotNotFound
		}
		return AuctionLot{}, xerrors.Errorf("load lot: %w", err)
	}
	return lot, nil
}
