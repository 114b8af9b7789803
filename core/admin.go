package core

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// SetFeeRate changes the platform fee rate, in basis points out of 10000,
// bounded at MaxFeeRateBps. Privileged.
func (e *Engine) SetFeeRate(ctx context.Context, caller Address, bps uint32) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if bps > MaxFeeRateBps {
		return ErrFeeRateTooHigh
	}
	if err := e.store.SetFeeRate(ctx, bps); err != nil {
		return xerrors.Errorf("set fee rate: %w", err)
	}
	_ = e.Record(Event{
		Type:       EventFeeRateChanged,
		Time:       e.clock.Now(),
		Actor:      string(caller),
		FeeRateBps: bps,
	})
	return nil
}

// WhitelistCurrency makes a fungible token eligible as a payment currency.
// The native currency is implicitly eligible and cannot be listed.
// Privileged.
func (e *Engine) WhitelistCurrency(ctx context.Context, caller Address, currency Currency) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if currency.IsNative() {
		return ErrNativeNotListable
	}
	if err := e.store.AddCurrency(ctx, currency); err != nil {
		return xerrors.Errorf("whitelist currency: %w", err)
	}
	_ = e.Record(Event{
		Type:     EventCurrencyWhitelisted,
		Time:     e.clock.Now(),
		Actor:    string(caller),
		Currency: string(currency),
	})
	return nil
}

// RemoveCurrency withdraws a fungible token's payment-currency
// eligibility. Existing lots keep their currency. Privileged.
func (e *Engine) RemoveCurrency(ctx context.Context, caller Address, currency Currency) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if currency.IsNative() {
		return ErrNativeNotListable
	}
	if err := e.store.RemoveCurrency(ctx, currency); err != nil {
		return xerrors.Errorf("remove currency: %w", err)
	}
	_ = e.Record(Event{
		Type:     EventCurrencyRemoved,
		Time:     e.clock.Now(),
		Actor:    string(caller),
		Currency: string(currency),
	})
	return nil
}

// SetMinDelta changes the process-wide floor that every new or edited
// lot's min bid delta must respect. Privileged.
func (e *Engine) SetMinDelta(ctx context.Context, caller Address, value decimal.Decimal) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if value.IsNegative() {
		return ErrNegativeAmount
	}
	if err := e.store.SetMinDelta(ctx, value); err != nil {
		return xerrors.Errorf("set min delta: %w", err)
	}
	_ = e.Record(Event{
		Type:        EventMinDeltaChanged,
		Time:        e.clock.Now(),
		Actor:       string(caller),
		MinBidDelta: value.String(),
	})
	return nil
}
