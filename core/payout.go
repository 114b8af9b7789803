package core

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// PushOutcome tags the result of a payout push.
type PushOutcome int

const (
	// PushDelivered means the payee received the funds immediately.
	PushDelivered PushOutcome = iota
	// PushDeferred means a native-currency push failed and the amount
	// was credited to the pending-payment ledger instead.
	PushDeferred
)

// PayoutLedger is the best-effort push-payment primitive with a persistent
// pending-claim fallback, plus the platform fee accrual.
type PayoutLedger struct {
	store    Store
	payments PaymentGateway
	clock    Clock
	rec      Recorder
	log      zerolog.Logger
}

// Push routes amount to payee in the lot's currency. A failed native push
// is converted into a pending-payment credit rather than an error; a
// failed token push is a hard error with no fallback.
func (l *PayoutLedger) Push(ctx context.Context, lotID uint64, currency Currency, payee Address, amount decimal.Decimal) (PushOutcome, error) {
	if amount.IsZero() {
		return PushDelivered, nil
	}
	if l.payments.Push(ctx, payee, amount, currency) {
		return PushDelivered, nil
	}
	if !currency.IsNative() {
		return 0, transferErr("token payout", nil)
	}

	if err := l.store.AddPending(ctx, payee, lotID, amount); err != nil {
		return 0, xerrors.Errorf("credit pending payment: %w", err)
	}
	l.log.Warn().Uint64("lot", lotID).Str("payee", string(payee)).
		Str("amount", amount.String()).Msg("native push failed, payment deferred")
	_ = l.rec.Record(Event{
		Type:     EventPendingRecorded,
		Time:     l.clock.Now(),
		LotID:    lotID,
		Payee:    string(payee),
		Currency: currencyLabel(currency),
		Amount:   amount.String(),
	})
	return PushDeferred, nil
}

// ReclaimPending zeroes a payee's pending balance and pushes it to
// destination. There is no further fallback: a failed push restores the
// balance and fails the call.
func (l *PayoutLedger) ReclaimPending(ctx context.Context, lotID uint64, payee, destination Address) error {
	amount, err := l.store.TakePending(ctx, payee, lotID)
	if err != nil {
		if xerrors.Is(err, ErrNoRecord) {
			return ErrNoPendingPayment
		}
		return xerrors.Errorf("take pending payment: %w", err)
	}
	if amount.IsZero() {
		return ErrNoPendingPayment
	}
	if !l.payments.Push(ctx, destination, amount, NativeCurrency) {
		if rerr := l.store.AddPending(ctx, payee, lotID, amount); rerr != nil {
			return xerrors.Errorf("restore pending payment after failed push: %w", rerr)
		}
		return transferErr("reclaim push", nil)
	}
	_ = l.rec.Record(Event{
		Type:        EventPendingPaid,
		Time:        l.clock.Now(),
		LotID:       lotID,
		Payee:       string(payee),
		Destination: string(destination),
		Amount:      amount.String(),
	})
	return nil
}

// AccrueFee adds amount to the collected platform fees for currency.
func (l *PayoutLedger) AccrueFee(ctx context.Context, currency Currency, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	if err := l.store.AccrueFee(ctx, currency, amount); err != nil {
		return xerrors.Errorf("accrue fee: %w", err)
	}
	return nil
}

// WithdrawFees zeroes the accrued fee balance for currency and transfers
// it to destination. A failed transfer restores the balance.
func (l *PayoutLedger) WithdrawFees(ctx context.Context, currency Currency, destination Address) error {
	amount, err := l.store.TakeFees(ctx, currency)
	if err != nil {
		if xerrors.Is(err, ErrNoRecord) {
			return ErrNoCollectedFees
		}
		return xerrors.Errorf("take fees: %w", err)
	}
	if amount.IsZero() {
		return ErrNoCollectedFees
	}
	if !l.payments.Push(ctx, destination, amount, currency) {
		if rerr := l.store.AccrueFee(ctx, currency, amount); rerr != nil {
			return xerrors.Errorf("restore fees after failed push: %w", rerr)
		}
		return transferErr("fee withdrawal push", nil)
	}
	_ = l.rec.Record(Event{
		Type:     EventFeesWithdrawn,
		Time:     l.clock.Now(),
		Payee:    string(destination),
		Currency: currencyLabel(currency),
		Amount:   amount.String(),
	})
	return nil
}
