package core

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// SettlementEngine finalizes ended or bought-out lots: fee deduction,
// creator payout, royalty repayment and asset hand-off.
type SettlementEngine struct {
	store     Store
	assets    AssetTransferGateway
	payments  PaymentGateway
	royalties RoyaltyOracle
	ledger    *PayoutLedger
	clock     Clock
	rec       Recorder
}

// Settle finalizes lotID. The caller must be the leading bidder and the
// lot must have reached its end time or its buy-now price.
//
// The lot record is deleted before any external transfer is attempted, so
// a reentrant call observes a consistent post-state and cannot
// double-settle. Settlement is terminal: past that deletion the lot is
// gone regardless of how the remaining transfers fare; individual
// sub-payments may still land in the pending ledger.
func (s *SettlementEngine) Settle(ctx context.Context, caller Address, lotID uint64, attachedRoyalty decimal.Decimal) error {
	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		if xerrors.Is(err, ErrNoRecord) {
			return ErrLotNotFound
		}
		return xerrors.Errorf("load lot: %w", err)
	}
	now := s.clock.Now()
	if !lot.Ended(now) {
		return ErrLotNotEnded
	}
	if !lot.HasBid() || caller != lot.LeadingBidder {
		return ErrNotWinner
	}
	if attachedRoyalty.IsNegative() {
		return ErrNegativeAmount
	}

	// Royalty preconditions are checked against the oracle before any
	// state is destroyed, so a mismatched call rejects cleanly.
	royaltyReceiver, royaltyAmount, err := s.royaltyDue(ctx, &lot)
	if err != nil {
		return err
	}
	if lot.PaymentCurrency.IsNative() {
		if !attachedRoyalty.Equal(royaltyAmount) {
			return ErrRoyaltyMismatch
		}
	} else if !attachedRoyalty.IsZero() {
		return ErrRoyaltyMismatch
	}

	// Point of no return: delete the lot, then move funds and the asset.
	if err := s.store.DeleteLot(ctx, lotID); err != nil {
		return xerrors.Errorf("delete lot: %w", err)
	}

	feeRate, err := s.store.FeeRate(ctx)
	if err != nil {
		return xerrors.Errorf("read fee rate: %w", err)
	}
	fee := lot.LeadingBid.
		Mul(decimal.NewFromInt(int64(feeRate))).
		Div(decimal.NewFromInt(FeeDenominatorBps)).
		Floor()
	net := lot.LeadingBid.Sub(fee)

	if err := s.ledger.AccrueFee(ctx, lot.PaymentCurrency, fee); err != nil {
		return err
	}
	if _, err := s.ledger.Push(ctx, lot.ID, lot.PaymentCurrency, lot.Creator, net); err != nil {
		return xerrors.Errorf("pay creator: %w", err)
	}

	if royaltyAmount.IsPositive() {
		if err := s.payRoyalty(ctx, &lot, caller, royaltyReceiver, royaltyAmount); err != nil {
			return err
		}
	}

	if err := s.assets.Transfer(ctx, lot.Creator, caller, lot.Asset, lot.Quantity); err != nil {
		return transferErr("asset transfer", err)
	}

	_ = s.rec.Record(Event{
		Type:            EventLotSettled,
		Time:            now,
		LotID:           lot.ID,
		Actor:           string(caller),
		Payee:           string(lot.Creator),
		Currency:        currencyLabel(lot.PaymentCurrency),
		Asset:           &lot.Asset,
		Quantity:        lot.Quantity,
		Amount:          lot.LeadingBid.String(),
		Fee:             fee.String(),
		Net:             net.String(),
		Royalty:         royaltyAmount.String(),
		RoyaltyReceiver: string(royaltyReceiver),
	})
	return nil
}

// royaltyDue asks the oracle what the rights-holder is owed for this sale.
// Assets without royalty support owe nothing.
func (s *SettlementEngine) royaltyDue(ctx context.Context, lot *AuctionLot) (Address, decimal.Decimal, error) {
	supported, err := s.assets.SupportsRoyalty(ctx, lot.Asset)
	if err != nil {
		return "", decimal.Zero, transferErr("royalty support check", err)
	}
	if !supported {
		return "", decimal.Zero, nil
	}
	receiver, amount, err := s.royalties.RoyaltyInfo(ctx, lot.Asset, lot.LeadingBid)
	if err != nil {
		return "", decimal.Zero, transferErr("royalty lookup", err)
	}
	if amount.IsNegative() {
		return "", decimal.Zero, transferErr("royalty lookup", xerrors.New("negative royalty"))
	}
	return receiver, amount, nil
}

// payRoyalty moves the royalty to its receiver. The royalty is paid in
// addition to the bid, out-of-band from the escrowed amount: native
// royalties arrive as the winner's attached value, token royalties are
// pulled from the winner directly.
func (s *SettlementEngine) payRoyalty(ctx context.Context, lot *AuctionLot, winner, receiver Address, amount decimal.Decimal) error {
	if !lot.PaymentCurrency.IsNative() {
		received, err := s.payments.Pull(ctx, winner, amount, lot.PaymentCurrency)
		if err != nil {
			return transferErr("collect royalty", err)
		}
		amount = received
	}
	if _, err := s.ledger.Push(ctx, lot.ID, lot.PaymentCurrency, receiver, amount); err != nil {
		return xerrors.Errorf("pay royalty: %w", err)
	}
	return nil
}
