package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"

	"github.com/gavelworks/gavel/core"
)

func TestSetFeeRate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  core.Address
		rate    uint32
		wantErr error
	}{
		{"admin sets valid rate", adminAddr, 500, nil},
		{"max rate allowed", adminAddr, 1500, nil},
		{"above max rejected", adminAddr, 1501, core.ErrFeeRateTooHigh},
		{"non-admin rejected", "mallory", 500, core.ErrNotAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.engine.SetFeeRate(ctx, tt.caller, tt.rate)
			if tt.wantErr != nil {
				check.True(t, errors.Is(err, tt.wantErr))
				return
			}
			check.Nil(t, err)
			check.Equal(t, core.EventFeeRateChanged, f.events.last().Type)
			check.Equal(t, tt.rate, f.events.last().FeeRateBps)
		})
	}
}

func TestCurrencyWhitelist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Native currency is implicitly eligible and never a member.
	ok, err := f.engine.IsWhitelisted(ctx, core.NativeCurrency)
	check.Nil(t, err)
	check.True(t, ok)
	err = f.engine.WhitelistCurrency(ctx, adminAddr, core.NativeCurrency)
	check.True(t, errors.Is(err, core.ErrNativeNotListable))
	err = f.engine.RemoveCurrency(ctx, adminAddr, core.NativeCurrency)
	check.True(t, errors.Is(err, core.ErrNativeNotListable))

	ok, err = f.engine.IsWhitelisted(ctx, "TOKN")
	check.Nil(t, err)
	check.False(t, ok)

	check.Nil(t, f.engine.WhitelistCurrency(ctx, adminAddr, "TOKN"))
	ok, _ = f.engine.IsWhitelisted(ctx, "TOKN")
	check.True(t, ok)

	check.Nil(t, f.engine.RemoveCurrency(ctx, adminAddr, "TOKN"))
	ok, _ = f.engine.IsWhitelisted(ctx, "TOKN")
	check.False(t, ok)

	err = f.engine.WhitelistCurrency(ctx, "mallory", "TOKN")
	check.True(t, errors.Is(err, core.ErrNotAdmin))
}

func TestSetMinDeltaFloorsNewLots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	check.Nil(t, f.engine.SetMinDelta(ctx, adminAddr, d(50)))

	p := defaultParams()
	p.MinBidDelta = d(10)
	_, err := f.engine.CreateLot(ctx, "alice", p)
	check.True(t, errors.Is(err, core.ErrDeltaBelowFloor))

	p.MinBidDelta = d(50)
	_, err = f.engine.CreateLot(ctx, "alice", p)
	check.Nil(t, err)
}

func TestOpenLots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	open := createOpenLot(t, f, "alice")
	bought := createOpenLot(t, f, "alice")
	check.Nil(t, f.engine.PlaceBid(ctx, "bob", bought, d(1000), d(1000)))

	lots, err := f.engine.OpenLots(ctx)
	check.Nil(t, err)
	check.Equal(t, 1, len(lots))
	check.Equal(t, open, lots[0].ID)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind core.Kind
	}{
		{core.ErrBidTooLow, core.KindBidOrdering},
		{core.ErrLotNotFound, core.KindNotFound},
		{core.ErrNotAdmin, core.KindAuthorization},
		{core.ErrLotFinished, core.KindLifecycle},
		{core.ErrZeroQuantity, core.KindValidation},
		{core.ErrRoyaltyMismatch, core.KindRoyaltyMismatch},
		{core.ErrReentrantCall, core.KindReentrancy},
		{core.ErrTransferFailed, core.KindTransfer},
	}
	for _, tt := range tests {
		check.Equal(t, tt.kind, core.KindOf(tt.err))
	}
	check.Equal(t, core.KindUnknown, core.KindOf(errors.New("other")))
}
