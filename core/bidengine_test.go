package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"

	"github.com/gavelworks/gavel/core"
)

func TestPlaceBidAdmission(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		bidder  core.Address
		amount  int64
		value   int64
		setup   func(f *fixture, id uint64)
		wantErr error
	}{
		{
			name:   "first bid over start price",
			bidder: "bob", amount: 150, value: 150,
		},
		{
			name:   "unknown lot",
			bidder: "bob", amount: 150, value: 150,
			setup: func(f *fixture, id uint64) {
				_ = f.engine.DeleteLot(ctx, "alice", id)
			},
			wantErr: core.ErrLotNotFound,
		},
		{
			name:   "creator cannot self-bid",
			bidder: "alice", amount: 150, value: 150,
			wantErr: core.ErrSelfBid,
		},
		{
			name:   "bid at start price rejected",
			bidder: "bob", amount: 100, value: 100,
			wantErr: core.ErrBidTooLow,
		},
		{
			name:   "bid below start price rejected",
			bidder: "bob", amount: 90, value: 90,
			wantErr: core.ErrBidTooLow,
		},
		{
			name:   "bid above buy-now rejected",
			bidder: "bob", amount: 1001, value: 1001,
			wantErr: core.ErrAboveBuyNow,
		},
		{
			name:   "attached value mismatch",
			bidder: "bob", amount: 150, value: 140,
			wantErr: core.ErrValueMismatch,
		},
		{
			name:   "bid after end time",
			bidder: "bob", amount: 150, value: 150,
			setup: func(f *fixture, id uint64) {
				f.clock.advance(2 * time.Hour)
			},
			wantErr: core.ErrLotFinished,
		},
		{
			name:   "bid before start time",
			bidder: "bob", amount: 150, value: 150,
			setup: func(f *fixture, id uint64) {
				f.clock.now = f.clock.now.Add(-2 * time.Second) // back before start
			},
			wantErr: core.ErrLotNotStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := createOpenLot(t, f, "alice")
			if tt.setup != nil {
				tt.setup(f, id)
			}

			err := f.engine.PlaceBid(ctx, tt.bidder, id, d(tt.amount), d(tt.value))
			if tt.wantErr != nil {
				check.True(t, errors.Is(err, tt.wantErr))
				return
			}
			check.Nil(t, err)

			lot, err := f.engine.GetLot(ctx, id)
			check.Nil(t, err)
			check.Equal(t, tt.bidder, lot.LeadingBidder)
			check.True(t, lot.LeadingBid.Equal(d(tt.amount)))
			check.Equal(t, core.EventBidAccepted, f.events.last().Type)
		})
	}
}

func TestPlaceBidOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := createOpenLot(t, f, "alice")

	check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(150), d(150)))

	// The current leader cannot raise their own bid.
	err := f.engine.PlaceBid(ctx, "bob", id, d(200), d(200))
	check.True(t, errors.Is(err, core.ErrAlreadyLeading))

	// 155 does not exceed 150+10.
	err = f.engine.PlaceBid(ctx, "carol", id, d(155), d(155))
	check.True(t, errors.Is(err, core.ErrBidTooLow))

	// Exactly leader+delta is still not a strict increase.
	err = f.engine.PlaceBid(ctx, "carol", id, d(160), d(160))
	check.True(t, errors.Is(err, core.ErrBidTooLow))

	check.Nil(t, f.engine.PlaceBid(ctx, "carol", id, d(161), d(161)))

	// The outgoing leader got their 150 back.
	check.True(t, f.payments.pushedTo("bob").Equal(d(150)))

	lot, _ := f.engine.GetLot(ctx, id)
	check.Equal(t, core.Address("carol"), lot.LeadingBidder)
	check.True(t, lot.LeadingBid.Equal(d(161)))
}

func TestPlaceBidLeadingBidNonDecreasing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := createOpenLot(t, f, "alice")

	bidders := []core.Address{"b1", "b2", "b3", "b4"}
	amounts := []int64{101, 112, 200, 500}
	prev := d(0)
	for i, bidder := range bidders {
		check.Nil(t, f.engine.PlaceBid(ctx, bidder, id, d(amounts[i]), d(amounts[i])))
		lot, _ := f.engine.GetLot(ctx, id)
		check.True(t, lot.LeadingBid.GreaterThan(prev))
		prev = lot.LeadingBid
	}
}

func TestPlaceBidBuyNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := createOpenLot(t, f, "alice")

	check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(1000), d(1000)))

	lot, _ := f.engine.GetLot(ctx, id)
	check.True(t, lot.BoughtOut())
	check.True(t, f.events.last().BoughtOut)

	// A bought-out lot is terminal before its end time.
	err := f.engine.PlaceBid(ctx, "carol", id, d(1000), d(1000))
	check.True(t, errors.Is(err, core.ErrLotFinished))

	// Bought-out price and time fields are immutable.
	err = f.engine.EditLot(ctx, "alice", id, core.EditLotParams{
		BuyNowPrice: d(2000), StartPrice: lot.StartPrice,
		StartTime: lot.StartTime, EndTime: lot.EndTime, MinBidDelta: lot.MinBidDelta,
	})
	check.True(t, errors.Is(err, core.ErrLotFinished))
}

func TestPlaceBidRefundDeferredWhenPushFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := createOpenLot(t, f, "alice")

	check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(150), d(150)))
	f.payments.failPush["bob"] = true

	check.Nil(t, f.engine.PlaceBid(ctx, "carol", id, d(161), d(161)))

	// The refund landed in the pending ledger instead of failing the bid.
	pending, err := f.engine.PendingPayment(ctx, "bob", id)
	check.Nil(t, err)
	check.True(t, pending.Equal(d(150)))

	var recorded bool
	for _, ev := range f.events.events {
		if ev.Type == core.EventPendingRecorded && ev.Payee == "bob" {
			recorded = true
			check.Equal(t, "150", ev.Amount)
		}
	}
	check.True(t, recorded)
}

func TestPlaceBidReentrancyRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	check.Nil(t, f.engine.WhitelistCurrency(ctx, adminAddr, "TOKN"))
	p := defaultParams()
	p.PaymentCurrency = "TOKN"
	id, err := f.engine.CreateLot(ctx, "alice", p)
	check.Nil(t, err)
	f.clock.advance(2 * time.Second)

	// A payment gateway that calls back into the engine mid-bid is
	// rejected instead of deadlocking.
	var reentrant error
	f.payments.onPull = func() {
		reentrant = f.engine.PlaceBid(ctx, "carol", id, d(200), d(0))
	}
	check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(150), d(0)))
	check.True(t, errors.Is(reentrant, core.ErrReentrantCall))

	lot, err := f.engine.GetLot(ctx, id)
	check.Nil(t, err)
	check.Equal(t, core.Address("bob"), lot.LeadingBidder)
}

func TestPlaceBidTokenCurrency(t *testing.T) {
	ctx := context.Background()

	newTokenLot := func(t *testing.T) (*fixture, uint64) {
		t.Helper()
		f := newFixture(t)
		check.Nil(t, f.engine.WhitelistCurrency(ctx, adminAddr, "TOKN"))
		p := defaultParams()
		p.PaymentCurrency = "TOKN"
		id, err := f.engine.CreateLot(ctx, "alice", p)
		check.Nil(t, err)
		f.clock.advance(2 * time.Second)
		return f, id
	}

	t.Run("pulled amount is the effective bid", func(t *testing.T) {
		f, id := newTokenLot(t)
		// Fee-on-transfer token: every pull loses 3.
		f.payments.pullFee = d(3)

		check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(150), d(0)))
		lot, _ := f.engine.GetLot(ctx, id)
		check.True(t, lot.LeadingBid.Equal(d(147)))
	})

	t.Run("nonzero native value rejected for token lot", func(t *testing.T) {
		f, id := newTokenLot(t)
		err := f.engine.PlaceBid(ctx, "bob", id, d(150), d(150))
		check.True(t, errors.Is(err, core.ErrValueMismatch))
	})

	t.Run("too-low token bid returns pulled funds", func(t *testing.T) {
		f, id := newTokenLot(t)
		err := f.engine.PlaceBid(ctx, "bob", id, d(90), d(0))
		check.True(t, errors.Is(err, core.ErrBidTooLow))
		// Everything pulled was pushed straight back.
		check.True(t, f.payments.pushedTo("bob").Equal(d(90)))
	})

	t.Run("token refund failure rejects the replacement bid", func(t *testing.T) {
		f, id := newTokenLot(t)
		check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(150), d(0)))

		f.payments.failPush["bob"] = true
		err := f.engine.PlaceBid(ctx, "carol", id, d(200), d(0))
		check.Equal(t, core.KindTransfer, core.KindOf(err))

		// Carol got her pulled funds back and bob still leads.
		check.True(t, f.payments.pushedTo("carol").Equal(d(200)))
		lot, _ := f.engine.GetLot(ctx, id)
		check.Equal(t, core.Address("bob"), lot.LeadingBidder)
		check.True(t, lot.LeadingBid.Equal(d(150)))
	})
}
