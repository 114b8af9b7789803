package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"

	"github.com/gavelworks/gavel/core"
)

// deferRefund creates a lot, gets bob outbid with his refund push failing,
// and returns the lot id. bob ends up with a pending balance of 150.
func deferRefund(t *testing.T, f *fixture) uint64 {
	t.Helper()
	ctx := context.Background()
	id := createOpenLot(t, f, "alice")
	check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(150), d(150)))
	f.payments.failPush["bob"] = true
	check.Nil(t, f.engine.PlaceBid(ctx, "carol", id, d(161), d(161)))
	delete(f.payments.failPush, "bob")
	return id
}

func TestReclaimPending(t *testing.T) {
	ctx := context.Background()

	t.Run("admin reclaims to destination", func(t *testing.T) {
		f := newFixture(t)
		id := deferRefund(t, f)

		check.Nil(t, f.engine.ReclaimPending(ctx, adminAddr, id, "bob", "bob-cold"))
		check.True(t, f.payments.pushedTo("bob-cold").Equal(d(150)))

		// The balance is zeroed exactly once.
		pending, err := f.engine.PendingPayment(ctx, "bob", id)
		check.Nil(t, err)
		check.True(t, pending.IsZero())
		err = f.engine.ReclaimPending(ctx, adminAddr, id, "bob", "bob-cold")
		check.True(t, errors.Is(err, core.ErrNoPendingPayment))

		// The record keys the drained ledger account, not where the
		// funds were delivered.
		ev := f.events.last()
		check.Equal(t, core.EventPendingPaid, ev.Type)
		check.Equal(t, "bob", ev.Payee)
		check.Equal(t, "bob-cold", ev.Destination)
	})

	t.Run("non-admin rejected", func(t *testing.T) {
		f := newFixture(t)
		id := deferRefund(t, f)
		err := f.engine.ReclaimPending(ctx, "bob", id, "bob", "bob")
		check.True(t, errors.Is(err, core.ErrNotAdmin))
	})

	t.Run("failed push restores the balance", func(t *testing.T) {
		f := newFixture(t)
		id := deferRefund(t, f)
		f.payments.failPush["bob-cold"] = true

		err := f.engine.ReclaimPending(ctx, adminAddr, id, "bob", "bob-cold")
		check.Equal(t, core.KindTransfer, core.KindOf(err))

		pending, perr := f.engine.PendingPayment(ctx, "bob", id)
		check.Nil(t, perr)
		check.True(t, pending.Equal(d(150)))
	})
}

func TestPendingConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := createOpenLot(t, f, "alice")

	// bob is outbid twice with failing refund pushes; his pending balance
	// accumulates exactly what was routed to him.
	check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(150), d(150)))
	f.payments.failPush["bob"] = true
	check.Nil(t, f.engine.PlaceBid(ctx, "carol", id, d(161), d(161)))
	check.Nil(t, f.engine.PlaceBid(ctx, "bob", id, d(200), d(200)))
	check.Nil(t, f.engine.PlaceBid(ctx, "carol", id, d(300), d(300)))

	pending, err := f.engine.PendingPayment(ctx, "bob", id)
	check.Nil(t, err)
	check.True(t, pending.Equal(d(350))) // 150 + 200

	delete(f.payments.failPush, "bob")
	check.Nil(t, f.engine.ReclaimPending(ctx, adminAddr, id, "bob", "bob"))
	check.True(t, f.payments.pushedTo("bob").Equal(d(350)))
}

func TestWithdrawFees(t *testing.T) {
	ctx := context.Background()

	t.Run("zeroes and transfers", func(t *testing.T) {
		f := newFixture(t)
		check.Nil(t, f.engine.SetFeeRate(ctx, adminAddr, 500))
		id := createOpenLot(t, f, "alice")
		endLot(t, f, id, "bob", 1000)
		check.Nil(t, f.engine.Settle(ctx, "bob", id, d(0)))

		check.Nil(t, f.engine.WithdrawFees(ctx, adminAddr, core.NativeCurrency, "treasury"))
		check.True(t, f.payments.pushedTo("treasury").Equal(d(50)))

		fees, _ := f.engine.CollectedFees(ctx, core.NativeCurrency)
		check.True(t, fees.IsZero())
		err := f.engine.WithdrawFees(ctx, adminAddr, core.NativeCurrency, "treasury")
		check.True(t, errors.Is(err, core.ErrNoCollectedFees))
	})

	t.Run("non-admin rejected", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.WithdrawFees(ctx, "mallory", core.NativeCurrency, "mallory")
		check.True(t, errors.Is(err, core.ErrNotAdmin))
	})

	t.Run("failed push restores the balance", func(t *testing.T) {
		f := newFixture(t)
		check.Nil(t, f.engine.SetFeeRate(ctx, adminAddr, 500))
		id := createOpenLot(t, f, "alice")
		endLot(t, f, id, "bob", 1000)
		check.Nil(t, f.engine.Settle(ctx, "bob", id, d(0)))

		f.payments.failPush["treasury"] = true
		err := f.engine.WithdrawFees(ctx, adminAddr, core.NativeCurrency, "treasury")
		check.Equal(t, core.KindTransfer, core.KindOf(err))

		fees, _ := f.engine.CollectedFees(ctx, core.NativeCurrency)
		check.True(t, fees.Equal(d(50)))
	})
}

func TestRefundsKeepFundsMoving(t *testing.T) {
	// A full competitive auction: every outbid bidder gets refunded,
	// deferred or not, and the books balance at settlement.
	ctx := context.Background()
	f := newFixture(t)
	check.Nil(t, f.engine.SetFeeRate(ctx, adminAddr, 250)) // 2.5%
	id := createOpenLot(t, f, "alice")

	check.Nil(t, f.engine.PlaceBid(ctx, "b1", id, d(120), d(120)))
	check.Nil(t, f.engine.PlaceBid(ctx, "b2", id, d(140), d(140)))
	check.Nil(t, f.engine.PlaceBid(ctx, "b3", id, d(1000), d(1000))) // buy-now

	check.True(t, f.payments.pushedTo("b1").Equal(d(120)))
	check.True(t, f.payments.pushedTo("b2").Equal(d(140)))

	check.Nil(t, f.engine.Settle(ctx, "b3", id, d(0)))
	// fee = floor(1000*250/10000) = 25
	check.True(t, f.payments.pushedTo("alice").Equal(d(975)))
	fees, _ := f.engine.CollectedFees(ctx, core.NativeCurrency)
	check.True(t, fees.Equal(d(25)))
}
