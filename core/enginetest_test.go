package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/store/memory"
)

// Shared test doubles for the engine's external collaborators.

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(dur time.Duration) { c.now = c.now.Add(dur) }

type fakeAssets struct {
	authorized     bool
	class          core.AssetClass
	classErr       error
	royaltySupport bool
	transferErr    error
	transfers      []string
	onTransfer     func()
}

func (a *fakeAssets) IsAuthorized(ctx context.Context, owner, operator core.Address) (bool, error) {
	return a.authorized, nil
}

func (a *fakeAssets) AssetClass(ctx context.Context, ref core.AssetRef) (core.AssetClass, error) {
	return a.class, a.classErr
}

func (a *fakeAssets) SupportsRoyalty(ctx context.Context, ref core.AssetRef) (bool, error) {
	return a.royaltySupport, nil
}

func (a *fakeAssets) Transfer(ctx context.Context, from, to core.Address, ref core.AssetRef, quantity uint64) error {
	if a.onTransfer != nil {
		a.onTransfer()
	}
	if a.transferErr != nil {
		return a.transferErr
	}
	a.transfers = append(a.transfers, string(from)+"->"+string(to))
	return nil
}

type payment struct {
	payee    core.Address
	amount   decimal.Decimal
	currency core.Currency
}

type fakePayments struct {
	pullErr  error
	pullFee  decimal.Decimal // deducted from every pull to model fee-on-transfer tokens
	failPush map[core.Address]bool
	pulls    []payment
	pushes   []payment
	onPull   func()
}

func (p *fakePayments) Pull(ctx context.Context, payer core.Address, amount decimal.Decimal, currency core.Currency) (decimal.Decimal, error) {
	if p.onPull != nil {
		p.onPull()
	}
	if p.pullErr != nil {
		return decimal.Zero, p.pullErr
	}
	received := amount.Sub(p.pullFee)
	p.pulls = append(p.pulls, payment{payee: payer, amount: received, currency: currency})
	return received, nil
}

func (p *fakePayments) Push(ctx context.Context, payee core.Address, amount decimal.Decimal, currency core.Currency) bool {
	if p.failPush[payee] {
		return false
	}
	p.pushes = append(p.pushes, payment{payee: payee, amount: amount, currency: currency})
	return true
}

// pushedTo sums everything delivered to payee.
func (p *fakePayments) pushedTo(payee core.Address) decimal.Decimal {
	total := decimal.Zero
	for _, pay := range p.pushes {
		if pay.payee == payee {
			total = total.Add(pay.amount)
		}
	}
	return total
}

type fakeRoyalty struct {
	receiver core.Address
	amount   decimal.Decimal
	err      error
}

func (r *fakeRoyalty) RoyaltyInfo(ctx context.Context, ref core.AssetRef, salePrice decimal.Decimal) (core.Address, decimal.Decimal, error) {
	return r.receiver, r.amount, r.err
}

type fakeAuth struct {
	admins map[core.Address]bool
}

func (a *fakeAuth) IsAdmin(ctx context.Context, caller core.Address) (bool, error) {
	return a.admins[caller], nil
}

type capture struct {
	events []core.Event
}

func (c *capture) Record(ev core.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *capture) last() core.Event {
	if len(c.events) == 0 {
		return core.Event{}
	}
	return c.events[len(c.events)-1]
}

type fixture struct {
	engine   *core.Engine
	store    *memory.Store
	clock    *fakeClock
	assets   *fakeAssets
	payments *fakePayments
	royalty  *fakeRoyalty
	auth     *fakeAuth
	events   *capture
}

const adminAddr = core.Address("admin")

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		clock:    &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		assets:   &fakeAssets{authorized: true, class: core.AssetClassUnit},
		payments: &fakePayments{failPush: map[core.Address]bool{}, pullFee: decimal.Zero},
		royalty:  &fakeRoyalty{amount: decimal.Zero},
		auth:     &fakeAuth{admins: map[core.Address]bool{adminAddr: true}},
		events:   &capture{},
	}
	engine, err := core.NewEngine(core.Options{
		Store:     f.store,
		Assets:    f.assets,
		Payments:  f.payments,
		Royalties: f.royalty,
		Auth:      f.auth,
		Operator:  "escrow",
		Clock:     f.clock,
		Recorder:  f.events,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	f.engine = engine
	return f
}

func defaultParams() core.CreateLotParams {
	return core.CreateLotParams{
		Asset:       core.AssetRef{Contract: "collection-1", TokenID: 7},
		Quantity:    1,
		BuyNowPrice: d(1000),
		StartPrice:  d(100),
		StartOffset: time.Second,
		EndOffset:   time.Hour,
		MinBidDelta: d(10),
	}
}

// createOpenLot creates a lot with defaultParams and advances the clock
// past its start time.
func createOpenLot(t *testing.T, f *fixture, creator core.Address) uint64 {
	t.Helper()
	id, err := f.engine.CreateLot(context.Background(), creator, defaultParams())
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	f.clock.advance(2 * time.Second)
	return id
}
