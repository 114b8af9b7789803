package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// Options wires an Engine. Store and the three transfer-side gateways are
// required; Clock, Recorder and Logger have working defaults.
type Options struct {
	Store     Store
	Assets    AssetTransferGateway
	Payments  PaymentGateway
	Royalties RoyaltyOracle
	Auth      AuthorizationGateway

	// Operator is the identity asset owners must have authorized for
	// transfers before creating a lot.
	Operator Address

	Clock    Clock
	Recorder Recorder
	Logger   zerolog.Logger
}

// Engine is the auction engine facade: it owns the operation guard and
// delegates to the lot registry, bid engine, payout ledger and settlement
// engine, which share its injected capabilities.
type Engine struct {
	store Store
	clock Clock
	auth  AuthorizationGateway
	rec   Recorder
	log   zerolog.Logger

	registry   *LotRegistry
	bids       *BidEngine
	ledger     *PayoutLedger
	settlement *SettlementEngine

	// busy is the single-shot operation guard. Public mutating
	// operations acquire it for their whole span; an external transfer
	// callback re-entering the engine mid-operation is rejected instead
	// of deadlocking.
	busy atomic.Bool
}

// NewEngine validates opts and builds the engine and its components.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, xerrors.New("engine: Store is required")
	}
	if opts.Assets == nil {
		return nil, xerrors.New("engine: Assets gateway is required")
	}
	if opts.Payments == nil {
		return nil, xerrors.New("engine: Payments gateway is required")
	}
	if opts.Royalties == nil {
		return nil, xerrors.New("engine: Royalties oracle is required")
	}
	if opts.Auth == nil {
		return nil, xerrors.New("engine: Auth gateway is required")
	}
	if opts.Operator == "" {
		return nil, xerrors.New("engine: Operator identity is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}

	e := &Engine{
		store: opts.Store,
		clock: opts.Clock,
		auth:  opts.Auth,
		rec:   opts.Recorder,
		log:   opts.Logger,
	}
	e.ledger = &PayoutLedger{store: opts.Store, payments: opts.Payments, clock: opts.Clock, rec: e, log: opts.Logger}
	e.registry = &LotRegistry{store: opts.Store, assets: opts.Assets, clock: opts.Clock, operator: opts.Operator, rec: e}
	e.bids = &BidEngine{store: opts.Store, payments: opts.Payments, ledger: e.ledger, clock: opts.Clock, rec: e}
	e.settlement = &SettlementEngine{
		store:     opts.Store,
		assets:    opts.Assets,
		payments:  opts.Payments,
		royalties: opts.Royalties,
		ledger:    e.ledger,
		clock:     opts.Clock,
		rec:       e,
	}
	return e, nil
}

// acquire takes the operation guard; callers must release on every exit
// path.
func (e *Engine) acquire() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) release() { e.busy.Store(false) }

// Record forwards an audit event to the configured recorder. The mutation
// this event describes has already taken effect; a sink failure is logged
// and not propagated.
func (e *Engine) Record(ev Event) error {
	if err := e.rec.Record(ev); err != nil {
		e.log.Error().Err(err).Str("event", string(ev.Type)).Uint64("lot", ev.LotID).
			Msg("audit record dropped")
	}
	return nil
}

func (e *Engine) requireAdmin(ctx context.Context, caller Address) error {
	ok, err := e.auth.IsAdmin(ctx, caller)
	if err != nil {
		return transferErr("admin check", err)
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}

// CreateLot registers a new lot and returns its identifier.
func (e *Engine) CreateLot(ctx context.Context, caller Address, p CreateLotParams) (uint64, error) {
	if err := e.acquire(); err != nil {
		return 0, err
	}
	defer e.release()
	id, err := e.registry.Create(ctx, caller, p)
	if err != nil {
		e.log.Debug().Err(err).Str("creator", string(caller)).Msg("create lot rejected")
		return 0, err
	}
	e.log.Info().Uint64("lot", id).Str("creator", string(caller)).Msg("lot created")
	return id, nil
}

// EditLot updates the editable fields of a lot.
func (e *Engine) EditLot(ctx context.Context, caller Address, lotID uint64, p EditLotParams) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.registry.Edit(ctx, caller, lotID, p)
}

// DeleteLot removes a never-bid lot.
func (e *Engine) DeleteLot(ctx context.Context, caller Address, lotID uint64) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.registry.Delete(ctx, caller, lotID)
}

// Extend pushes out a lot's end time once, capped at MaxExtension.
func (e *Engine) Extend(ctx context.Context, caller Address, lotID uint64, newEndTime time.Time) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	return e.registry.Extend(ctx, caller, lotID, newEndTime)
}

// PlaceBid admits a competitive bid. attachedValue is the native currency
// sent with the call; it must equal amount for native-currency lots and be
// zero otherwise.
func (e *Engine) PlaceBid(ctx context.Context, caller Address, lotID uint64, amount, attachedValue decimal.Decimal) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	accepted, err := e.bids.Place(ctx, caller, lotID, amount, attachedValue)
	if err != nil {
		e.log.Debug().Err(err).Uint64("lot", lotID).Str("bidder", string(caller)).Msg("bid rejected")
		return err
	}
	e.log.Info().Uint64("lot", lotID).Str("bidder", string(caller)).
		Str("amount", accepted.String()).Msg("bid accepted")
	return nil
}

// Settle finalizes an ended or bought-out lot. attachedRoyalty is the
// native value sent to cover the oracle-reported royalty; it must be zero
// when no royalty is due or the lot settles in a token currency.
func (e *Engine) Settle(ctx context.Context, caller Address, lotID uint64, attachedRoyalty decimal.Decimal) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.settlement.Settle(ctx, caller, lotID, attachedRoyalty); err != nil {
		return err
	}
	e.log.Info().Uint64("lot", lotID).Str("winner", string(caller)).Msg("lot settled")
	return nil
}

// ReclaimPending pays out a payee's pending balance for a lot. Privileged.
func (e *Engine) ReclaimPending(ctx context.Context, caller Address, lotID uint64, payee, destination Address) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.requireAdmin(ctx, caller); err != nil {
		return err
	}
	return e.ledger.ReclaimPending(ctx, lotID, payee, destination)
}

// WithdrawFees transfers the accrued platform fees for a currency.
// Privileged.
func (e *Engine) WithdrawFees(ctx context.Context, caller Address, currency Currency, destination Address) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()
	if err := e.requireAdmin(ctx, caller); err != nil {
		return err
	}
	return e.ledger.WithdrawFees(ctx, currency, destination)
}

// GetLot returns a lot's current record.
func (e *Engine) GetLot(ctx context.Context, lotID uint64) (AuctionLot, error) {
	lot, err := e.store.GetLot(ctx, lotID)
	if err != nil {
		if xerrors.Is(err, ErrNoRecord) {
			return AuctionLot{}, ErrLotNotFound
		}
		return AuctionLot{}, err
	}
	return lot, nil
}

// OpenLots returns all lots that can still accept bids.
func (e *Engine) OpenLots(ctx context.Context) ([]AuctionLot, error) {
	lots, err := e.store.ListLots(ctx)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	open := make([]AuctionLot, 0, len(lots))
	for _, lot := range lots {
		if !lot.Finished(now) {
			open = append(open, lot)
		}
	}
	return open, nil
}

// PendingPayment returns a payee's unclaimed balance for a lot.
func (e *Engine) PendingPayment(ctx context.Context, payee Address, lotID uint64) (decimal.Decimal, error) {
	return e.store.Pending(ctx, payee, lotID)
}

// CollectedFees returns the accrued platform fee for a currency.
func (e *Engine) CollectedFees(ctx context.Context, currency Currency) (decimal.Decimal, error) {
	return e.store.Fees(ctx, currency)
}

// IsWhitelisted reports whether a currency is eligible as a payment
// currency. The native currency is implicitly eligible.
func (e *Engine) IsWhitelisted(ctx context.Context, currency Currency) (bool, error) {
	if currency.IsNative() {
		return true, nil
	}
	return e.store.HasCurrency(ctx, currency)
}
