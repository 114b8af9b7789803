// Package memory provides a map-backed Store for tests and single-node
// deployments without durability requirements.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/gavelworks/gavel/core"
)

type pendingKey struct {
	payee core.Address
	lotID uint64
}

// Store keeps the full ledger state in process memory.
type Store struct {
	mu         sync.Mutex
	nextLotID  uint64
	lots       map[uint64]core.AuctionLot
	pending    map[pendingKey]decimal.Decimal
	fees       map[core.Currency]decimal.Decimal
	currencies map[core.Currency]struct{}
	feeRate    uint32
	minDelta   decimal.Decimal
}

// New returns an empty store. Lot identifiers start at 1.
func New() *Store {
	return &Store{
		nextLotID:  1,
		lots:       make(map[uint64]core.AuctionLot),
		pending:    make(map[pendingKey]decimal.Decimal),
		fees:       make(map[core.Currency]decimal.Decimal),
		currencies: make(map[core.Currency]struct{}),
		minDelta:   decimal.Zero,
	}
}

func (s *Store) NextLotID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLotID
	s.nextLotID++
	return id, nil
}

func (s *Store) PutLot(ctx context.Context, lot core.AuctionLot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.ID] = lot
	return nil
}

func (s *Store) GetLot(ctx context.Context, id uint64) (core.AuctionLot, error) {
	if err := ctx.Err(); err != nil {
		return core.AuctionLot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[id]
	if !ok {
		return core.AuctionLot{}, core.ErrNoRecord
	}
	return lot, nil
}

func (s *Store) UpdateLot(ctx context.Context, lot core.AuctionLot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lots[lot.ID]; !ok {
		return core.ErrNoRecord
	}
	s.lots[lot.ID] = lot
	return nil
}

func (s *Store) DeleteLot(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lots[id]; !ok {
		return core.ErrNoRecord
	}
	delete(s.lots, id)
	return nil
}

func (s *Store) ListLots(ctx context.Context) ([]core.AuctionLot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lots := make([]core.AuctionLot, 0, len(s.lots))
	for _, lot := range s.lots {
		lots = append(lots, lot)
	}
	return lots, nil
}

func (s *Store) AddPending(ctx context.Context, payee core.Address, lotID uint64, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pendingKey{payee: payee, lotID: lotID}
	s.pending[key] = s.pending[key].Add(amount)
	return nil
}

func (s *Store) Pending(ctx context.Context, payee core.Address, lotID uint64) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[pendingKey{payee: payee, lotID: lotID}], nil
}

func (s *Store) TakePending(ctx context.Context, payee core.Address, lotID uint64) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pendingKey{payee: payee, lotID: lotID}
	amount := s.pending[key]
	delete(s.pending, key)
	return amount, nil
}

func (s *Store) AccrueFee(ctx context.Context, currency core.Currency, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[currency] = s.fees[currency].Add(amount)
	return nil
}

func (s *Store) Fees(ctx context.Context, currency core.Currency) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fees[currency], nil
}

func (s *Store) TakeFees(ctx context.Context, currency core.Currency) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := s.fees[currency]
	delete(s.fees, currency)
	return amount, nil
}

func (s *Store) AddCurrency(ctx context.Context, currency core.Currency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[currency] = struct{}{}
	return nil
}

func (s *Store) RemoveCurrency(ctx context.Context, currency core.Currency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.currencies, currency)
	return nil
}

func (s *Store) HasCurrency(ctx context.Context, currency core.Currency) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.currencies[currency]
	return ok, nil
}

func (s *Store) FeeRate(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeRate, nil
}

func (s *Store) SetFeeRate(ctx context.Context, bps uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeRate = bps
	return nil
}

func (s *Store) MinDelta(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minDelta, nil
}

func (s *Store) SetMinDelta(ctx context.Context, value decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minDelta = value
	return nil
}

var _ core.Store = (*Store)(nil)
