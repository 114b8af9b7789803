// Package sqlite provides a durable Store backed by a single SQLite
// database file. Monetary amounts are stored as decimal strings and
// timestamps as UTC unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/store/sqlite/migrations"
)

// Store persists the full ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ core.Store = (*Store)(nil)

// Open opens the store at path and applies embedded migrations. The
// connection runs in WAL mode with a busy timeout, so a reader such as
// the auditor can inspect the file while the daemon holds it.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New("sqlite: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerrors.Errorf("sqlite: open: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, xerrors.Errorf("sqlite: ping: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, xerrors.Errorf("sqlite: run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (s *Store) NextLotID(ctx context.Context) (uint64, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, xerrors.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id uint64
	if err := tx.QueryRowContext(ctx, "SELECT next_id FROM lot_sequence WHERE id = 1").Scan(&id); err != nil {
		return 0, xerrors.Errorf("read lot sequence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE lot_sequence SET next_id = next_id + 1 WHERE id = 1"); err != nil {
		return 0, xerrors.Errorf("advance lot sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, xerrors.Errorf("commit: %w", err)
	}
	return id, nil
}

const lotColumns = `id, contract, token_id, class, quantity, creator, currency,
buy_now_price, start_price, min_bid_delta, start_time, end_time,
leading_bidder, leading_bid, extended, created_at`

func (s *Store) PutLot(ctx context.Context, lot core.AuctionLot) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO lots (`+lotColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID,
		string(lot.Asset.Contract),
		lot.Asset.TokenID,
		int(lot.Class),
		lot.Quantity,
		string(lot.Creator),
		string(lot.PaymentCurrency),
		lot.BuyNowPrice.String(),
		lot.StartPrice.String(),
		lot.MinBidDelta.String(),
		toMillis(lot.StartTime),
		toMillis(lot.EndTime),
		string(lot.LeadingBidder),
		lot.LeadingBid.String(),
		boolToInt(lot.Extended),
		toMillis(lot.CreatedAt),
	)
	if err != nil {
		return xerrors.Errorf("insert lot %d: %w", lot.ID, err)
	}
	return nil
}

func (s *Store) GetLot(ctx context.Context, id uint64) (core.AuctionLot, error) {
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+lotColumns+" FROM lots WHERE id = ?", id)
	lot, err := scanLot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.AuctionLot{}, core.ErrNoRecord
		}
		return core.AuctionLot{}, xerrors.Errorf("load lot %d: %w", id, err)
	}
	return lot, nil
}

func (s *Store) UpdateLot(ctx context.Context, lot core.AuctionLot) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE lots SET
		   contract = ?, token_id = ?, class = ?, quantity = ?, creator = ?,
		   currency = ?, buy_now_price = ?, start_price = ?, min_bid_delta = ?,
		   start_time = ?, end_time = ?, leading_bidder = ?, leading_bid = ?,
		   extended = ?, created_at = ?
		 WHERE id = ?`,
		string(lot.Asset.Contract),
		lot.Asset.TokenID,
		int(lot.Class),
		lot.Quantity,
		string(lot.Creator),
		string(lot.PaymentCurrency),
		lot.BuyNowPrice.String(),
		lot.StartPrice.String(),
		lot.MinBidDelta.String(),
		toMillis(lot.StartTime),
		toMillis(lot.EndTime),
		string(lot.LeadingBidder),
		lot.LeadingBid.String(),
		boolToInt(lot.Extended),
		toMillis(lot.CreatedAt),
		lot.ID,
	)
	if err != nil {
		return xerrors.Errorf("update lot %d: %w", lot.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Errorf("update lot %d: %w", lot.ID, err)
	}
	if affected == 0 {
		return core.ErrNoRecord
	}
	return nil
}

func (s *Store) DeleteLot(ctx context.Context, id uint64) error {
	res, err := s.sqlDB.ExecContext(ctx, "DELETE FROM lots WHERE id = ?", id)
	if err != nil {
		return xerrors.Errorf("delete lot %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Errorf("delete lot %d: %w", id, err)
	}
	if affected == 0 {
		return core.ErrNoRecord
	}
	return nil
}

func (s *Store) ListLots(ctx context.Context) ([]core.AuctionLot, error) {
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT "+lotColumns+" FROM lots ORDER BY id")
	if err != nil {
		return nil, xerrors.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var lots []core.AuctionLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, xerrors.Errorf("list lots: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Errorf("list lots: %w", err)
	}
	return lots, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (core.AuctionLot, error) {
	var (
		lot                          core.AuctionLot
		contract, creator, currency  string
		leadingBidder                string
		buyNow, start, delta, bid    string
		class, extended              int
		startMs, endMs, createdMs    int64
	)
	err := row.Scan(
		&lot.ID, &contract, &lot.Asset.TokenID, &class, &lot.Quantity,
		&creator, &currency, &buyNow, &start, &delta,
		&startMs, &endMs, &leadingBidder, &bid, &extended, &createdMs,
	)
	if err != nil {
		return core.AuctionLot{}, err
	}
	lot.Asset.Contract = core.Address(contract)
	lot.Class = core.AssetClass(class)
	lot.Creator = core.Address(creator)
	lot.PaymentCurrency = core.Currency(currency)
	lot.LeadingBidder = core.Address(leadingBidder)
	lot.StartTime = fromMillis(startMs)
	lot.EndTime = fromMillis(endMs)
	lot.CreatedAt = fromMillis(createdMs)
	lot.Extended = extended != 0
	if lot.BuyNowPrice, err = parseDecimal(buyNow); err != nil {
		return core.AuctionLot{}, xerrors.Errorf("parse buy-now price: %w", err)
	}
	if lot.StartPrice, err = parseDecimal(start); err != nil {
		return core.AuctionLot{}, xerrors.Errorf("parse start price: %w", err)
	}
	if lot.MinBidDelta, err = parseDecimal(delta); err != nil {
		return core.AuctionLot{}, xerrors.Errorf("parse min delta: %w", err)
	}
	if lot.LeadingBid, err = parseDecimal(bid); err != nil {
		return core.AuctionLot{}, xerrors.Errorf("parse leading bid: %w", err)
	}
	return lot, nil
}

func (s *Store) AddPending(ctx context.Context, payee core.Address, lotID uint64, amount decimal.Decimal) error {
	return s.adjustBalance(ctx, balanceQuery{
		selectSQL: "SELECT amount FROM pending_payments WHERE payee = ? AND lot_id = ?",
		upsertSQL: `INSERT INTO pending_payments (payee, lot_id, amount) VALUES (?, ?, ?)
		            ON CONFLICT (payee, lot_id) DO UPDATE SET amount = excluded.amount`,
		keys: []any{string(payee), lotID},
	}, amount)
}

func (s *Store) Pending(ctx context.Context, payee core.Address, lotID uint64) (decimal.Decimal, error) {
	return s.readBalance(ctx,
		"SELECT amount FROM pending_payments WHERE payee = ? AND lot_id = ?",
		string(payee), lotID)
}

func (s *Store) TakePending(ctx context.Context, payee core.Address, lotID uint64) (decimal.Decimal, error) {
	return s.takeBalance(ctx, balanceQuery{
		selectSQL: "SELECT amount FROM pending_payments WHERE payee = ? AND lot_id = ?",
		deleteSQL: "DELETE FROM pending_payments WHERE payee = ? AND lot_id = ?",
		keys:      []any{string(payee), lotID},
	})
}

func (s *Store) AccrueFee(ctx context.Context, currency core.Currency, amount decimal.Decimal) error {
	return s.adjustBalance(ctx, balanceQuery{
		selectSQL: "SELECT amount FROM collected_fees WHERE currency = ?",
		upsertSQL: `INSERT INTO collected_fees (currency, amount) VALUES (?, ?)
		            ON CONFLICT (currency) DO UPDATE SET amount = excluded.amount`,
		keys: []any{string(currency)},
	}, amount)
}

func (s *Store) Fees(ctx context.Context, currency core.Currency) (decimal.Decimal, error) {
	return s.readBalance(ctx, "SELECT amount FROM collected_fees WHERE currency = ?", string(currency))
}

func (s *Store) TakeFees(ctx context.Context, currency core.Currency) (decimal.Decimal, error) {
	return s.takeBalance(ctx, balanceQuery{
		selectSQL: "SELECT amount FROM collected_fees WHERE currency = ?",
		deleteSQL: "DELETE FROM collected_fees WHERE currency = ?",
		keys:      []any{string(currency)},
	})
}

// balanceQuery names the statements a decimal balance operation runs; the
// key arguments are shared across them.
type balanceQuery struct {
	selectSQL string
	upsertSQL string
	deleteSQL string
	keys      []any
}

// adjustBalance adds amount to a stored decimal inside a transaction.
// SQLite cannot add decimal strings, so the balance is read, summed in Go,
// and written back.
func (s *Store) adjustBalance(ctx context.Context, q balanceQuery, amount decimal.Decimal) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, q.selectSQL, q.keys...).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return xerrors.Errorf("read balance: %w", err)
	}
	balance, err := parseDecimal(current)
	if err != nil {
		return xerrors.Errorf("parse balance: %w", err)
	}

	args := append(append([]any{}, q.keys...), balance.Add(amount).String())
	if _, err := tx.ExecContext(ctx, q.upsertSQL, args...); err != nil {
		return xerrors.Errorf("write balance: %w", err)
	}
	return tx.Commit()
}

func (s *Store) readBalance(ctx context.Context, query string, keys ...any) (decimal.Decimal, error) {
	var current string
	err := s.sqlDB.QueryRowContext(ctx, query, keys...).Scan(&current)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, xerrors.Errorf("read balance: %w", err)
	}
	balance, err := parseDecimal(current)
	if err != nil {
		return decimal.Zero, xerrors.Errorf("parse balance: %w", err)
	}
	return balance, nil
}

// takeBalance reads and zeroes a balance in one transaction.
func (s *Store) takeBalance(ctx context.Context, q balanceQuery) (decimal.Decimal, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, xerrors.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, q.selectSQL, q.keys...).Scan(&current)
	if err == sql.ErrNoRows {
		return decimal.Zero, tx.Commit()
	}
	if err != nil {
		return decimal.Zero, xerrors.Errorf("read balance: %w", err)
	}
	balance, err := parseDecimal(current)
	if err != nil {
		return decimal.Zero, xerrors.Errorf("parse balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q.deleteSQL, q.keys...); err != nil {
		return decimal.Zero, xerrors.Errorf("zero balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, xerrors.Errorf("commit: %w", err)
	}
	return balance, nil
}

func (s *Store) AddCurrency(ctx context.Context, currency core.Currency) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO currencies (currency) VALUES (?)", string(currency))
	if err != nil {
		return xerrors.Errorf("add currency: %w", err)
	}
	return nil
}

func (s *Store) RemoveCurrency(ctx context.Context, currency core.Currency) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM currencies WHERE currency = ?", string(currency))
	if err != nil {
		return xerrors.Errorf("remove currency: %w", err)
	}
	return nil
}

func (s *Store) HasCurrency(ctx context.Context, currency core.Currency) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT 1 FROM currencies WHERE currency = ?", string(currency)).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("check currency: %w", err)
	}
	return true, nil
}

const (
	settingFeeRate  = "fee_rate_bps"
	settingMinDelta = "min_bid_delta"
)

func (s *Store) FeeRate(ctx context.Context) (uint32, error) {
	value, err := s.readSetting(ctx, settingFeeRate)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	bps, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, xerrors.Errorf("parse fee rate: %w", err)
	}
	return uint32(bps), nil
}

func (s *Store) SetFeeRate(ctx context.Context, bps uint32) error {
	return s.writeSetting(ctx, settingFeeRate, strconv.FormatUint(uint64(bps), 10))
}

func (s *Store) MinDelta(ctx context.Context) (decimal.Decimal, error) {
	value, err := s.readSetting(ctx, settingMinDelta)
	if err != nil {
		return decimal.Zero, err
	}
	delta, err := parseDecimal(value)
	if err != nil {
		return decimal.Zero, xerrors.Errorf("parse min delta: %w", err)
	}
	return delta, nil
}

func (s *Store) SetMinDelta(ctx context.Context, value decimal.Decimal) error {
	return s.writeSetting(ctx, settingMinDelta, value.String())
}

func (s *Store) readSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", xerrors.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) writeSetting(ctx context.Context, key, value string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return xerrors.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
