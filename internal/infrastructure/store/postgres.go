package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/stock-ledger/internal/domain/stock"
)

// PostgresStore implements RecordStore on PostgreSQL. Every quantity
// mutation is a single conditional UPDATE whose WHERE clause re-checks the
// precondition at write time, so the check and the write are indivisible
// with respect to other writers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// EnsureSchema creates the stock_records table if it does not exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS stock_records (
			product_id        TEXT PRIMARY KEY,
			product_name      TEXT NOT NULL DEFAULT '',
			owner_id          TEXT NOT NULL DEFAULT '',
			stock_quantity    INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
			reserved_quantity INTEGER NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0 AND reserved_quantity <= stock_quantity),
			sold_quantity     INTEGER NOT NULL DEFAULT 0 CHECK (sold_quantity >= 0),
			reorder_level     INTEGER NOT NULL DEFAULT 0,
			max_stock_level   INTEGER NOT NULL DEFAULT 0,
			unit_cost         BIGINT NOT NULL DEFAULT 0,
			unit_price        BIGINT NOT NULL DEFAULT 0,
			is_active         BOOLEAN NOT NULL DEFAULT TRUE,
			requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
			notes             TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_restocked_at TIMESTAMPTZ,
			last_sold_at      TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_stock_records_owner ON stock_records (owner_id);
	`)
	return err
}

const recordColumns = `product_id, product_name, owner_id, stock_quantity, reserved_quantity,
	sold_quantity, reorder_level, max_stock_level, unit_cost, unit_price, is_active,
	requires_approval, notes, created_at, updated_at, last_restocked_at, last_sold_at`

func (s *PostgresStore) Create(ctx context.Context, rec *stock.Record) error {
	now := time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stock_records (product_id, product_name, owner_id, stock_quantity,
			reserved_quantity, sold_quantity, reorder_level, max_stock_level, unit_cost,
			unit_price, is_active, requires_approval, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING created_at, updated_at`,
		rec.ProductID, rec.ProductName, rec.OwnerID, rec.StockQuantity,
		rec.ReservedQuantity, rec.SoldQuantity, rec.ReorderLevel, rec.MaxStockLevel,
		rec.UnitCost, rec.UnitPrice, rec.IsActive, rec.RequiresApproval, rec.Notes, now,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return stock.ErrRecordConflict
		}
		return fmt.Errorf("insert stock record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, productID string) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM stock_records WHERE product_id = $1`, productID)
	return scanRecord(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]*stock.Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM stock_records ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*stock.Record, error) {
	return s.query(ctx,
		`SELECT `+recordColumns+` FROM stock_records WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*stock.Record, error) {
	return s.query(ctx,
		`SELECT `+recordColumns+` FROM stock_records WHERE is_active ORDER BY created_at DESC`)
}

func (s *PostgresStore) UpdateDetails(ctx context.Context, productID string, d Details) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			product_name      = COALESCE($2, product_name),
			reorder_level     = COALESCE($3, reorder_level),
			max_stock_level   = COALESCE($4, max_stock_level),
			unit_cost         = COALESCE($5, unit_cost),
			unit_price        = COALESCE($6, unit_price),
			requires_approval = COALESCE($7, requires_approval),
			notes             = COALESCE($8, notes),
			updated_at        = NOW()
		WHERE product_id = $1
		RETURNING `+recordColumns,
		productID, d.ProductName, d.ReorderLevel, d.MaxStockLevel,
		d.UnitCost, d.UnitPrice, d.RequiresApproval, d.Notes)
	return scanRecord(row)
}

func (s *PostgresStore) SetActive(ctx context.Context, productID string, active bool) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET is_active = $2, updated_at = NOW()
		WHERE product_id = $1
		RETURNING `+recordColumns, productID, active)
	return scanRecord(row)
}

func (s *PostgresStore) Delete(ctx context.Context, productID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM stock_records WHERE product_id = $1 AND reserved_quantity = 0`, productID)
	if err != nil {
		return fmt.Errorf("delete stock record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete stock record: %w", err)
	}
	if rows == 0 {
		// Guarded delete failed: pending reservations or no such record.
		if _, err := s.Get(ctx, productID); err != nil {
			return err
		}
		return stock.ErrRecordConflict
	}
	return nil
}

func (s *PostgresStore) Reserve(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			reserved_quantity = reserved_quantity + $2,
			updated_at        = NOW()
		WHERE product_id = $1 AND stock_quantity - reserved_quantity >= $2
		RETURNING `+recordColumns, productID, qty)
	return s.scanConditional(ctx, row, productID, stock.ErrInsufficientStock)
}

func (s *PostgresStore) Release(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			reserved_quantity = reserved_quantity - $2,
			updated_at        = NOW()
		WHERE product_id = $1 AND reserved_quantity >= $2
		RETURNING `+recordColumns, productID, qty)
	return s.scanConditional(ctx, row, productID, stock.ErrInsufficientStock)
}

func (s *PostgresStore) ConfirmSale(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			stock_quantity    = stock_quantity - $2,
			reserved_quantity = reserved_quantity - $2,
			sold_quantity     = sold_quantity + $2,
			last_sold_at      = NOW(),
			updated_at        = NOW()
		WHERE product_id = $1 AND reserved_quantity >= $2
		RETURNING `+recordColumns, productID, qty)
	return s.scanConditional(ctx, row, productID, stock.ErrInsufficientStock)
}

func (s *PostgresStore) DirectSale(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			stock_quantity = stock_quantity - $2,
			sold_quantity  = sold_quantity + $2,
			last_sold_at   = NOW(),
			updated_at     = NOW()
		WHERE product_id = $1 AND stock_quantity - reserved_quantity >= $2
		RETURNING `+recordColumns, productID, qty)
	return s.scanConditional(ctx, row, productID, stock.ErrInsufficientStock)
}

func (s *PostgresStore) Restock(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			stock_quantity    = stock_quantity + $2,
			last_restocked_at = NOW(),
			updated_at        = NOW()
		WHERE product_id = $1
		RETURNING `+recordColumns, productID, qty)
	return scanRecord(row)
}

func (s *PostgresStore) SetQuantity(ctx context.Context, productID string, qty int, note string) (*stock.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			stock_quantity = $2,
			notes          = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
			updated_at     = NOW()
		WHERE product_id = $1 AND reserved_quantity <= $2
		RETURNING `+recordColumns, productID, qty, note)
	return s.scanConditional(ctx, row, productID, stock.ErrRecordConflict)
}

// scanConditional maps a zero-row conditional update to either not-found or
// the precondition failure, depending on whether the record exists.
func (s *PostgresStore) scanConditional(ctx context.Context, row *sql.Row, productID string, precondErr error) (*stock.Record, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, stock.ErrRecordNotFound) {
		if _, getErr := s.Get(ctx, productID); getErr != nil {
			return nil, getErr
		}
		return nil, precondErr
	}
	return rec, err
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*stock.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query stock records: %w", err)
	}
	defer rows.Close()

	var records []*stock.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*stock.Record, error) {
	var rec stock.Record
	var lastRestocked, lastSold sql.NullTime
	err := row.Scan(
		&rec.ProductID, &rec.ProductName, &rec.OwnerID, &rec.StockQuantity,
		&rec.ReservedQuantity, &rec.SoldQuantity, &rec.ReorderLevel, &rec.MaxStockLevel,
		&rec.UnitCost, &rec.UnitPrice, &rec.IsActive, &rec.RequiresApproval,
		&rec.Notes, &rec.CreatedAt, &rec.UpdatedAt, &lastRestocked, &lastSold,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan stock record: %w", err)
	}
	rec.LastRestockedAt = lastRestocked.Time
	rec.LastSoldAt = lastSold.Time
	return &rec, nil
}
