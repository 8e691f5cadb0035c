package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists products and stock reservations in
// PostgreSQL. Reservation check-and-insert runs inside a single
// transaction with the product row locked, which is what guarantees
// two concurrent checkouts cannot oversell the same SKU.
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

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	sku         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	unit_price  INTEGER NOT NULL,
	stock       INTEGER NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stock_reservations (
	id                  TEXT PRIMARY KEY,
	product_id          TEXT NOT NULL REFERENCES products(id),
	quantity            INTEGER NOT NULL CHECK (quantity > 0),
	provider_session_id TEXT NOT NULL,
	status              TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reservations_product_status
	ON stock_reservations (product_id, status);
CREATE INDEX IF NOT EXISTS idx_reservations_session
	ON stock_reservations (provider_session_id);
`

// InitSchema creates the tables if they do not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Products

func (s *PostgresStore) CreateProduct(ctx context.Context, p *Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, sku, name, description, unit_price, stock, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.SKU, p.Name, p.Description, p.Price, p.Stock, p.Active, p.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateSKU
		}
		return err
	}
	return nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *Product) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET sku = $2, name = $3, description = $4, unit_price = $5, stock = $6, active = $7
		 WHERE id = $1`,
		p.ID, p.SKU, p.Name, p.Description, p.Price, p.Stock, p.Active,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

const productColumns = `id, sku, name, description, unit_price, stock, active, created_at`

func scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ProductByID(ctx context.Context, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (s *PostgresStore) ProductBySKU(ctx context.Context, sku string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	return scanProduct(row)
}

func (s *PostgresStore) ActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE active ORDER BY created_at, sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Reservations

type postgresTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *postgresTx) ProductForUpdate(productID string) (*Product, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)
	return scanProduct(row)
}

func (t *postgresTx) ActiveReservedQuantity(productID string) (int, error) {
	var reserved int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
		 WHERE product_id = $1 AND status IN ($2, $3)`,
		productID, StatusPending, StatusConfirmed,
	).Scan(&reserved)
	return reserved, err
}

func (t *postgresTx) InsertReservation(r *Reservation) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO stock_reservations (id, product_id, quantity, provider_session_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.ProductID, r.Quantity, r.SessionID, r.Status, r.CreatedAt,
	)
	return err
}

func (t *postgresTx) ExpirePendingBefore(cutoff time.Time) (int, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE stock_reservations SET status = $1
		 WHERE status = $2 AND created_at <= $3`,
		StatusExpired, StatusPending, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *postgresTx) ExpirePendingBySession(sessionID string) (int, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE stock_reservations SET status = $1
		 WHERE status = $2 AND provider_session_id = $3`,
		StatusExpired, StatusPending, sessionID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// InReservationTx runs fn inside one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *PostgresStore) InReservationTx(ctx context.Context, fn func(tx ReservationTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) TransitionBySession(ctx context.Context, sessionID string, from, to ReservationStatus) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stock_reservations SET status = $1
		 WHERE provider_session_id = $2 AND status = $3`,
		to, sessionID, from,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) RebindSession(ctx context.Context, oldID, newID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stock_reservations SET provider_session_id = $1
		 WHERE provider_session_id = $2`,
		newID, oldID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stock_reservations SET status = $1
		 WHERE status = $2 AND created_at <= $3`,
		StatusExpired, StatusPending, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const reservationColumns = `id, product_id, quantity, provider_session_id, status, created_at`

func (s *PostgresStore) ReservationsBySession(ctx context.Context, sessionID string) ([]Reservation, error) {
	return s.queryReservations(ctx,
		`SELECT `+reservationColumns+` FROM stock_reservations
		 WHERE provider_session_id = $1 ORDER BY created_at`, sessionID)
}

func (s *PostgresStore) RecentReservations(ctx context.Context, limit int) ([]Reservation, error) {
	return s.queryReservations(ctx,
		`SELECT `+reservationColumns+` FROM stock_reservations
		 ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) queryReservations(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := make([]Reservation, 0)
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Quantity, &r.SessionID, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func (s *PostgresStore) ActiveReservedQuantities(ctx context.Context, productIDs []string) (map[string]int, error) {
	reserved := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return reserved, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, COALESCE(SUM(quantity), 0) FROM stock_reservations
		 WHERE product_id = ANY($1) AND status IN ($2, $3)
		 GROUP BY product_id`,
		pq.Array(productIDs), StatusPending, StatusConfirmed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		reserved[id] = qty
	}
	return reserved, rows.Err()
}
