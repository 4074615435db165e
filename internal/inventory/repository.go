package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepository exposes the reservation operations that must run inside the
// caller's transaction.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, productID string) (Balance, error)
	SetReserved(ctx context.Context, productID string, reserved float64) error
	InsertReservation(ctx context.Context, res Reservation) (int64, error)
	ReservationsForOrder(ctx context.Context, orderID string) ([]Reservation, error)
	DeleteReservationsForOrder(ctx context.Context, orderID string) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type txRepo struct {
	tx dbtx
}

// NewTxRepository wraps a pgx transaction (or pool) with reservation queries.
func NewTxRepository(tx dbtx) TxRepository {
	return &txRepo{tx: tx}
}

// Repository reads stock positions outside a transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetBalance returns the stock position of a product.
func (r *Repository) GetBalance(ctx context.Context, productID string) (Balance, error) {
	var b Balance
	err := r.pool.QueryRow(ctx,
		`SELECT product_id, on_hand, reserved, updated_at FROM stock_balances WHERE product_id = $1`,
		productID,
	).Scan(&b.ProductID, &b.OnHand, &b.Reserved, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (t *txRepo) GetBalanceForUpdate(ctx context.Context, productID string) (Balance, error) {
	var b Balance
	err := t.tx.QueryRow(ctx,
		`SELECT product_id, on_hand, reserved, updated_at FROM stock_balances WHERE product_id = $1 FOR UPDATE`,
		productID,
	).Scan(&b.ProductID, &b.OnHand, &b.Reserved, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (t *txRepo) SetReserved(ctx context.Context, productID string, reserved float64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE stock_balances SET reserved = $1, updated_at = NOW() WHERE product_id = $2`,
		reserved, productID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

func (t *txRepo) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO inventory_reservations (order_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id`,
		res.OrderID, res.ProductID, res.Quantity,
	).Scan(&id)
	return id, err
}

func (t *txRepo) ReservationsForOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, order_id, product_id, quantity, created_at FROM inventory_reservations WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.Quantity, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (t *txRepo) DeleteReservationsForOrder(ctx context.Context, orderID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM inventory_reservations WHERE order_id = $1`, orderID)
	return err
}
