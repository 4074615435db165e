// Package inventory earmarks stock for orders. Reservations are written in
// the same database transaction as the order that claims them, so an order
// and its stock claims commit or roll back together.
package inventory

import (
	"errors"
	"time"
)

// Balance is the stock position of a single product.
type Balance struct {
	ProductID string    `json:"product_id" db:"product_id"`
	OnHand    float64   `json:"on_hand" db:"on_hand"`
	Reserved  float64   `json:"reserved" db:"reserved"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Available returns the quantity that can still be reserved.
func (b Balance) Available() float64 {
	return b.OnHand - b.Reserved
}

// Reservation earmarks stock for one order line.
type Reservation struct {
	ID        int64     `json:"id" db:"id"`
	OrderID   string    `json:"order_id" db:"order_id"`
	ProductID string    `json:"product_id" db:"product_id"`
	Quantity  float64   `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Domain errors.
var (
	ErrBalanceNotFound   = errors.New("inventory balance not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
)
