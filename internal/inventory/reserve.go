package inventory

import (
	"context"
	"errors"
	"fmt"
)

// ItemReservation is one product/quantity pair to earmark.
type ItemReservation struct {
	ProductID string
	Quantity  float64
}

// ReserveForOrder earmarks stock for every item, all-or-nothing. Balances are
// locked row by row; the first shortfall aborts the whole batch, and because
// the repository runs inside the caller's transaction the earlier earmarks
// roll back with it.
func ReserveForOrder(ctx context.Context, repo TxRepository, orderID string, items []ItemReservation) error {
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("product %s: %w", item.ProductID, ErrInvalidQuantity)
		}
		balance, err := repo.GetBalanceForUpdate(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, ErrBalanceNotFound) {
				return fmt.Errorf("product %s: %w", item.ProductID, ErrInsufficientStock)
			}
			return fmt.Errorf("lock balance for %s: %w", item.ProductID, err)
		}
		if balance.Available() < item.Quantity {
			return fmt.Errorf("product %s: have %.2f, need %.2f: %w",
				item.ProductID, balance.Available(), item.Quantity, ErrInsufficientStock)
		}
		if err := repo.SetReserved(ctx, item.ProductID, balance.Reserved+item.Quantity); err != nil {
			return fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}
		res := Reservation{OrderID: orderID, ProductID: item.ProductID, Quantity: item.Quantity}
		if _, err := repo.InsertReservation(ctx, res); err != nil {
			return fmt.Errorf("record reservation for %s: %w", item.ProductID, err)
		}
	}
	return nil
}

// ReleaseForOrder returns every quantity earmarked for the order to the
// available pool and removes the reservation rows. Used by cancellation.
func ReleaseForOrder(ctx context.Context, repo TxRepository, orderID string) error {
	reservations, err := repo.ReservationsForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}
	for _, res := range reservations {
		balance, err := repo.GetBalanceForUpdate(ctx, res.ProductID)
		if err != nil {
			return fmt.Errorf("lock balance for %s: %w", res.ProductID, err)
		}
		reserved := balance.Reserved - res.Quantity
		if reserved < 0 {
			reserved = 0
		}
		if err := repo.SetReserved(ctx, res.ProductID, reserved); err != nil {
			return fmt.Errorf("release %s: %w", res.ProductID, err)
		}
	}
	if err := repo.DeleteReservationsForOrder(ctx, orderID); err != nil {
		return fmt.Errorf("delete reservations: %w", err)
	}
	return nil
}
