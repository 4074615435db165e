package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memTxRepo struct {
	balances map[string]Balance
	resv     map[string][]Reservation
	nextID   int64
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{
		balances: make(map[string]Balance),
		resv:     make(map[string][]Reservation),
	}
}

func (m *memTxRepo) GetBalanceForUpdate(ctx context.Context, productID string) (Balance, error) {
	b, ok := m.balances[productID]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return b, nil
}

func (m *memTxRepo) SetReserved(ctx context.Context, productID string, reserved float64) error {
	b, ok := m.balances[productID]
	if !ok {
		return ErrBalanceNotFound
	}
	b.Reserved = reserved
	m.balances[productID] = b
	return nil
}

func (m *memTxRepo) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	m.nextID++
	res.ID = m.nextID
	m.resv[res.OrderID] = append(m.resv[res.OrderID], res)
	return res.ID, nil
}

func (m *memTxRepo) ReservationsForOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	return append([]Reservation(nil), m.resv[orderID]...), nil
}

func (m *memTxRepo) DeleteReservationsForOrder(ctx context.Context, orderID string) error {
	delete(m.resv, orderID)
	return nil
}

func TestReserveForOrder(t *testing.T) {
	repo := newMemTxRepo()
	repo.balances["A"] = Balance{ProductID: "A", OnHand: 10}
	repo.balances["B"] = Balance{ProductID: "B", OnHand: 5, Reserved: 2}

	err := ReserveForOrder(context.Background(), repo, "order-1", []ItemReservation{
		{ProductID: "A", Quantity: 4},
		{ProductID: "B", Quantity: 3},
	})
	require.NoError(t, err)

	require.Equal(t, 4.0, repo.balances["A"].Reserved)
	require.Equal(t, 5.0, repo.balances["B"].Reserved)
	require.Len(t, repo.resv["order-1"], 2)
}

func TestReserveForOrderInsufficient(t *testing.T) {
	repo := newMemTxRepo()
	repo.balances["A"] = Balance{ProductID: "A", OnHand: 10, Reserved: 8}

	err := ReserveForOrder(context.Background(), repo, "order-1", []ItemReservation{
		{ProductID: "A", Quantity: 3},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReserveForOrderUnknownProduct(t *testing.T) {
	repo := newMemTxRepo()

	err := ReserveForOrder(context.Background(), repo, "order-1", []ItemReservation{
		{ProductID: "GHOST", Quantity: 1},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReserveForOrderRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemTxRepo()
	repo.balances["A"] = Balance{ProductID: "A", OnHand: 10}

	err := ReserveForOrder(context.Background(), repo, "order-1", []ItemReservation{
		{ProductID: "A", Quantity: 0},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReleaseForOrder(t *testing.T) {
	repo := newMemTxRepo()
	repo.balances["A"] = Balance{ProductID: "A", OnHand: 10}

	require.NoError(t, ReserveForOrder(context.Background(), repo, "order-1", []ItemReservation{
		{ProductID: "A", Quantity: 4},
	}))
	require.NoError(t, ReleaseForOrder(context.Background(), repo, "order-1"))

	require.Equal(t, 0.0, repo.balances["A"].Reserved)
	require.Empty(t, repo.resv["order-1"])
}

func TestReleaseForOrderClampsAtZero(t *testing.T) {
	repo := newMemTxRepo()
	repo.balances["A"] = Balance{ProductID: "A", OnHand: 10, Reserved: 1}
	repo.resv["order-1"] = []Reservation{{OrderID: "order-1", ProductID: "A", Quantity: 5}}

	require.NoError(t, ReleaseForOrder(context.Background(), repo, "order-1"))
	require.Equal(t, 0.0, repo.balances["A"].Reserved)
}

func TestBalanceAvailable(t *testing.T) {
	b := Balance{OnHand: 10, Reserved: 3}
	require.Equal(t, 7.0, b.Available())
}
