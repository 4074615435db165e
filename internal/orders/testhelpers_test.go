package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/orderpilot/orderpilot/internal/carrier"
	"github.com/orderpilot/orderpilot/internal/inventory"
	"github.com/orderpilot/orderpilot/internal/payments"
	"github.com/orderpilot/orderpilot/internal/shared"
)

type memStore struct {
	orders    map[string]Order
	items     map[string][]OrderItem
	txns      map[string]PaymentTransaction
	shipments map[string]Shipment
	refunds   []RefundObligation
	audits    []shared.AuditLog
	stock     map[string]inventory.Balance
	resv      map[string][]inventory.Reservation
	customers map[string]string
	resvSeq   int64
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[string]Order),
		items:     make(map[string][]OrderItem),
		txns:      make(map[string]PaymentTransaction),
		shipments: make(map[string]Shipment),
		stock:     make(map[string]inventory.Balance),
		resv:      make(map[string][]inventory.Reservation),
		customers: make(map[string]string),
	}
}

type memSnapshot struct {
	orders    map[string]Order
	items     map[string][]OrderItem
	txns      map[string]PaymentTransaction
	shipments map[string]Shipment
	refunds   []RefundObligation
	audits    []shared.AuditLog
	stock     map[string]inventory.Balance
	resv      map[string][]inventory.Reservation
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		orders:    make(map[string]Order, len(s.orders)),
		items:     make(map[string][]OrderItem, len(s.items)),
		txns:      make(map[string]PaymentTransaction, len(s.txns)),
		shipments: make(map[string]Shipment, len(s.shipments)),
		refunds:   append([]RefundObligation(nil), s.refunds...),
		audits:    append([]shared.AuditLog(nil), s.audits...),
		stock:     make(map[string]inventory.Balance, len(s.stock)),
		resv:      make(map[string][]inventory.Reservation, len(s.resv)),
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = append([]OrderItem(nil), v...)
	}
	for k, v := range s.txns {
		snap.txns[k] = v
	}
	for k, v := range s.shipments {
		snap.shipments[k] = v
	}
	for k, v := range s.stock {
		snap.stock[k] = v
	}
	for k, v := range s.resv {
		snap.resv[k] = append([]inventory.Reservation(nil), v...)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.orders = snap.orders
	s.items = snap.items
	s.txns = snap.txns
	s.shipments = snap.shipments
	s.refunds = snap.refunds
	s.audits = snap.audits
	s.stock = snap.stock
	s.resv = snap.resv
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	snap := s.snapshot()
	if err := fn(ctx, &memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = append([]OrderItem(nil), s.items[id]...)
	return &o, nil
}

func (s *memStore) GetShipmentByTracking(ctx context.Context, trackingNumber string) (*ShipmentWithOrder, error) {
	for _, sh := range s.shipments {
		if sh.TrackingNumber == trackingNumber {
			o := s.orders[sh.OrderID]
			return &ShipmentWithOrder{
				Shipment:     sh,
				OrderNumber:  o.OrderNumber,
				CustomerName: s.customers[o.CustomerID],
			}, nil
		}
	}
	return nil, ErrShipmentNotFound
}

func (s *memStore) ListStalledOrders(ctx context.Context, stages []Stage, olderThan time.Time) ([]Order, error) {
	auto := make(map[Stage]bool, len(stages))
	for _, st := range stages {
		auto[st] = true
	}
	var out []Order
	for _, o := range s.orders {
		if auto[o.WorkflowStage] && o.Status != StatusCancelled && o.Status != StatusDelivered && o.UpdatedAt.Before(olderThan) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) ListOpenShipments(ctx context.Context) ([]Shipment, error) {
	var out []Shipment
	for _, sh := range s.shipments {
		if sh.Status != carrier.StatusDelivered {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *memStore) AdvanceStage(ctx context.Context, id string, from, to Stage, status *Status) (bool, error) {
	o, ok := s.orders[id]
	if !ok || o.WorkflowStage != from {
		return false, nil
	}
	o.WorkflowStage = to
	if status != nil {
		o.Status = *status
	}
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return true, nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) Inventory() inventory.TxRepository {
	return &memInv{store: t.store}
}

func (t *memTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	t.store.audits = append(t.store.audits, log)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *Order) error {
	stored := *o
	stored.Items = nil
	t.store.orders[o.ID] = stored
	return nil
}

func (t *memTx) InsertItem(ctx context.Context, it *OrderItem) error {
	it.ID = int64(len(t.store.items[it.OrderID]) + 1)
	t.store.items[it.OrderID] = append(t.store.items[it.OrderID], *it)
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id string) (*Order, error) {
	return t.store.GetOrder(ctx, id)
}

func (t *memTx) CompletePayment(ctx context.Context, orderID, method string) (bool, error) {
	o, ok := t.store.orders[orderID]
	if !ok || o.PaymentStatus != PaymentPending {
		return false, nil
	}
	o.PaymentStatus = PaymentCompleted
	o.PaymentMethod = method
	o.WorkflowStage = StagePaymentCompleted
	o.UpdatedAt = time.Now()
	t.store.orders[orderID] = o
	return true, nil
}

func (t *memTx) InsertPaymentTransaction(ctx context.Context, txn *PaymentTransaction) error {
	t.store.txns[txn.ID] = *txn
	return nil
}

func (t *memTx) InsertShipment(ctx context.Context, sh *Shipment) error {
	t.store.shipments[sh.ID] = *sh
	return nil
}

func (t *memTx) MarkShipped(ctx context.Context, orderID string) error {
	o, ok := t.store.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status == StatusCancelled || o.Status == StatusDelivered {
		return ErrOrderFinal
	}
	now := time.Now()
	o.Status = StatusShipped
	o.WorkflowStage = StageShipping
	o.ShippedAt = &now
	o.UpdatedAt = now
	t.store.orders[orderID] = o
	return nil
}

func (t *memTx) UpdateShipmentTracking(ctx context.Context, sh *Shipment) error {
	stored, ok := t.store.shipments[sh.ID]
	if !ok {
		return ErrShipmentNotFound
	}
	stored.Status = sh.Status
	stored.TrackingEvents = append([]carrier.TrackingEvent(nil), sh.TrackingEvents...)
	stored.DeliveredAt = sh.DeliveredAt
	stored.UpdatedAt = time.Now()
	t.store.shipments[sh.ID] = stored
	return nil
}

func (t *memTx) MarkDelivered(ctx context.Context, orderID string) error {
	o, ok := t.store.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status == StatusCancelled {
		return nil
	}
	now := time.Now()
	o.Status = StatusDelivered
	o.WorkflowStage = StageDelivered
	o.DeliveredAt = &now
	o.UpdatedAt = now
	t.store.orders[orderID] = o
	return nil
}

func (t *memTx) CancelOrder(ctx context.Context, orderID, reason string) error {
	o, ok := t.store.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status == StatusCancelled || o.Status == StatusDelivered {
		return ErrOrderFinal
	}
	now := time.Now()
	o.Status = StatusCancelled
	o.WorkflowStage = StageCancelled
	o.CancellationReason = &reason
	o.CancelledAt = &now
	o.UpdatedAt = now
	t.store.orders[orderID] = o
	return nil
}

func (t *memTx) InsertRefundObligation(ctx context.Context, ro *RefundObligation) error {
	t.store.refunds = append(t.store.refunds, *ro)
	return nil
}

type memInv struct {
	store *memStore
}

func (m *memInv) GetBalanceForUpdate(ctx context.Context, productID string) (inventory.Balance, error) {
	b, ok := m.store.stock[productID]
	if !ok {
		return inventory.Balance{}, inventory.ErrBalanceNotFound
	}
	return b, nil
}

func (m *memInv) SetReserved(ctx context.Context, productID string, reserved float64) error {
	b, ok := m.store.stock[productID]
	if !ok {
		return inventory.ErrBalanceNotFound
	}
	b.Reserved = reserved
	m.store.stock[productID] = b
	return nil
}

func (m *memInv) InsertReservation(ctx context.Context, res inventory.Reservation) (int64, error) {
	m.store.resvSeq++
	res.ID = m.store.resvSeq
	m.store.resv[res.OrderID] = append(m.store.resv[res.OrderID], res)
	return res.ID, nil
}

func (m *memInv) ReservationsForOrder(ctx context.Context, orderID string) ([]inventory.Reservation, error) {
	return append([]inventory.Reservation(nil), m.store.resv[orderID]...), nil
}

func (m *memInv) DeleteReservationsForOrder(ctx context.Context, orderID string) error {
	delete(m.store.resv, orderID)
	return nil
}

type seqStub struct {
	counts map[string]int
}

func (s *seqStub) Next(ctx context.Context, prefix string, date time.Time) (string, error) {
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[prefix]++
	return fmt.Sprintf("%s%s%04d", prefix, date.Format("060102"), s.counts[prefix]), nil
}

type fakeGateway struct {
	decline *payments.GatewayError
	fail    error
	fees    float64
	charges []payments.ChargeRequest
}

func (g *fakeGateway) Charge(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResult, error) {
	g.charges = append(g.charges, req)
	if g.fail != nil {
		return payments.ChargeResult{}, g.fail
	}
	if g.decline != nil {
		return payments.ChargeResult{}, g.decline
	}
	return payments.ChargeResult{
		GatewayTransactionID: fmt.Sprintf("gw-%d", len(g.charges)),
		Fees:                 g.fees,
		Response:             map[string]any{"approved": true},
	}, nil
}

type fakeCarrier struct {
	labels int
	status string
	events []carrier.TrackingEvent
	fail   error
}

func (c *fakeCarrier) CreateLabel(ctx context.Context, req carrier.LabelRequest) (carrier.Label, error) {
	if c.fail != nil {
		return carrier.Label{}, c.fail
	}
	c.labels++
	return carrier.Label{
		TrackingNumber:    fmt.Sprintf("TRACK%04d", c.labels),
		LabelURL:          fmt.Sprintf("https://labels.example.com/%d.pdf", c.labels),
		EstimatedDelivery: time.Now().Add(72 * time.Hour),
	}, nil
}

func (c *fakeCarrier) Track(ctx context.Context, trackingNumber string) (carrier.TrackingInfo, error) {
	if c.fail != nil {
		return carrier.TrackingInfo{}, c.fail
	}
	return carrier.TrackingInfo{Status: c.status, Events: c.events}, nil
}

type memIdem struct {
	keys map[string]bool
}

func (m *memIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type memAuditor struct {
	store *memStore
}

func (a *memAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	a.store.audits = append(a.store.audits, log)
	return nil
}
