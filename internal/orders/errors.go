package orders

import "errors"

var (
	ErrNotFound         = errors.New("order not found")
	ErrShipmentNotFound = errors.New("shipment not found")

	// ErrNotPayable is returned when a payment is attempted against an order
	// whose status is outside confirmed/processing.
	ErrNotPayable = errors.New("order is not in a payable status")

	// ErrAlreadyPaid guards the at-most-one-successful-payment rule.
	ErrAlreadyPaid = errors.New("order payment already completed")

	// ErrAmountMismatch is returned when the tendered amount does not equal
	// the order total exactly. Partial payments and overpayments are rejected.
	ErrAmountMismatch = errors.New("payment amount does not match order total")

	// ErrPaymentRequired is returned when a shipping label is requested before
	// payment has completed.
	ErrPaymentRequired = errors.New("payment must be completed before shipping")

	// ErrOrderFinal is returned when an operation targets a cancelled or
	// delivered order.
	ErrOrderFinal = errors.New("order is in a final state")

	// ErrStageConflict is returned when a stage completion signal does not
	// match the stage the order is currently parked at, or when a concurrent
	// transition won the race.
	ErrStageConflict = errors.New("order is not at the expected workflow stage")

	// ErrNotManualStage rejects completion signals aimed at auto stages.
	ErrNotManualStage = errors.New("stage does not accept manual completion")

	// ErrTotalsMismatch is returned when the submitted monetary breakdown does
	// not add up.
	ErrTotalsMismatch = errors.New("order totals do not reconcile")
)
