// Package carrier defines the shipping carrier contracts: label issuance and
// shipment tracking.
package carrier

import (
	"context"
	"fmt"
	"time"
)

// Shipment status values as carriers report them.
const (
	StatusLabelCreated   = "label_created"
	StatusPickedUp       = "picked_up"
	StatusInTransit      = "in_transit"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
)

// LabelRequest describes the parcel and service to issue a label for.
type LabelRequest struct {
	Carrier         string         `json:"carrier"`
	ServiceType     string         `json:"service_type"`
	Reference       string         `json:"reference"`
	Weight          float64        `json:"weight"`
	Dimensions      map[string]any `json:"dimensions,omitempty"`
	ShippingAddress map[string]any `json:"shipping_address"`
}

// Label is the carrier's response to a label request.
type Label struct {
	TrackingNumber    string    `json:"tracking_number"`
	LabelURL          string    `json:"label_url"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}

// TrackingEvent is one entry in a shipment's history.
type TrackingEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
}

// TrackingInfo is the carrier's current view of a shipment.
type TrackingInfo struct {
	Status string          `json:"status"`
	Events []TrackingEvent `json:"events"`
}

// Error reports a failure from the carrier API.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("carrier: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("carrier: %s", e.Message)
}

// LabelAPI issues shipping labels.
type LabelAPI interface {
	CreateLabel(ctx context.Context, req LabelRequest) (Label, error)
}

// TrackingAPI reports shipment tracking state.
type TrackingAPI interface {
	Track(ctx context.Context, trackingNumber string) (TrackingInfo, error)
}
