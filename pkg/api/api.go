// Package api defines the core interfaces and data structures for foodspend.
package api

import (
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. Status is free text; these are the values the bundled rules emit.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

// Order holds the fields extracted from one food-delivery receipt.
type Order struct {
	OrderID        string          `json:"order_id" validate:"required,min=4,max=64"`
	Date           time.Time       `json:"order_date"`
	RestaurantName string          `json:"restaurant_name" validate:"required,min=3,max=119"`
	Amount         decimal.Decimal `json:"amount"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	Discount       decimal.Decimal `json:"discount"`
	// TotalAmount is extracted on its own and is not derived from the other amounts.
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status" validate:"required"`

	PaymentMethod    string `json:"payment_method,omitempty"`
	DeliveryLocation string `json:"delivery_location,omitempty"`
	OrderItems       string `json:"order_items,omitempty"`

	// Source is the name of the extractor that produced the order.
	Source string `json:"source"`

	RawEmailBody string    `json:"-"`
	EmailDate    time.Time `json:"email_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one email taken out of an archive.
type Message struct {
	Subject string
	From    string
	Body    string
	// Date is the transport-level send time. Zero when the header is missing or unparseable.
	Date time.Time
}

// Source yields messages one at a time. Iterating again starts from the beginning.
// A yielded error with a nil message describes a message that could not be read;
// implementations document which errors end the sequence.
type Source interface {
	Messages() iter.Seq2[*Message, error]
}

// Extractor turns a relevant message into an Order.
type Extractor interface {
	// Name returns the service name (e.g., "zomato").
	Name() string
	// Classify reports whether the message belongs to this service.
	Classify(msg *Message) bool
	// Extract pulls an Order out of a message that Classify accepted.
	Extract(msg *Message) (*Order, error)
}
