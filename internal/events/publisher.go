// Package events streams order lifecycle events to downstream consumers.
// Publishing is best-effort: a failed publish is logged, never surfaced.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicOrders = "credit_keeper.orders"

	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the payload published on every lifecycle transition.
type OrderEvent struct {
	EventID      string          `json:"event_id"`
	Event        string          `json:"event"`
	OrderID      int             `json:"order_id"`
	CustomerID   int             `json:"customer_id"`
	Status       string          `json:"status"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

func NewOrderEvent(event string, orderID, customerID int, status string, creditAmount decimal.Decimal) OrderEvent {
	return OrderEvent{
		EventID:      uuid.NewString(),
		Event:        event,
		OrderID:      orderID,
		CustomerID:   customerID,
		Status:       status,
		CreditAmount: creditAmount,
		OccurredAt:   time.Now().UTC(),
	}
}

// Publisher is implemented by the kafka publisher and the no-op fallback.
type Publisher interface {
	Publish(topic string, event any) error
}

// NoopPublisher discards events. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(string, any) error { return nil }
