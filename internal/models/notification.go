package models

import "time"

// Notification types, tagged by the triggering event.
const (
	NotifyNewOrder    = "new_order"
	NotifyOrderUpdate = "order_update"
)

// Notification is the durable per-recipient record of an event. The live push
// mirrors this row; if the push is missed the row is what the recipient's next
// poll recovers.
type Notification struct {
	ID          int       `json:"id" db:"id"`
	RecipientID int       `json:"user_id" db:"user_id"`
	Type        string    `json:"type" db:"type"`
	Title       string    `json:"title" db:"title"`
	Message     string    `json:"message" db:"message"`
	OrderID     *int      `json:"order_id,omitempty" db:"order_id"`
	Read        bool      `json:"read" db:"read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
