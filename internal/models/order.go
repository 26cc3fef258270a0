package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeRemote = "remote"
	OrderTypeAtShop = "at_shop"
)

// Order statuses. An order starts pending; rejected and completed are terminal.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

// orderTransitions is the successor table of the order state machine. Anything
// not listed here is an invalid transition and is reported as a conflict.
var orderTransitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// ValidStatus reports whether s names a known order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID           int             `json:"id" db:"id"`
	CustomerID   int             `json:"customer_id" db:"customer_id"`
	ShopkeeperID *int            `json:"shopkeeper_id,omitempty" db:"shopkeeper_id"` // nil when no shopkeeper was registered at creation
	OrderType    string          `json:"order_type" db:"order_type"`                 // remote or at_shop
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount" db:"credit_amount"`
	Status       string          `json:"status" db:"status"`
	Items        []string        `json:"items" db:"items"` // free-text line descriptions, stored as JSON
	Notes        string          `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`

	// Joined customer details for the shopkeeper working view.
	CustomerUsername string `json:"customer_username,omitempty" db:"customer_username"`
	CustomerName     string `json:"customer_name,omitempty" db:"customer_name"`
	CustomerPhone    string `json:"customer_phone,omitempty" db:"customer_phone"`
}
