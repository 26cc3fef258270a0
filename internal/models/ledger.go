package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credit record kinds. A credit raises the customer's outstanding balance, a
// payment lowers it. Payment rows are stored with a negative amount so that
// current_credit always equals the signed sum of a customer's records.
const (
	RecordCredit  = "credit"
	RecordPayment = "payment"
)

// CreditRecord is one immutable ledger movement. Records are never updated or
// deleted; corrections are posted as new records.
type CreditRecord struct {
	ID          int             `json:"id" db:"id"`
	CustomerID  int             `json:"customer_id" db:"customer_id"`
	OrderID     *int            `json:"order_id,omitempty" db:"order_id"` // set for order credits and their reversals
	Amount      decimal.Decimal `json:"amount" db:"amount"`               // signed balance effect
	Kind        string          `json:"type" db:"type"`                   // credit or payment
	Description string          `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// CreditSummary is a customer's credit standing. AvailableCredit is derived
// and may go negative: the limit is informational, not enforced at posting.
type CreditSummary struct {
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	CurrentCredit   decimal.Decimal `json:"current_credit"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
}

// CustomerCredit is the staff view of one customer's balance.
type CustomerCredit struct {
	UserID        int             `json:"id"`
	Username      string          `json:"username"`
	FullName      string          `json:"full_name,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	CreditLimit   decimal.Decimal `json:"credit_limit"`
	CurrentCredit decimal.Decimal `json:"current_credit"`
}
