package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	mW "github.com/peedutronix/credit-keeper/internal/middleware"
	"github.com/peedutronix/credit-keeper/internal/models"
)

var (
	ErrAccountNotFound = errors.New("credit account not found")
	ErrZeroAmount      = errors.New("amount must be non-zero")
	ErrBadRecordKind   = errors.New("unknown record kind")
)

// LedgerService owns the credit ledger: immutable credit_records plus the
// running current_credit on the customer row. The two are only ever written
// together, inside one database transaction.
type LedgerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// PostRecordTx appends a ledger record and applies its signed effect to the
// customer's balance within the caller's transaction. The customer row is
// locked first, so concurrent postings against one account serialize while
// other accounts proceed untouched.
func (s *LedgerService) PostRecordTx(tx *sql.Tx, customerID int, orderID *int, amount decimal.Decimal, kind, description string) (*models.CreditRecord, error) {
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if kind != models.RecordCredit && kind != models.RecordPayment {
		return nil, ErrBadRecordKind
	}

	var current decimal.Decimal
	err := tx.QueryRow(`
		SELECT current_credit
		FROM customers
		WHERE user_id = $1
		FOR UPDATE`, customerID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account %d: %w", customerID, err)
	}

	record := &models.CreditRecord{
		CustomerID:  customerID,
		OrderID:     orderID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
	}

	err = tx.QueryRow(`
		INSERT INTO credit_records (customer_id, order_id, amount, type, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		customerID, orderID, amount, kind, description).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append credit record: %w", err)
	}

	newBalance := current.Add(amount)
	_, err = tx.Exec(`
		UPDATE customers SET current_credit = $1 WHERE user_id = $2`,
		newBalance, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance for account %d: %w", customerID, err)
	}

	return record, nil
}

// PostRecord posts a single record in its own transaction.
func (s *LedgerService) PostRecord(customerID int, orderID *int, amount decimal.Decimal, kind, description string) (*models.CreditRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	record, err := s.PostRecordTx(tx, customerID, orderID, amount, kind, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

// Summary returns a customer's credit standing.
func (s *LedgerService) Summary(customerID int) (*models.CreditSummary, error) {
	var summary models.CreditSummary
	err := s.db.QueryRow(`
		SELECT credit_limit, current_credit FROM customers WHERE user_id = $1`,
		customerID).Scan(&summary.CreditLimit, &summary.CurrentCredit)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	summary.AvailableCredit = summary.CreditLimit.Sub(summary.CurrentCredit)
	return &summary, nil
}

// History returns a customer's ledger records, newest first.
func (s *LedgerService) History(customerID int) ([]models.CreditRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, customer_id, order_id, amount, type, description, created_at
		FROM credit_records
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.CreditRecord{}
	for rows.Next() {
		var rec models.CreditRecord
		var description sql.NullString
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &rec.OrderID, &rec.Amount, &rec.Kind, &description, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Description = description.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetCustomerRecords handles GET /credits/customer
// @Summary Get own credit records
// @Description List the authenticated customer's ledger records, newest first
// @Tags credits
// @Produce json
// @Success 200 {object} object{records=[]models.CreditRecord}
// @Failure 500 {object} ErrorResponse
// @Router /credits/customer [get]
func (s *LedgerService) GetCustomerRecords(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	records, err := s.History(identity.UserID)
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch records for user %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to fetch credit records", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"records": records})
}

// GetCreditSummary handles GET /credits/customer/summary
// @Summary Get own credit summary
// @Description Credit limit, outstanding balance and derived available credit
// @Tags credits
// @Produce json
// @Success 200 {object} models.CreditSummary
// @Failure 404 {object} ErrorResponse
// @Router /credits/customer/summary [get]
func (s *LedgerService) GetCreditSummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	summary, err := s.Summary(identity.UserID)
	if err != nil {
		if err == ErrAccountNotFound {
			SendErrorResponse(w, "Credit account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[LEDGER] Failed to fetch summary for user %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to fetch credit summary", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, summary)
}

// ListCustomerCredits handles GET /credits/all
// @Summary List all customers with balances
// @Description Staff view of every customer's credit standing, highest outstanding first
// @Tags credits
// @Produce json
// @Success 200 {object} object{customers=[]models.CustomerCredit}
// @Failure 500 {object} ErrorResponse
// @Router /credits/all [get]
func (s *LedgerService) ListCustomerCredits(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT u.id, u.username, u.full_name, u.phone, c.credit_limit, c.current_credit
		FROM users u
		JOIN customers c ON u.id = c.user_id
		ORDER BY c.current_credit DESC`)
	if err != nil {
		log.Printf("[LEDGER] Failed to list customer credits: %v", err)
		SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	customers := []models.CustomerCredit{}
	for rows.Next() {
		var cc models.CustomerCredit
		var fullName, phone sql.NullString
		if err := rows.Scan(&cc.UserID, &cc.Username, &fullName, &phone, &cc.CreditLimit, &cc.CurrentCredit); err != nil {
			log.Printf("[LEDGER] Failed to scan customer credit row: %v", err)
			SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
			return
		}
		cc.FullName = fullName.String
		cc.Phone = phone.String
		customers = append(customers, cc)
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"customers": customers})
}

// PaymentRequest is the manual payment payload recorded by shop staff.
type PaymentRequest struct {
	CustomerID  int             `json:"customer_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// RecordPayment handles POST /credits/payment
// @Summary Record a payment
// @Description Post a payment ledger record for a customer, reducing the outstanding balance
// @Tags credits
// @Accept json
// @Produce json
// @Param request body PaymentRequest true "Payment data"
// @Success 201 {object} object{message=string,record=models.CreditRecord}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /credits/payment [post]
func (s *LedgerService) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !req.Amount.IsPositive() {
		SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
		return
	}

	description := req.Description
	if description == "" {
		description = "Payment received"
	}

	// Payments reduce the balance, so the record carries a negated amount.
	record, err := s.PostRecord(req.CustomerID, nil, req.Amount.Neg(), models.RecordPayment, description)
	if err != nil {
		if err == ErrAccountNotFound {
			SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[LEDGER] Failed to record payment for customer %d: %v", req.CustomerID, err)
		SendErrorResponse(w, "Failed to record payment", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[LEDGER] Payment of %s recorded for customer %d (record %d)",
		req.Amount.String(), req.CustomerID, record.ID)
	SendJSONResponse(w, http.StatusCreated, map[string]any{
		"message": "Payment recorded successfully",
		"record":  record,
	})
}
