package services

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/peedutronix/credit-keeper/internal/models"
)

// CustomerService exposes the staff views of customer accounts.
type CustomerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewCustomerService(db *sql.DB) *CustomerService {
	return &CustomerService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CustomerDetail is a user joined with their credit account.
type CustomerDetail struct {
	models.User
	CreditLimit   decimal.Decimal `json:"credit_limit"`
	CurrentCredit decimal.Decimal `json:"current_credit"`
	Address       string          `json:"address,omitempty"`
}

// ListCustomers handles GET /customers
// @Summary List customers
// @Description All customers with their credit accounts, newest first
// @Tags customers
// @Produce json
// @Success 200 {object} object{customers=[]CustomerDetail}
// @Failure 500 {object} ErrorResponse
// @Router /customers [get]
func (s *CustomerService) ListCustomers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT u.id, u.username, u.email, u.full_name, u.phone, u.created_at,
		       c.credit_limit, c.current_credit, c.address
		FROM users u
		JOIN customers c ON u.id = c.user_id
		ORDER BY u.created_at DESC`)
	if err != nil {
		log.Printf("[CUSTOMER] Failed to list customers: %v", err)
		SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	customers := []CustomerDetail{}
	for rows.Next() {
		var c CustomerDetail
		var fullName, phone, address sql.NullString
		if err := rows.Scan(&c.ID, &c.Username, &c.Email, &fullName, &phone, &c.CreatedAt,
			&c.CreditLimit, &c.CurrentCredit, &address); err != nil {
			log.Printf("[CUSTOMER] Failed to scan customer row: %v", err)
			SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
			return
		}
		c.Role = models.RoleCustomer
		c.FullName = fullName.String
		c.Phone = phone.String
		c.Address = address.String
		customers = append(customers, c)
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"customers": customers})
}

// GetCustomer handles GET /customers/{id}
// @Summary Get one customer
// @Tags customers
// @Produce json
// @Param id path int true "Customer user ID"
// @Success 200 {object} object{customer=CustomerDetail}
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id} [get]
func (s *CustomerService) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid customer id", http.StatusBadRequest, nil)
		return
	}

	var c CustomerDetail
	var fullName, phone, address sql.NullString
	err = s.db.QueryRow(`
		SELECT u.id, u.username, u.email, u.full_name, u.phone, u.created_at,
		       c.credit_limit, c.current_credit, c.address
		FROM users u
		JOIN customers c ON u.id = c.user_id
		WHERE u.id = $1`, customerID).
		Scan(&c.ID, &c.Username, &c.Email, &fullName, &phone, &c.CreatedAt,
			&c.CreditLimit, &c.CurrentCredit, &address)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[CUSTOMER] Failed to fetch customer %d: %v", customerID, err)
		SendErrorResponse(w, "Failed to fetch customer", http.StatusInternalServerError, nil)
		return
	}
	c.Role = models.RoleCustomer
	c.FullName = fullName.String
	c.Phone = phone.String
	c.Address = address.String

	SendJSONResponse(w, http.StatusOK, map[string]any{"customer": c})
}

// CreditLimitRequest carries the new limit set by shop staff.
type CreditLimitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

// UpdateCreditLimit handles PATCH /customers/{id}/credit-limit
// @Summary Update a customer's credit limit
// @Description Set the informational credit limit; the running balance is untouched
// @Tags customers
// @Accept json
// @Produce json
// @Param id path int true "Customer user ID"
// @Param request body CreditLimitRequest true "New credit limit"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id}/credit-limit [patch]
func (s *CustomerService) UpdateCreditLimit(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid customer id", http.StatusBadRequest, nil)
		return
	}

	var req CreditLimitRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if req.CreditLimit.IsNegative() {
		SendErrorResponse(w, "Valid credit limit required", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec(`
		UPDATE customers SET credit_limit = $1 WHERE user_id = $2`,
		req.CreditLimit, customerID)
	if err != nil {
		log.Printf("[CUSTOMER] Failed to update credit limit for %d: %v", customerID, err)
		SendErrorResponse(w, "Failed to update credit limit", http.StatusInternalServerError, nil)
		return
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[CUSTOMER] Credit limit for customer %d set to %s", customerID, req.CreditLimit.String())
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Credit limit updated successfully"})
}
