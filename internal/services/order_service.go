package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/peedutronix/credit-keeper/internal/events"
	"github.com/peedutronix/credit-keeper/internal/metrics"
	mW "github.com/peedutronix/credit-keeper/internal/middleware"
	"github.com/peedutronix/credit-keeper/internal/models"
)

// OrderService drives the order state machine and its ledger and notification
// side effects. The order row mutation and the ledger posting always share one
// database transaction; notification dispatch and event publishing run after
// commit and are best-effort.
type OrderService struct {
	db        *sql.DB
	ledger    *LedgerService
	notifier  *NotificationService
	publisher events.Publisher
	validator *ValidationHelper
}

func NewOrderService(db *sql.DB, ledger *LedgerService, notifier *NotificationService, publisher events.Publisher) *OrderService {
	return &OrderService{
		db:        db,
		ledger:    ledger,
		notifier:  notifier,
		publisher: publisher,
		validator: NewValidationHelper(),
	}
}

// CreateOrderRequest is the customer's order submission.
type CreateOrderRequest struct {
	OrderType    string          `json:"order_type" validate:"required,oneof=remote at_shop"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	Items        []string        `json:"items"`
	Notes        string          `json:"notes"`
}

// CreateOrder handles POST /orders
// @Summary Create a credit order
// @Description Insert a pending order, post its credit ledger record and notify the assigned shopkeeper
// @Tags orders
// @Accept json
// @Produce json
// @Param request body CreateOrderRequest true "Order data"
// @Success 201 {object} object{message=string,order=models.Order}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /orders [post]
func (s *OrderService) CreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CreateOrderRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		log.Printf("[ORDER] Create failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !req.TotalAmount.IsPositive() || !req.CreditAmount.IsPositive() {
		SendErrorResponse(w, "total_amount and credit_amount must be positive", http.StatusBadRequest, nil)
		return
	}

	// The credit limit is informational only: staff review pending orders
	// against the summary, so available_credit may go negative here.
	items := req.Items
	if items == nil {
		items = []string{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		SendErrorResponse(w, "Invalid items", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[ORDER] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Single-shopkeeper shop: every order goes to the first registered
	// shopkeeper. Orders created before one exists stay unassigned.
	var shopkeeperID *int
	var skID int
	err = tx.QueryRow(`SELECT id FROM users WHERE role = 'shopkeeper' ORDER BY id LIMIT 1`).Scan(&skID)
	switch err {
	case nil:
		shopkeeperID = &skID
	case sql.ErrNoRows:
		shopkeeperID = nil
	default:
		log.Printf("[ORDER] Shopkeeper lookup failed: %v", err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	order := models.Order{
		CustomerID:   identity.UserID,
		ShopkeeperID: shopkeeperID,
		OrderType:    req.OrderType,
		TotalAmount:  req.TotalAmount,
		CreditAmount: req.CreditAmount,
		Status:       models.StatusPending,
		Items:        items,
		Notes:        req.Notes,
	}

	err = tx.QueryRow(`
		INSERT INTO orders (customer_id, shopkeeper_id, order_type, total_amount, credit_amount, status, items, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		order.CustomerID, order.ShopkeeperID, order.OrderType, order.TotalAmount,
		order.CreditAmount, order.Status, string(itemsJSON), nullableString(order.Notes)).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		log.Printf("[ORDER] Insert failed for customer %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	_, err = s.ledger.PostRecordTx(tx, identity.UserID, &order.ID, req.CreditAmount,
		models.RecordCredit, fmt.Sprintf("Credit from order #%d", order.ID))
	if err != nil {
		if err == ErrAccountNotFound {
			SendErrorResponse(w, "Credit account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ORDER] Ledger post failed for order %d: %v", order.ID, err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[ORDER] Commit failed for order %d: %v", order.ID, err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}
	metrics.OrdersCreated.Inc()
	log.Printf("[ORDER] Order %d created by customer %d (credit %s)",
		order.ID, identity.UserID, req.CreditAmount.String())

	if order.ShopkeeperID != nil {
		_, err = s.notifier.Notify(*order.ShopkeeperID, models.NotifyNewOrder, "New Credit Order",
			fmt.Sprintf("Customer %d placed a credit order of %s", identity.UserID, req.CreditAmount.String()),
			&order.ID)
		if err != nil {
			log.Printf("[ORDER] Failed to notify shopkeeper for order %d: %v", order.ID, err)
		}
	}

	s.publish(events.NewOrderEvent(events.EventOrderCreated, order.ID, order.CustomerID,
		order.Status, order.CreditAmount))

	SendJSONResponse(w, http.StatusCreated, map[string]any{
		"message": "Order created successfully",
		"order":   order,
	})
}

// UpdateStatusRequest carries the requested successor status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PATCH /orders/{id}/status
// @Summary Transition an order
// @Description Move an order to a valid successor status; rejection reverses the order's credit
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param request body UpdateStatusRequest true "New status"
// @Success 200 {object} object{message=string,order=models.Order}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /orders/{id}/status [patch]
func (s *OrderService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid order id", http.StatusBadRequest, nil)
		return
	}

	var req UpdateStatusRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !models.ValidStatus(req.Status) {
		SendErrorResponse(w, "Invalid status", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[ORDER] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to update order", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Lock the order row so two concurrent transitions on the same order
	// serialize and the loser sees the winner's status.
	var order models.Order
	var itemsJSON, notes sql.NullString
	err = tx.QueryRow(`
		SELECT id, customer_id, shopkeeper_id, order_type, total_amount, credit_amount, status, items, notes, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE`, orderID).
		Scan(&order.ID, &order.CustomerID, &order.ShopkeeperID, &order.OrderType,
			&order.TotalAmount, &order.CreditAmount, &order.Status, &itemsJSON,
			&notes, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ORDER] Failed to fetch order %d: %v", orderID, err)
		SendErrorResponse(w, "Failed to update order", http.StatusInternalServerError, nil)
		return
	}
	order.Items = decodeItems(itemsJSON)
	order.Notes = notes.String

	if !models.CanTransition(order.Status, req.Status) {
		// Conflict: the client acted on a stale view of the order.
		SendErrorResponse(w,
			fmt.Sprintf("Cannot transition order from %s to %s", order.Status, req.Status),
			http.StatusConflict, nil)
		return
	}

	err = tx.QueryRow(`
		UPDATE orders SET status = $1, updated_at = now() WHERE id = $2
		RETURNING updated_at`, req.Status, orderID).Scan(&order.UpdatedAt)
	if err != nil {
		log.Printf("[ORDER] Status update failed for order %d: %v", orderID, err)
		SendErrorResponse(w, "Failed to update order", http.StatusInternalServerError, nil)
		return
	}

	// Rejection fully reverses the order's credit. Completion has no ledger
	// effect: the credit stays outstanding until a payment is recorded.
	if req.Status == models.StatusRejected {
		_, err = s.ledger.PostRecordTx(tx, order.CustomerID, &order.ID, order.CreditAmount.Neg(),
			models.RecordPayment, fmt.Sprintf("Reversal for rejected order #%d", order.ID))
		if err != nil {
			log.Printf("[ORDER] Reversal failed for order %d: %v", orderID, err)
			SendErrorResponse(w, "Failed to update order", http.StatusInternalServerError, nil)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[ORDER] Commit failed for order %d: %v", orderID, err)
		SendErrorResponse(w, "Failed to update order", http.StatusInternalServerError, nil)
		return
	}
	order.Status = req.Status
	metrics.OrderTransitions.WithLabelValues(req.Status).Inc()
	log.Printf("[ORDER] Order %d transitioned to %s", orderID, req.Status)

	_, err = s.notifier.Notify(order.CustomerID, models.NotifyOrderUpdate, "Order Status Updated",
		fmt.Sprintf("Your order #%d has been %s", order.ID, req.Status), &order.ID)
	if err != nil {
		log.Printf("[ORDER] Failed to notify customer for order %d: %v", order.ID, err)
	}

	s.publish(events.NewOrderEvent(events.EventOrderStatusChanged, order.ID, order.CustomerID,
		order.Status, order.CreditAmount))

	SendJSONResponse(w, http.StatusOK, map[string]any{
		"message": "Order status updated",
		"order":   order,
	})
}

// ListCustomerOrders handles GET /orders/customer
// @Summary List own orders
// @Description The authenticated customer's orders, newest first
// @Tags orders
// @Produce json
// @Success 200 {object} object{orders=[]models.Order}
// @Failure 500 {object} ErrorResponse
// @Router /orders/customer [get]
func (s *OrderService) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, customer_id, shopkeeper_id, order_type, total_amount, credit_amount, status, items, notes, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC`, identity.UserID)
	if err != nil {
		log.Printf("[ORDER] Failed to list orders for customer %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to fetch orders", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	orders, err := scanOrders(rows, false)
	if err != nil {
		log.Printf("[ORDER] Failed to scan orders for customer %d: %v", identity.UserID, err)
		SendErrorResponse(w, "Failed to fetch orders", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"orders": orders})
}

// ListShopkeeperOrders handles GET /orders/shopkeeper
// @Summary List the working set
// @Description All pending and approved orders with customer details, newest first
// @Tags orders
// @Produce json
// @Success 200 {object} object{orders=[]models.Order}
// @Failure 500 {object} ErrorResponse
// @Router /orders/shopkeeper [get]
func (s *OrderService) ListShopkeeperOrders(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT o.id, o.customer_id, o.shopkeeper_id, o.order_type, o.total_amount, o.credit_amount, o.status, o.items, o.notes, o.created_at, o.updated_at,
		       u.username, u.full_name, u.phone
		FROM orders o
		JOIN users u ON o.customer_id = u.id
		WHERE o.status IN ('pending', 'approved')
		ORDER BY o.created_at DESC, o.id DESC`)
	if err != nil {
		log.Printf("[ORDER] Failed to list shopkeeper orders: %v", err)
		SendErrorResponse(w, "Failed to fetch orders", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	orders, err := scanOrders(rows, true)
	if err != nil {
		log.Printf("[ORDER] Failed to scan shopkeeper orders: %v", err)
		SendErrorResponse(w, "Failed to fetch orders", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder handles GET /orders/{id}
// @Summary Get one order
// @Description Fetch a single order by id; customers only see their own
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} models.Order
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /orders/{id} [get]
func (s *OrderService) GetOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	orderID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid order id", http.StatusBadRequest, nil)
		return
	}

	var order models.Order
	var itemsJSON, notes sql.NullString
	err = s.db.QueryRow(`
		SELECT id, customer_id, shopkeeper_id, order_type, total_amount, credit_amount, status, items, notes, created_at, updated_at
		FROM orders
		WHERE id = $1`, orderID).
		Scan(&order.ID, &order.CustomerID, &order.ShopkeeperID, &order.OrderType,
			&order.TotalAmount, &order.CreditAmount, &order.Status, &itemsJSON,
			&notes, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ORDER] Failed to fetch order %d: %v", orderID, err)
		SendErrorResponse(w, "Failed to fetch order", http.StatusInternalServerError, nil)
		return
	}
	order.Items = decodeItems(itemsJSON)
	order.Notes = notes.String

	if identity.Role == models.RoleCustomer && order.CustomerID != identity.UserID {
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, order)
}

func (s *OrderService) publish(event events.OrderEvent) {
	if err := s.publisher.Publish(events.TopicOrders, event); err != nil {
		log.Printf("[ORDER] Failed to publish %s for order %d: %v", event.Event, event.OrderID, err)
	}
}

type orderRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanOrders(rows orderRows, withCustomer bool) ([]models.Order, error) {
	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		var itemsJSON, notes sql.NullString
		dest := []any{
			&order.ID, &order.CustomerID, &order.ShopkeeperID, &order.OrderType,
			&order.TotalAmount, &order.CreditAmount, &order.Status, &itemsJSON,
			&notes, &order.CreatedAt, &order.UpdatedAt,
		}
		if withCustomer {
			var fullName, phone sql.NullString
			dest = append(dest, &order.CustomerUsername, &fullName, &phone)
			if err := rows.Scan(dest...); err != nil {
				return nil, err
			}
			order.CustomerName = fullName.String
			order.CustomerPhone = phone.String
		} else {
			if err := rows.Scan(dest...); err != nil {
				return nil, err
			}
		}
		order.Items = decodeItems(itemsJSON)
		order.Notes = notes.String
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func decodeItems(itemsJSON sql.NullString) []string {
	items := []string{}
	if itemsJSON.Valid && itemsJSON.String != "" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &items); err != nil {
			log.Printf("[ORDER] Failed to decode items column: %v", err)
		}
	}
	return items
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
