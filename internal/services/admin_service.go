package services

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/peedutronix/credit-keeper/internal/models"
)

// AdminService serves the dashboard aggregates and the user directory.
type AdminService struct {
	db *sql.DB
}

func NewAdminService(db *sql.DB) *AdminService {
	return &AdminService{db: db}
}

// DashboardStats summarizes the shop's credit book.
type DashboardStats struct {
	TotalCustomers int             `json:"total_customers"`
	TotalOrders    int             `json:"total_orders"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	PendingOrders  int             `json:"pending_orders"`
}

// Dashboard handles GET /admin/dashboard
// @Summary Dashboard statistics
// @Tags admin
// @Produce json
// @Success 200 {object} object{stats=DashboardStats}
// @Failure 500 {object} ErrorResponse
// @Router /admin/dashboard [get]
func (s *AdminService) Dashboard(w http.ResponseWriter, r *http.Request) {
	var stats DashboardStats
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users WHERE role = 'customer'),
			(SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(current_credit), 0) FROM customers),
			(SELECT COUNT(*) FROM orders WHERE status = 'pending')`).
		Scan(&stats.TotalCustomers, &stats.TotalOrders, &stats.TotalCredit, &stats.PendingOrders)
	if err != nil {
		log.Printf("[ADMIN] Failed to fetch dashboard stats: %v", err)
		SendErrorResponse(w, "Failed to fetch stats", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"stats": stats})
}

// ListUsers handles GET /admin/users
// @Summary List all users
// @Tags admin
// @Produce json
// @Success 200 {object} object{users=[]models.User}
// @Failure 500 {object} ErrorResponse
// @Router /admin/users [get]
func (s *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT id, username, email, role, full_name, phone, created_at
		FROM users
		ORDER BY created_at DESC`)
	if err != nil {
		log.Printf("[ADMIN] Failed to list users: %v", err)
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		var fullName, phone sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &fullName, &phone, &u.CreatedAt); err != nil {
			log.Printf("[ADMIN] Failed to scan user row: %v", err)
			SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
			return
		}
		u.FullName = fullName.String
		u.Phone = phone.String
		users = append(users, u)
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{"users": users})
}
