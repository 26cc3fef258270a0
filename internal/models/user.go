package models

import "time"

// Roles accepted at registration. The auth middleware puts the verified role
// into the request context; services trust it and do not re-check credentials.
const (
	RoleAdmin      = "admin"
	RoleShopkeeper = "shopkeeper"
	RoleCustomer   = "customer"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleShopkeeper, RoleCustomer:
		return true
	}
	return false
}

type User struct {
	ID        int       `json:"id" example:"1"`                          // User ID
	Username  string    `json:"username" example:"ravi"`                 // Unique username
	Email     string    `json:"email" example:"ravi@example.com"`        // Unique email
	Role      string    `json:"role" example:"customer"`                 // admin, shopkeeper or customer
	FullName  string    `json:"full_name,omitempty" example:"Ravi Iyer"` // Display name
	Phone     string    `json:"phone,omitempty" example:"+919812345678"` // Contact phone
	CreatedAt time.Time `json:"created_at"`
}
