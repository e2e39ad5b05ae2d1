package entities

// UserRole is a marketplace role carried in the caller's access token.
type UserRole string

const (
	UserRoleFarmer          UserRole = "farmer"
	UserRoleCustomer        UserRole = "customer"
	UserRoleWarehouse       UserRole = "warehouse"
	UserRoleDeliveryPartner UserRole = "delivery_partner"
	UserRoleAdmin           UserRole = "admin"
)

// ParseUserRole maps a claim value to a role; unknown values become customer.
func ParseUserRole(s string) UserRole {
	switch r := UserRole(s); r {
	case UserRoleFarmer, UserRoleCustomer, UserRoleWarehouse, UserRoleDeliveryPartner, UserRoleAdmin:
		return r
	}
	return UserRoleCustomer
}

type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Role  UserRole `json:"role"`
}
