package models

type Role string

const (
	RoleBuyer               Role = "buyer"
	RoleAgent               Role = "agent"
	RoleFarmer              Role = "farmer"
	RoleBusiness            Role = "business"
	RoleSupplierFoodProduce Role = "supplier_food_produce"
	RoleAdmin               Role = "admin"
)

// Caller is the authenticated identity attached to every engine operation.
// It comes from the identity service's access token; this service never stores users.
type Caller struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	Role       Role   `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

// CanSell reports whether the caller's role may submit offers.
func (c Caller) CanSell() bool {
	switch c.Role {
	case RoleAgent, RoleFarmer, RoleBusiness, RoleSupplierFoodProduce:
		return true
	}
	return false
}
