package models

const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
)

// Identity is what the auth middleware extracts from a bearer token and
// stores in the request context.
type Identity struct {
	UserID string
	Role   string
	City   string
}
