package rbac

// Role names. Keep these stable; they are part of the ops API contract.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
