package domain

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

// Actor identifies who performs a mutating operation. Identity and coarse
// authorization come from an external access-control layer; the engine only
// records the actor on history rows.
type Actor struct {
	ID   int32 `json:"id"`
	Role Role  `json:"role"`
}
