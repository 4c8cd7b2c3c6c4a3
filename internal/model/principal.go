package model

const (
	RoleAdmin    = "ADMIN"
	RoleOperator = "OPERATOR"
	RoleViewer   = "VIEWER"
)

type Principal struct {
	UserID string
	Role   string
}

func (p Principal) CanTransact() bool {
	return p.Role == RoleAdmin || p.Role == RoleOperator
}
