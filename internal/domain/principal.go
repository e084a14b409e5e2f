package domain

type Role string
type UserType string

const (
	RoleAdmin  Role = "Admin"
	RoleLead   Role = "Lead"
	RoleMember Role = "Member"

	UserTypeInternal UserType = "Internal"
	UserTypeDealer   UserType = "Dealer"
	UserTypeCustomer UserType = "Customer"
)

// Principal is the authenticated caller. Role and department are owned by
// account administration and are read-only here.
type Principal struct {
	ID           int64    `json:"id" db:"id"`
	Username     string   `json:"username" db:"username"`
	Role         Role     `json:"role" db:"role"`
	DepartmentID *int64   `json:"department_id,omitempty" db:"department_id"`
	UserType     UserType `json:"user_type" db:"user_type"`
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

func (p *Principal) IsLead() bool {
	return p != nil && p.Role == RoleLead
}

// InDepartment reports whether p belongs to the given department.
func (p *Principal) InDepartment(departmentID *int64) bool {
	if p == nil || p.DepartmentID == nil || departmentID == nil {
		return false
	}
	return *p.DepartmentID == *departmentID
}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleLead, RoleMember:
		return Role(s), nil
	}
	return "", invalidf("unknown role %q", s)
}

func ParseUserType(s string) (UserType, error) {
	switch UserType(s) {
	case "":
		return UserTypeInternal, nil
	case UserTypeInternal, UserTypeDealer, UserTypeCustomer:
		return UserType(s), nil
	}
	return "", invalidf("unknown user type %q", s)
}

// Department maps a department to the root of its folder subtree.
type Department struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	FolderPath string `json:"folder_path" db:"folder_path"`
}
