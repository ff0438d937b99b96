package domain

// Role is the contact-scoped sender role. It is resolved once per contact
// and propagated to all of that contact's threads.
type Role string

const (
	RoleStudent          Role = "Student"
	RoleFaculty          Role = "Faculty"
	RoleAdmin            Role = "Admin"
	RoleIndustry         Role = "Industry"
	RoleExternalAcademic Role = "External Academic"
	RoleGovernmentOrg    Role = "Government/Organization"
	RoleGeneralExternal  Role = "General External"
)

// RolePriority is the fixed tie-break order: when two roles score the same,
// the one appearing earlier wins.
var RolePriority = []Role{
	RoleAdmin,
	RoleFaculty,
	RoleStudent,
	RoleIndustry,
	RoleExternalAcademic,
	RoleGovernmentOrg,
	RoleGeneralExternal,
}

// Importance is scored per thread, independently of the contact role.
type Importance string

const (
	ImportanceHigh   Importance = "High"
	ImportanceMedium Importance = "Medium"
	ImportanceLow    Importance = "Low"
)

// Classification is the combined output of the rule-based classifier.
type Classification struct {
	Role                 Role       `json:"role"`
	RoleConfidence       float64    `json:"role_confidence"`
	Importance           Importance `json:"importance"`
	ImportanceConfidence float64    `json:"importance_confidence"`
}
