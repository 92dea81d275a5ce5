package domain

// Role represents a logical capability grouping for authenticated users.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Capability represents an actionable verb within the API surface.
type Capability string

const (
	CapabilityViewPlaces   Capability = "places:view"
	CapabilityManagePlaces Capability = "places:manage"
	CapabilityDetect       Capability = "detect:run"
)

// RoleMatrix enumerates which roles hold a capability.
var RoleMatrix = map[Capability][]Role{
	CapabilityViewPlaces:   {RoleAdmin, RoleMember},
	CapabilityDetect:       {RoleAdmin, RoleMember},
	CapabilityManagePlaces: {RoleAdmin},
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allows evaluates capability against RoleMatrix.
func (p Principal) Allows(capability Capability) Decision {
	if p.Username == "" {
		return Decision{Reason: "authentication required"}
	}
	for _, r := range RoleMatrix[capability] {
		if r == p.Role {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: "role " + string(p.Role) + " lacks " + string(capability)}
}
