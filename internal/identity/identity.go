package identity

// Role classifies a caller. Anything other than admin or vendor is treated
// as a read-only caller.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVendor Role = "vendor"
	RoleOther  Role = "other"
)

// Principal is the caller identity supplied by the identity provider.
// Approved only matters for vendors: an unapproved vendor has the same
// rights as any other read-only caller.
type Principal struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Approved bool   `json:"approved"`
}

// IsAdmin reports whether the principal has administrator rights.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsApprovedVendor reports whether the principal is a vendor in approved state.
func (p Principal) IsApprovedVendor() bool {
	return p.Role == RoleVendor && p.Approved
}

// Owns reports whether the principal is the approved vendor owning ownerID.
func (p Principal) Owns(ownerID string) bool {
	return p.IsApprovedVendor() && ownerID != "" && p.ID == ownerID
}
