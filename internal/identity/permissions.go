package identity

// Action names a gated ledger operation.
type Action string

const (
	ActionCreate  Action = "create"  // create a new record
	ActionModify  Action = "modify"  // update fields, deactivate, reactivate
	ActionRestock Action = "restock" // increase physical stock
	ActionAdjust  Action = "adjust"  // manual quantity override
	ActionDelete  Action = "delete"  // hard delete
	ActionView    Action = "view"    // read a single record
)

// Target carries the record attributes the gate needs. Keeping it detached
// from the storage model makes the rules testable without a store.
type Target struct {
	OwnerID          string
	Active           bool
	RequiresApproval bool
}

// rules is the full authorization table. One predicate per action so the
// rules stay auditable in one place instead of scattered through services.
var rules = map[Action]func(p Principal, t Target) bool{
	ActionCreate: func(p Principal, _ Target) bool {
		return p.IsAdmin() || p.IsApprovedVendor()
	},
	ActionModify: func(p Principal, t Target) bool {
		return p.IsAdmin() || p.Owns(t.OwnerID)
	},
	ActionRestock: func(p Principal, t Target) bool {
		if t.RequiresApproval {
			return p.IsAdmin()
		}
		return p.IsAdmin() || p.Owns(t.OwnerID)
	},
	ActionAdjust: func(p Principal, _ Target) bool {
		return p.IsAdmin()
	},
	ActionDelete: func(p Principal, _ Target) bool {
		return p.IsAdmin()
	},
	ActionView: func(p Principal, t Target) bool {
		return t.Active || p.IsAdmin() || p.Owns(t.OwnerID)
	},
}

// Allowed evaluates the rule for action against the principal and target.
// Unknown actions are denied.
func Allowed(p Principal, action Action, t Target) bool {
	rule, ok := rules[action]
	if !ok {
		return false
	}
	return rule(p, t)
}
