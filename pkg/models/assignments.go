package models

// Assignments is a write-once overlay of line item -> role. It stands in
// for writing model_role back onto input line items, which stay untouched.
// Items are keyed by statement, tag and segment, so the same tag on the
// income statement and the cash flow statement is tracked separately.
type Assignments struct {
	roles map[itemKey]Role
}

type itemKey struct {
	statement StatementType
	tag       string
	segment   string
}

func keyOf(item LineItem) itemKey {
	return itemKey{statement: item.StatementType, tag: item.Tag, segment: item.Segment}
}

// NewAssignments returns an empty overlay.
func NewAssignments() *Assignments {
	return &Assignments{roles: make(map[itemKey]Role)}
}

// Assign records role for the item. It returns false when the item already
// carries a different role, either from input or from an earlier Assign.
func (a *Assignments) Assign(item LineItem, role Role) bool {
	if item.ModelRole != "" {
		return item.ModelRole == role
	}
	if existing, ok := a.roles[keyOf(item)]; ok {
		return existing == role
	}
	a.roles[keyOf(item)] = role
	return true
}

// RoleOf returns the effective role of an item: input model_role wins,
// otherwise the overlay.
func (a *Assignments) RoleOf(item LineItem) Role {
	if item.ModelRole != "" {
		return item.ModelRole
	}
	if a == nil {
		return ""
	}
	return a.roles[keyOf(item)]
}

// Len returns the number of overlay assignments.
func (a *Assignments) Len() int {
	if a == nil {
		return 0
	}
	return len(a.roles)
}
