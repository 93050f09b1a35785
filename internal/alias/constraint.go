package alias

import "lotus/internal/dyck"

// ConstraintKind tags the four pointer-constraint shapes of spec §3.
type ConstraintKind uint8

const (
	// AddrOf: p ⊇ {obj}.
	AddrOf ConstraintKind = iota
	// Copy: p ⊇ q.
	Copy
	// Load: p ⊇ *q.
	Load
	// Store: *p ⊇ q.
	Store
)

// Constraint is the tagged variant seeded once from IR instructions and
// saturated into the Dyck graph (spec §3 "Pointer Constraint").
type Constraint struct {
	Kind   ConstraintKind
	P      dyck.ID
	Q      dyck.ID // unused for AddrOf
	Object dyck.ID // only meaningful for AddrOf
}
