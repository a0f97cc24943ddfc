package engine

import "fmt"

// InvariantViolation is the panic value raised when the book's internal
// bookkeeping is caught disagreeing with itself — currently a FOK order
// left with remaining quantity after the matcher accepted it. Per §7,
// corrupted matching state is not recoverable: the only correct response
// is to stop touching it.
type InvariantViolation struct {
	Component string
	Detail    string
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", v.Component, v.Detail)
}

// checkInvariant panics with an InvariantViolation if cond is false. It is
// reserved for bookkeeping that must never disagree with itself by
// construction (each call site names its component and the invariant in
// its detail string); ordinary rejects and not-found results are returned
// as values, never through this path.
func checkInvariant(cond bool, component, detail string) {
	if !cond {
		panic(InvariantViolation{Component: component, Detail: detail})
	}
}
