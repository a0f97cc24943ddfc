package common

import "errors"

// ErrInvalidQuantity is returned by Order.DecreaseQuantity when a modify
// target exceeds the order's remaining quantity. The rest of §7's
// taxonomy (PostOnlyWouldCross, FokUnsatisfiable, NotFound,
// AlreadyTerminal, ...) is surfaced through the typed RejectReason /
// CancelResult / ModifyResult result values instead of sentinel errors,
// since every one of those is a normal, expected outcome rather than a Go
// error condition.
var ErrInvalidQuantity = errors.New("invalid quantity")
