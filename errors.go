package staking

import (
	"errors"
)

// Reason tells apart the situations merged under a single revert code. It is
// meant for logs and metrics only and never changes how a revert matches.
type Reason string

const (
	ReasonUnknownID  Reason = "unknown id"
	ReasonRedeemed   Reason = "already redeemed"
	ReasonWrongOwner Reason = "wrong owner"
)

// Revert is returned when the ledger rejects an operation. A revert never leaves
// any effect behind.
type Revert struct {
	code   string
	reason Reason
}

func newRevert(code string) *Revert {
	return &Revert{code: code}
}

func (r *Revert) Error() string {
	return r.code
}

// Is matches reverts by code, whatever their reason.
func (r *Revert) Is(target error) bool {
	t, ok := target.(*Revert)
	return ok && t.code == r.code
}

// Reason returns the internal reason, empty when the code says it all.
func (r *Revert) Reason() Reason {
	return r.reason
}

func (r *Revert) withReason(reason Reason) *Revert {
	return &Revert{code: r.code, reason: reason}
}

var (
	ErrInvalidAmount   = newRevert("InvalidAmount")
	ErrNotOwner        = newRevert("NotOwner")
	ErrAlreadyUnstaked = newRevert("AlreadyUnstaked")
	ErrNotUnstaked     = newRevert("NotUnstaked")
	ErrNotRedeemable   = newRevert("NotRedeemable")
	ErrReentrant       = newRevert("ReentrantCall")
	ErrTimeOverflow    = newRevert("TimeOverflow")
	ErrIDOverflow      = newRevert("IDOverflow")
	ErrAmountOverflow  = newRevert("AmountOverflow")
)

// IsRevert reports whether err was raised by the ledger's own checks, as opposed
// to the token collaborator or the storage.
func IsRevert(err error) bool {
	var r *Revert
	return errors.As(err, &r)
}

// RevertReason returns the internal reason carried by err, if any.
func RevertReason(err error) Reason {
	var r *Revert
	if errors.As(err, &r) {
		return r.reason
	}
	return ""
}
