package staking

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

//go:generate stringer -type=State
type State uint8

const (
	StateAbsent State = iota
	StateActive
	StateUnstaked
	StateRedeemable
)

// Record is the externally visible deposit record. The zero record, with a zero
// owner and a zero amount, stands for a deposit that never existed or was redeemed.
type Record struct {
	Owner          common.Address
	Amount         *uint256.Int
	RedeemableTime uint64
}

// IsEmpty returns whether the record is the absent sentinel.
func (r Record) IsEmpty() bool {
	return r.Amount == nil || r.Amount.IsZero()
}

// StateAt returns the lifecycle state of the record at time now.
func (r Record) StateAt(now uint64) State {
	switch {
	case r.IsEmpty():
		return StateAbsent
	case r.RedeemableTime == 0:
		return StateActive
	case now < r.RedeemableTime:
		return StateUnstaked
	default:
		return StateRedeemable
	}
}

type Deposit struct {
	ID uint64
	Record
	State State
}
