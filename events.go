package staking

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const eventsJSON = `[
	{"type":"event","name":"Stake","anonymous":false,"inputs":[
		{"name":"stakingId","type":"uint256","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Unstake","anonymous":false,"inputs":[
		{"name":"stakingId","type":"uint256","indexed":true},
		{"name":"redeemableTime","type":"uint256","indexed":false}]},
	{"type":"event","name":"Redeem","anonymous":false,"inputs":[
		{"name":"stakingId","type":"uint256","indexed":true}]}
]`

// EventsABI describes the notifications emitted by the ledger.
var EventsABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(eventsJSON))
	if err != nil {
		panic(err)
	}
	EventsABI = parsed
}

// Event is a decoded ledger notification.
type Event interface {
	DepositID() uint64
	toLog(addr common.Address) (*types.Log, error)
}

type StakeEvent struct {
	ID     uint64
	Owner  common.Address
	Amount *uint256.Int
}

type UnstakeEvent struct {
	ID             uint64
	RedeemableTime uint64
}

type RedeemEvent struct {
	ID uint64
}

func (e *StakeEvent) DepositID() uint64   { return e.ID }
func (e *UnstakeEvent) DepositID() uint64 { return e.ID }
func (e *RedeemEvent) DepositID() uint64  { return e.ID }

func idTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

func newLog(addr common.Address, name string, topics []common.Hash, args ...any) (*types.Log, error) {
	ev := EventsABI.Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return nil, errors.WithMessagef(err, "pack %s event", name)
	}
	return &types.Log{
		Address: addr,
		Topics:  append([]common.Hash{ev.ID}, topics...),
		Data:    data,
	}, nil
}

func (e *StakeEvent) toLog(addr common.Address) (*types.Log, error) {
	return newLog(addr, "Stake",
		[]common.Hash{idTopic(e.ID), common.BytesToHash(e.Owner.Bytes())},
		e.Amount.ToBig())
}

func (e *UnstakeEvent) toLog(addr common.Address) (*types.Log, error) {
	return newLog(addr, "Unstake",
		[]common.Hash{idTopic(e.ID)},
		new(big.Int).SetUint64(e.RedeemableTime))
}

func (e *RedeemEvent) toLog(addr common.Address) (*types.Log, error) {
	return newLog(addr, "Redeem", []common.Hash{idTopic(e.ID)})
}

func topicUint64(h common.Hash) (uint64, error) {
	v := new(big.Int).SetBytes(h.Bytes())
	if !v.IsUint64() {
		return 0, errors.Errorf("topic %s out of uint64 range", h)
	}
	return v.Uint64(), nil
}

// ParseLog decodes a log emitted by the ledger.
func ParseLog(l *types.Log) (Event, error) {
	if len(l.Topics) < 2 {
		return nil, errors.New("not a ledger log: missing topics")
	}
	ev, err := EventsABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, errors.WithMessage(err, "not a ledger log")
	}
	if len(l.Topics) != 1+countIndexed(ev.Inputs) {
		return nil, errors.Errorf("%s log: unexpected topic count %d", ev.Name, len(l.Topics))
	}
	id, err := topicUint64(l.Topics[1])
	if err != nil {
		return nil, err
	}
	values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, errors.WithMessagef(err, "unpack %s log", ev.Name)
	}

	switch ev.Name {
	case "Stake":
		amount, overflow := uint256.FromBig(values[0].(*big.Int))
		if overflow {
			return nil, errors.New("stake log: amount overflow")
		}
		return &StakeEvent{
			ID:     id,
			Owner:  common.BytesToAddress(l.Topics[2].Bytes()),
			Amount: amount,
		}, nil
	case "Unstake":
		t := values[0].(*big.Int)
		if !t.IsUint64() {
			return nil, errors.New("unstake log: time out of range")
		}
		return &UnstakeEvent{ID: id, RedeemableTime: t.Uint64()}, nil
	default:
		return &RedeemEvent{ID: id}, nil
	}
}

func countIndexed(args abi.Arguments) (n int) {
	for _, arg := range args {
		if arg.Indexed {
			n++
		}
	}
	return
}
