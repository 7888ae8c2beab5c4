package staking

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/GridexProtocol/staking/storage"
)

var (
	keyCounter    = []byte("staking/counter")
	keyTotal      = []byte("staking/total")
	keyActive     = []byte("staking/active")
	keyLogCount   = []byte("staking/logs")
	prefixDeposit = []byte("staking/d/")
	prefixLog     = []byte("staking/l/")
)

func indexKey(prefix []byte, i uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefix...), i)
}

type phase uint8

const (
	phaseActive phase = iota + 1
	phaseUnstaked
)

// body is the stored form of a deposit. A missing body means the deposit never
// existed or was redeemed.
type body struct {
	Phase          phase
	Owner          common.Address
	Amount         *uint256.Int
	RedeemableTime uint64
}

func (b *body) record() Record {
	return Record{
		Owner:          b.Owner,
		Amount:         b.Amount.Clone(),
		RedeemableTime: b.RedeemableTime,
	}
}

// repository maps the ledger's variables onto the journaled state.
type repository struct {
	state *storage.State
}

func (r *repository) getUint64(key []byte) (uint64, error) {
	raw, err := r.state.Get(key)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, errors.Errorf("corrupted value under %q", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (r *repository) putUint64(key []byte, v uint64) {
	if v == 0 {
		r.state.Delete(key)
		return
	}
	r.state.Put(key, binary.BigEndian.AppendUint64(nil, v))
}

// counter returns the last allocated deposit id.
func (r *repository) counter() (uint64, error) {
	return r.getUint64(keyCounter)
}

// nextID bumps the counter and returns the new id.
func (r *repository) nextID() (uint64, error) {
	id, err := r.counter()
	if err != nil {
		return 0, err
	}
	if id == math.MaxUint64 {
		return 0, ErrIDOverflow
	}
	id++
	r.putUint64(keyCounter, id)
	return id, nil
}

func (r *repository) deposit(id uint64) (*body, error) {
	raw, err := r.state.Get(indexKey(prefixDeposit, id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get deposit")
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var b body
	if err := rlp.DecodeBytes(raw, &b); err != nil {
		return nil, errors.Wrap(err, "failed to decode deposit")
	}
	return &b, nil
}

func (r *repository) putDeposit(id uint64, b *body) error {
	raw, err := rlp.EncodeToBytes(b)
	if err != nil {
		return errors.Wrap(err, "failed to encode deposit")
	}
	r.state.Put(indexKey(prefixDeposit, id), raw)
	return nil
}

func (r *repository) deleteDeposit(id uint64) {
	r.state.Delete(indexKey(prefixDeposit, id))
}

func (r *repository) total() (*uint256.Int, error) {
	raw, err := r.state.Get(keyTotal)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (r *repository) putTotal(v *uint256.Int) {
	if v.IsZero() {
		r.state.Delete(keyTotal)
		return
	}
	r.state.Put(keyTotal, v.Bytes())
}

// addDeposit accounts a new deposit of amount in the totals.
func (r *repository) addDeposit(amount *uint256.Int) error {
	total, err := r.total()
	if err != nil {
		return err
	}
	if _, overflow := total.AddOverflow(total, amount); overflow {
		return ErrAmountOverflow
	}
	active, err := r.getUint64(keyActive)
	if err != nil {
		return err
	}
	r.putTotal(total)
	r.putUint64(keyActive, active+1)
	return nil
}

// removeDeposit takes a redeemed deposit of amount out of the totals.
func (r *repository) removeDeposit(amount *uint256.Int) error {
	total, err := r.total()
	if err != nil {
		return err
	}
	if _, underflow := total.SubOverflow(total, amount); underflow {
		return errors.New("total staked underflow")
	}
	active, err := r.getUint64(keyActive)
	if err != nil {
		return err
	}
	if active == 0 {
		return errors.New("active deposits underflow")
	}
	r.putTotal(total)
	r.putUint64(keyActive, active-1)
	return nil
}

func (r *repository) activeDeposits() (uint64, error) {
	return r.getUint64(keyActive)
}

func (r *repository) appendLog(l *types.Log) error {
	n, err := r.getUint64(keyLogCount)
	if err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(l)
	if err != nil {
		return errors.Wrap(err, "failed to encode log")
	}
	l.Index = uint(n)
	r.state.Put(indexKey(prefixLog, n), raw)
	r.putUint64(keyLogCount, n+1)
	return nil
}

func (r *repository) logs() ([]*types.Log, error) {
	n, err := r.getUint64(keyLogCount)
	if err != nil {
		return nil, err
	}
	logs := make([]*types.Log, 0, n)
	for i := uint64(0); i < n; i++ {
		raw, err := r.state.Get(indexKey(prefixLog, i))
		if err != nil {
			return nil, err
		}
		l := new(types.Log)
		if err := rlp.DecodeBytes(raw, l); err != nil {
			return nil, errors.Wrapf(err, "failed to decode log %d", i)
		}
		l.Index = uint(i)
		logs = append(logs, l)
	}
	return logs, nil
}
