// Package token implements a fungible token ledger on top of the journaled
// storage state. It is the custody collaborator used by the staking ledger.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/GridexProtocol/staking/storage"
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrZeroAddress           = errors.New("ERC20: zero address")
	ErrSupplyOverflow        = errors.New("ERC20: total supply overflow")
	ErrNilAmount             = errors.New("ERC20: nil amount")
)

var logger = log.New("pkg", "token")

// SetLogger replaces the package logger.
func SetLogger(l log.Logger) {
	logger = l
}

var (
	keySupply       = []byte("token/supply")
	prefixBalance   = []byte("token/b/")
	prefixAllowance = []byte("token/a/")

	maxAllowance = new(uint256.Int).SetAllOne()
)

func balanceKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixBalance...), addr.Bytes()...)
}

func allowanceKey(owner, spender common.Address) []byte {
	key := append(append([]byte{}, prefixAllowance...), owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

// Hook is invoked for every address taking part in a transfer once balances have
// moved, the sender first. A non-nil error reverts the whole transfer.
type Hook func(from, to common.Address, amount *uint256.Int) error

// Ledger keeps balances, allowances and total supply of a single token.
// Like storage.State it is not safe for concurrent use.
type Ledger struct {
	state *storage.State
	hooks map[common.Address]Hook
}

// New creates a token ledger storing into st.
func New(st *storage.State) *Ledger {
	return &Ledger{
		state: st,
		hooks: make(map[common.Address]Hook),
	}
}

// State returns the journaled state the ledger writes through.
func (l *Ledger) State() *storage.State {
	return l.state
}

// SetHook registers hook for addr. A nil hook removes it.
func (l *Ledger) SetHook(addr common.Address, hook Hook) {
	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	raw, err := l.state.Get(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (l *Ledger) store(key []byte, v *uint256.Int) {
	if v.IsZero() {
		l.state.Delete(key)
		return
	}
	l.state.Put(key, v.Bytes())
}

// BalanceOf returns the balance of owner.
func (l *Ledger) BalanceOf(owner common.Address) (*uint256.Int, error) {
	return l.load(balanceKey(owner))
}

// Allowance returns how much spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender common.Address) (*uint256.Int, error) {
	return l.load(allowanceKey(owner, spender))
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return l.load(keySupply)
}

// Mint creates amount new tokens owned by to.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	return l.state.Exec(func() error {
		supply, err := l.TotalSupply()
		if err != nil {
			return err
		}
		if _, overflow := supply.AddOverflow(supply, amount); overflow {
			return ErrSupplyOverflow
		}
		bal, err := l.BalanceOf(to)
		if err != nil {
			return err
		}
		// bounded by supply
		bal.Add(bal, amount)

		l.store(keySupply, supply)
		l.store(balanceKey(to), bal)
		logger.Debug("minted", "to", to, "amount", amount)
		return nil
	})
}

// Approve sets the allowance of spender over owner's tokens to amount.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	return l.state.Exec(func() error {
		l.store(allowanceKey(owner, spender), amount)
		logger.Debug("approved", "owner", owner, "spender", spender, "amount", amount)
		return nil
	})
}

// Transfer moves amount from the caller's balance to to.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	return l.state.Exec(func() error {
		return l.transfer(from, to, amount)
	})
}

// TransferFrom moves amount from from to to, spending spender's allowance.
// An allowance of 2^256-1 is never decreased.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	return l.state.Exec(func() error {
		key := allowanceKey(from, spender)
		allowance, err := l.load(key)
		if err != nil {
			return err
		}
		if allowance.Lt(amount) {
			logger.Debug("allowance too low", "owner", from, "spender", spender, "allowance", allowance, "amount", amount)
			return ErrInsufficientAllowance
		}
		if !allowance.Eq(maxAllowance) {
			l.store(key, new(uint256.Int).Sub(allowance, amount))
		}
		return l.transfer(from, to, amount)
	})
}

func (l *Ledger) transfer(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}

	fromBal, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		logger.Debug("balance too low", "from", from, "balance", fromBal, "amount", amount)
		return ErrInsufficientBalance
	}
	l.store(balanceKey(from), fromBal.Sub(fromBal, amount))

	toBal, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	// balances are bounded by total supply
	l.store(balanceKey(to), toBal.Add(toBal, amount))

	if hook, ok := l.hooks[from]; ok {
		if err := hook(from, to, amount); err != nil {
			return err
		}
	}
	if hook, ok := l.hooks[to]; ok && to != from {
		if err := hook(from, to, amount); err != nil {
			return err
		}
	}
	logger.Trace("transferred", "from", from, "to", to, "amount", amount)
	return nil
}
