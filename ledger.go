package staking

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GridexProtocol/staking/storage"
)

var logger = log.New("pkg", "staking")

// SetLogger replaces the package logger.
func SetLogger(l log.Logger) {
	logger = l
}

const (
	opStake   = "stake"
	opUnstake = "unstake"
	opRedeem  = "redeem"
)

// Token is the fungible token ledger the staking ledger keeps custody in.
// The first address of every mutating call is the account acting on the token.
//
// A token must write through the same journaled state as the ledger, so that a
// transfer is undone together with the operation that made it.
type Token interface {
	State() *storage.State

	BalanceOf(owner common.Address) (*uint256.Int, error)
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

type Option func(*Ledger)

func WithConfig(cfg Config) Option {
	return func(l *Ledger) { l.config = cfg }
}

func WithClock(clock Clock) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithRegisterer registers the ledger metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Ledger) { l.registerer = reg }
}

// Ledger holds time-locked token deposits in custody.
//
// Every operation either completes or leaves no trace: writes go through the
// journaled state and are dropped when any check or the token transfer fails.
// Internal effects are always finalized before the token is called, and a busy
// flag rejects calls made back into the ledger while that call is in flight.
//
// Ledger is not safe for concurrent use, see Client.
type Ledger struct {
	addr  common.Address
	token Token
	state *storage.State
	repo  *repository

	config     Config
	clock      Clock
	registerer prometheus.Registerer
	metrics    *metrics

	publisher *publisher
	entered   bool
}

// New creates a ledger with custody account addr over token, storing its
// records into st. The token must share st.
func New(addr common.Address, token Token, st *storage.State, opts ...Option) (*Ledger, error) {
	if token == nil {
		return nil, errors.New("token ledger is required")
	}
	if st == nil || token.State() != st {
		return nil, errors.New("token ledger must write through the ledger state")
	}
	if addr == (common.Address{}) {
		return nil, errors.New("ledger address must not be zero")
	}
	l := &Ledger{
		addr:   addr,
		token:  token,
		state:  st,
		repo:   &repository{state: st},
		config: DefaultConfig(),
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.config.Validate(); err != nil {
		return nil, err
	}
	m, err := newMetrics(l.registerer)
	if err != nil {
		return nil, err
	}
	l.metrics = m
	if err := l.refreshMetrics(); err != nil {
		return nil, err
	}
	l.publisher = newPublisher()
	return l, nil
}

//
// Getters - no state change
//

// Address returns the custody account of the ledger.
func (l *Ledger) Address() common.Address {
	return l.addr
}

func (l *Ledger) LockDuration() uint64 {
	return l.config.LockDuration
}

func (l *Ledger) Now() uint64 {
	return l.clock.Now()
}

// GetRecord returns the record of a deposit, or the zero record when it does
// not exist or was redeemed.
func (l *Ledger) GetRecord(id uint64) (Record, error) {
	b, err := l.repo.deposit(id)
	if err != nil {
		return Record{}, err
	}
	if b == nil {
		return Record{Amount: new(uint256.Int)}, nil
	}
	return b.record(), nil
}

// Deposit returns the record of a deposit together with its current state.
func (l *Ledger) Deposit(id uint64) (Deposit, error) {
	rec, err := l.GetRecord(id)
	if err != nil {
		return Deposit{}, err
	}
	return Deposit{ID: id, Record: rec, State: rec.StateAt(l.clock.Now())}, nil
}

// LastID returns the most recently allocated deposit id, 0 if none.
func (l *Ledger) LastID() (uint64, error) {
	return l.repo.counter()
}

// TotalStaked returns the sum of all deposits not yet redeemed.
func (l *Ledger) TotalStaked() (*uint256.Int, error) {
	return l.repo.total()
}

// ActiveDeposits returns the number of deposits not yet redeemed.
func (l *Ledger) ActiveDeposits() (uint64, error) {
	return l.repo.activeDeposits()
}

// Logs returns every notification committed so far, in emission order.
func (l *Ledger) Logs() ([]*types.Log, error) {
	return l.repo.logs()
}

// SubscribeLogs delivers notifications to ch after their operation commits.
//
// Delivery happens on a separate goroutine, in commit order. Operations never
// wait for subscribers: a subscriber that stops reading only holds back later
// deliveries, which stay queued in memory until it reads or unsubscribes.
// Notifications committed before the call are not guaranteed to arrive, use
// Logs for those.
func (l *Ledger) SubscribeLogs(ch chan<- *types.Log) event.Subscription {
	return l.publisher.subscribe(ch)
}

// Close stops notification delivery. The ledger stays usable for reads and
// operations, but subscribers receive nothing further.
func (l *Ledger) Close() {
	l.publisher.close()
}

//
// Operations
//

// Stake moves amount from caller into custody and returns the id of the new deposit.
func (l *Ledger) Stake(caller common.Address, amount *uint256.Int) (uint64, error) {
	logger.Debug("staking", "owner", caller, "amount", amount)

	var id uint64
	err := l.execute(opStake, func(emit func(Event)) error {
		if amount == nil || amount.IsZero() {
			return ErrInvalidAmount
		}

		var err error
		if id, err = l.repo.nextID(); err != nil {
			return err
		}
		if err := l.repo.putDeposit(id, &body{
			Phase:  phaseActive,
			Owner:  caller,
			Amount: amount.Clone(),
		}); err != nil {
			return err
		}
		if err := l.repo.addDeposit(amount); err != nil {
			return err
		}
		emit(&StakeEvent{ID: id, Owner: caller, Amount: amount.Clone()})

		// the record is final before the token is called
		if err := l.token.TransferFrom(l.addr, caller, l.addr, amount); err != nil {
			logger.Info("stake transfer failed", "owner", caller, "amount", amount, "err", err)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("staked", "id", id, "owner", caller, "amount", amount)
	return id, nil
}

// Unstake starts the cooling-off period of a deposit and returns the time from
// which it can be redeemed.
func (l *Ledger) Unstake(caller common.Address, id uint64) (uint64, error) {
	logger.Debug("unstaking", "id", id, "caller", caller)

	var redeemableTime uint64
	err := l.execute(opUnstake, func(emit func(Event)) error {
		b, err := l.ownedDeposit(caller, id)
		if err != nil {
			return err
		}
		if b.Phase != phaseActive || b.RedeemableTime != 0 {
			return ErrAlreadyUnstaked
		}

		now := l.clock.Now()
		if now > math.MaxUint64-l.config.LockDuration {
			return ErrTimeOverflow
		}
		redeemableTime = now + l.config.LockDuration

		b.Phase = phaseUnstaked
		b.RedeemableTime = redeemableTime
		if err := l.repo.putDeposit(id, b); err != nil {
			return err
		}
		emit(&UnstakeEvent{ID: id, RedeemableTime: redeemableTime})
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("unstaked", "id", id, "redeemableTime", redeemableTime)
	return redeemableTime, nil
}

// Redeem deletes an unstaked deposit whose cooling-off period has elapsed and
// pays its amount back to the owner.
func (l *Ledger) Redeem(caller common.Address, id uint64) (*uint256.Int, error) {
	logger.Debug("redeeming", "id", id, "caller", caller)

	var amount *uint256.Int
	err := l.execute(opRedeem, func(emit func(Event)) error {
		b, err := l.ownedDeposit(caller, id)
		if err != nil {
			return err
		}
		if b.Phase != phaseUnstaked || b.RedeemableTime == 0 {
			return ErrNotUnstaked
		}
		if l.clock.Now() < b.RedeemableTime {
			return ErrNotRedeemable
		}

		amount = b.Amount
		l.repo.deleteDeposit(id)
		if err := l.repo.removeDeposit(amount); err != nil {
			return err
		}
		emit(&RedeemEvent{ID: id})

		// the record is gone before the token is called
		if err := l.token.Transfer(l.addr, b.Owner, amount); err != nil {
			logger.Warn("redeem transfer failed", "id", id, "owner", b.Owner, "amount", amount, "err", err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("redeemed", "id", id, "owner", caller, "amount", amount)
	return amount, nil
}

// ownedDeposit loads a deposit on behalf of caller. Unknown, redeemed and
// foreign deposits are all rejected as ErrNotOwner.
func (l *Ledger) ownedDeposit(caller common.Address, id uint64) (*body, error) {
	b, err := l.repo.deposit(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		last, err := l.repo.counter()
		if err != nil {
			return nil, err
		}
		if id == 0 || id > last {
			return nil, ErrNotOwner.withReason(ReasonUnknownID)
		}
		return nil, ErrNotOwner.withReason(ReasonRedeemed)
	}
	if b.Owner != caller {
		return nil, ErrNotOwner.withReason(ReasonWrongOwner)
	}
	return b, nil
}

// execute runs fn as a single atomic operation. Events emitted by fn are stored
// with the operation and published only once it has committed.
func (l *Ledger) execute(op string, fn func(emit func(Event)) error) error {
	if l.entered {
		logger.Warn("rejected reentrant call", "op", op)
		l.metrics.observe(op, ErrReentrant)
		return ErrReentrant
	}
	l.entered = true
	defer func() { l.entered = false }()

	var logs []*types.Log
	err := l.state.Exec(func() error {
		var events []Event
		if err := fn(func(ev Event) { events = append(events, ev) }); err != nil {
			return err
		}
		for _, ev := range events {
			lg, err := ev.toLog(l.addr)
			if err != nil {
				return err
			}
			if err := l.repo.appendLog(lg); err != nil {
				return err
			}
			logs = append(logs, lg)
		}
		return nil
	})
	l.metrics.observe(op, err)
	if err != nil {
		if reason := RevertReason(err); reason != "" {
			logger.Debug("operation reverted", "op", op, "err", err, "reason", reason)
		}
		return err
	}

	if err := l.refreshMetrics(); err != nil {
		logger.Warn("failed to refresh metrics", "err", err)
	}
	l.publisher.publish(logs)
	return nil
}

func (l *Ledger) refreshMetrics() error {
	total, err := l.repo.total()
	if err != nil {
		return err
	}
	active, err := l.repo.activeDeposits()
	if err != nil {
		return err
	}
	l.metrics.setTotals(total, active)
	return nil
}
