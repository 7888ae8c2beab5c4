package staking

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	ErrNoSuchDeposit = errors.New("deposit does not exist")
	ErrNotUnstaking  = errors.New("deposit is not unstaking")
)

const defaultPollInterval = time.Second

func NewClient(ledger *Ledger) *Client {
	return &Client{
		ledger:       ledger,
		pollInterval: defaultPollInterval,
	}
}

// Client submits calls to a Ledger one at a time, on behalf of key holders.
// It is safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	ledger *Ledger

	pollInterval time.Duration
}

// WithPollInterval sets how often WaitRedeemable checks the deposit.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	c.pollInterval = d
	return c
}

func (c *Client) Ledger() *Ledger {
	return c.ledger
}

func (c *Client) Stake(ctx context.Context, key *ecdsa.PrivateKey, amount *uint256.Int) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Stake(crypto.PubkeyToAddress(key.PublicKey), amount)
}

func (c *Client) Unstake(ctx context.Context, key *ecdsa.PrivateKey, id uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Unstake(crypto.PubkeyToAddress(key.PublicKey), id)
}

func (c *Client) Redeem(ctx context.Context, key *ecdsa.PrivateKey, id uint64) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Redeem(crypto.PubkeyToAddress(key.PublicKey), id)
}

func (c *Client) GetDeposit(ctx context.Context, id uint64) (Deposit, error) {
	if err := ctx.Err(); err != nil {
		return Deposit{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Deposit(id)
}

// DepositsCount returns how many deposits were ever created, redeemed ones included.
func (c *Client) DepositsCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.LastID()
}

func (c *Client) DepositIterator(ctx context.Context) (*DepositIterator, error) {
	count, err := c.DepositsCount(ctx)
	if err != nil {
		return nil, err
	}
	return newDepositIterator(c, 1, count+1), nil
}

// GetAllDeposits returns every deposit that has not been redeemed.
func (c *Client) GetAllDeposits(ctx context.Context) ([]Deposit, error) {
	return c.filterDeposits(ctx, func(Deposit) bool { return true })
}

func (c *Client) GetOwnerDeposits(ctx context.Context, owner common.Address) ([]Deposit, error) {
	return c.filterDeposits(ctx, func(d Deposit) bool { return d.Owner == owner })
}

func (c *Client) GetRedeemableDeposits(ctx context.Context, owner common.Address) ([]Deposit, error) {
	return c.filterDeposits(ctx, func(d Deposit) bool {
		return d.Owner == owner && d.State == StateRedeemable
	})
}

func (c *Client) filterDeposits(ctx context.Context, keep func(Deposit) bool) (deps []Deposit, err error) {
	iter, err := c.DepositIterator(ctx)
	if err != nil {
		return nil, err
	}
	for iter.Next(ctx) {
		if dep := iter.Current(); keep(dep) {
			deps = append(deps, dep)
		}
	}
	if iter.Error() != nil {
		return nil, iter.Error()
	}
	return deps, nil
}

// WaitRedeemable blocks until the unstaked deposit id can be redeemed.
// It fails right away if the deposit does not exist or was never unstaked.
func (c *Client) WaitRedeemable(ctx context.Context, id uint64) (Deposit, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		dep, err := c.GetDeposit(ctx, id)
		if err != nil {
			return Deposit{}, err
		}
		switch dep.State {
		case StateAbsent:
			return Deposit{}, ErrNoSuchDeposit
		case StateActive:
			return Deposit{}, ErrNotUnstaking
		case StateRedeemable:
			return dep, nil
		}
		select {
		case <-ctx.Done():
			return Deposit{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// History returns every notification committed by the ledger, decoded.
func (c *Client) History(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	logs, err := c.ledger.Logs()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		ev, err := ParseLog(l)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func newDepositIterator(client *Client, start, end uint64) *DepositIterator {
	return &DepositIterator{
		client: client,
		next:   start,
		end:    end,
	}
}

// DepositIterator walks deposits by id, skipping redeemed ones.
type DepositIterator struct {
	client *Client

	next, end uint64

	deposit Deposit
	err     error
}

func (iter *DepositIterator) Next(ctx context.Context) bool {
	for iter.next < iter.end && iter.err == nil {
		dep, err := iter.client.GetDeposit(ctx, iter.next)
		iter.err = err
		if err != nil {
			return false
		}
		iter.next++
		if dep.State == StateAbsent {
			continue
		}
		iter.deposit = dep
		return true
	}
	return false
}

func (iter *DepositIterator) Current() Deposit {
	return iter.deposit
}

func (iter *DepositIterator) Error() error {
	return iter.err
}
