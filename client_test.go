package staking_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"github.com/GridexProtocol/staking"
	"github.com/GridexProtocol/staking/testtools"
)

type NodeSuite struct {
	suite.Suite

	FundedKeys []*ecdsa.PrivateKey
	Node       *testtools.Node
}

func (s *NodeSuite) SetupTest() {
	s.Node = testtools.DefaultNode()
	s.Require().NoError(s.Node.Start())

	faucet := s.Node.FaucetService()
	for i := 0; i < 5; i++ {
		pkey := testtools.GenerateKey()
		s.Require().NoError(faucet.RequestApproved(context.Background(), pkey, s.Node.Ledger().Address(),
			new(uint256.Int).Mul(uint256.NewInt(1000), uint256.NewInt(1e18))))
		s.FundedKeys = append(s.FundedKeys, pkey)
	}
}

func (s *NodeSuite) TearDownTest() {
	s.Require().NoError(s.Node.Stop())
	s.FundedKeys = nil
}

func TestClient(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

type ClientSuite struct {
	NodeSuite

	ctx    context.Context
	cancel func()

	StakingClient *staking.Client
}

func (s *ClientSuite) SetupTest() {
	s.NodeSuite.SetupTest()
	s.StakingClient = s.Node.Client().WithPollInterval(10 * time.Millisecond)
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

func (s *ClientSuite) TearDownTest() {
	s.cancel()
	s.NodeSuite.TearDownTest()
}

func (s *ClientSuite) TestGetDeposits() {
	for _, pkey := range s.FundedKeys {
		_, err := s.StakingClient.Stake(s.ctx, pkey, uint256.NewInt(10))
		s.Require().NoError(err)
	}

	deposits, err := s.StakingClient.GetAllDeposits(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(deposits, len(s.FundedKeys))

	for i := range deposits {
		s.Require().Equal(uint64(i+1), deposits[i].ID)
		s.Require().Equal(crypto.PubkeyToAddress(s.FundedKeys[i].PublicKey), deposits[i].Owner)
		s.Require().Equal(staking.StateActive, deposits[i].State)
	}
}

func (s *ClientSuite) TestIteratorSkipsRedeemed() {
	pkey := s.FundedKeys[0]
	for i := 0; i < 3; i++ {
		_, err := s.StakingClient.Stake(s.ctx, pkey, uint256.NewInt(100))
		s.Require().NoError(err)
	}
	_, err := s.StakingClient.Unstake(s.ctx, pkey, 2)
	s.Require().NoError(err)
	s.Node.Clock().Advance(24 * time.Hour)
	_, err = s.StakingClient.Redeem(s.ctx, pkey, 2)
	s.Require().NoError(err)

	count, err := s.StakingClient.DepositsCount(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(uint64(3), count)

	iter, err := s.StakingClient.DepositIterator(s.ctx)
	s.Require().NoError(err)
	var ids []uint64
	for iter.Next(s.ctx) {
		ids = append(ids, iter.Current().ID)
	}
	s.Require().NoError(iter.Error())
	s.Require().Equal([]uint64{1, 3}, ids)
}

func (s *ClientSuite) TestOwnerAndRedeemableDeposits() {
	owner, other := s.FundedKeys[0], s.FundedKeys[1]
	addr := crypto.PubkeyToAddress(owner.PublicKey)

	first, err := s.StakingClient.Stake(s.ctx, owner, uint256.NewInt(100))
	s.Require().NoError(err)
	_, err = s.StakingClient.Stake(s.ctx, other, uint256.NewInt(100))
	s.Require().NoError(err)
	_, err = s.StakingClient.Stake(s.ctx, owner, uint256.NewInt(200))
	s.Require().NoError(err)

	deposits, err := s.StakingClient.GetOwnerDeposits(s.ctx, addr)
	s.Require().NoError(err)
	s.Require().Len(deposits, 2)

	_, err = s.StakingClient.Unstake(s.ctx, owner, first)
	s.Require().NoError(err)

	redeemable, err := s.StakingClient.GetRedeemableDeposits(s.ctx, addr)
	s.Require().NoError(err)
	s.Require().Empty(redeemable)

	s.Node.Clock().Advance(24 * time.Hour)
	redeemable, err = s.StakingClient.GetRedeemableDeposits(s.ctx, addr)
	s.Require().NoError(err)
	s.Require().Len(redeemable, 1)
	s.Require().Equal(first, redeemable[0].ID)
}

func (s *ClientSuite) TestDepositWithdraw() {
	pkey := s.FundedKeys[0]
	addr := crypto.PubkeyToAddress(pkey.PublicKey)
	before, err := s.Node.Token().BalanceOf(addr)
	s.Require().NoError(err)

	amount := uint256.NewInt(1e15)
	id, err := s.StakingClient.Stake(s.ctx, pkey, amount)
	s.Require().NoError(err)

	redeemable, err := s.StakingClient.Unstake(s.ctx, pkey, id)
	s.Require().NoError(err)
	s.Require().NotZero(redeemable)

	_, err = s.StakingClient.Redeem(s.ctx, pkey, id)
	s.Require().True(errors.Is(err, staking.ErrNotRedeemable))

	s.Node.Clock().Advance(24 * time.Hour)
	redeemed, err := s.StakingClient.Redeem(s.ctx, pkey, id)
	s.Require().NoError(err)
	s.Require().Equal(amount, redeemed)

	after, err := s.Node.Token().BalanceOf(addr)
	s.Require().NoError(err)
	s.Require().Equal(before, after)

	_, err = s.StakingClient.Redeem(s.ctx, pkey, id)
	s.Require().True(errors.Is(err, staking.ErrNotOwner))
}

func (s *ClientSuite) TestWaitRedeemableTimeout() {
	id, err := s.StakingClient.Stake(s.ctx, s.FundedKeys[0], uint256.NewInt(10))
	s.Require().NoError(err)
	_, err = s.StakingClient.Unstake(s.ctx, s.FundedKeys[0], id)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = s.StakingClient.WaitRedeemable(ctx, id)
	s.Require().True(errors.Is(err, context.DeadlineExceeded))
}

func (s *ClientSuite) TestWaitRedeemableSuccess() {
	pkey := s.FundedKeys[0]
	id, err := s.StakingClient.Stake(s.ctx, pkey, uint256.NewInt(10))
	s.Require().NoError(err)
	_, err = s.StakingClient.Unstake(s.ctx, pkey, id)
	s.Require().NoError(err)

	type result struct {
		dep staking.Deposit
		err error
	}
	var (
		results     = make(chan result, 1)
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	)
	defer cancel()
	go func() {
		dep, err := s.StakingClient.WaitRedeemable(ctx, id)
		results <- result{dep, err}
	}()

	time.Sleep(50 * time.Millisecond)
	s.Node.Clock().Advance(24 * time.Hour)

	select {
	case <-ctx.Done():
		s.Require().FailNow(ctx.Err().Error())
	case res := <-results:
		s.Require().NoError(res.err)
		s.Require().Equal(id, res.dep.ID)
		s.Require().Equal(staking.StateRedeemable, res.dep.State)
	}
}

func (s *ClientSuite) TestWaitRedeemableRejects() {
	_, err := s.StakingClient.WaitRedeemable(s.ctx, 42)
	s.Require().True(errors.Is(err, staking.ErrNoSuchDeposit))

	id, err := s.StakingClient.Stake(s.ctx, s.FundedKeys[0], uint256.NewInt(10))
	s.Require().NoError(err)
	_, err = s.StakingClient.WaitRedeemable(s.ctx, id)
	s.Require().True(errors.Is(err, staking.ErrNotUnstaking))
}

func (s *ClientSuite) TestHistory() {
	pkey := s.FundedKeys[0]
	addr := crypto.PubkeyToAddress(pkey.PublicKey)
	amount := uint256.NewInt(77)

	id, err := s.StakingClient.Stake(s.ctx, pkey, amount)
	s.Require().NoError(err)
	redeemable, err := s.StakingClient.Unstake(s.ctx, pkey, id)
	s.Require().NoError(err)
	s.Node.Clock().Advance(24 * time.Hour)
	_, err = s.StakingClient.Redeem(s.ctx, pkey, id)
	s.Require().NoError(err)

	// rejected calls leave nothing in the history
	_, err = s.StakingClient.Redeem(s.ctx, pkey, id)
	s.Require().Error(err)

	history, err := s.StakingClient.History(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal([]staking.Event{
		&staking.StakeEvent{ID: id, Owner: addr, Amount: amount},
		&staking.UnstakeEvent{ID: id, RedeemableTime: redeemable},
		&staking.RedeemEvent{ID: id},
	}, history)
}

func (s *ClientSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.StakingClient.Stake(ctx, s.FundedKeys[0], uint256.NewInt(10))
	s.Require().True(errors.Is(err, context.Canceled))

	count, err := s.StakingClient.DepositsCount(s.ctx)
	s.Require().NoError(err)
	s.Require().Zero(count)
}

func (s *ClientSuite) TestStalledSubscriberDoesNotBlock() {
	stalled := make(chan *types.Log)
	sub := s.Node.Ledger().SubscribeLogs(stalled)
	defer sub.Unsubscribe()

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 3; i++ {
			if _, err := s.StakingClient.Stake(s.ctx, s.FundedKeys[i], uint256.NewInt(10)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		s.Require().NoError(err)
	case <-time.After(time.Second):
		s.Require().FailNow("stake waited for a subscriber that does not read")
	}

	// queued logs arrive in commit order once the subscriber reads
	for i := 0; i < 3; i++ {
		select {
		case l := <-stalled:
			ev, err := staking.ParseLog(l)
			s.Require().NoError(err)
			s.Require().Equal(uint64(i+1), ev.DepositID())
		case <-time.After(time.Second):
			s.Require().FailNow("log not delivered")
		}
	}
}
