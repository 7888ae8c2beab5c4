package testtools

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/GridexProtocol/staking/token"
)

// NewFaucet creates faucet object, requires token ledger and private key of a funded account.
func NewFaucet(tkn *token.Ledger, pkey *ecdsa.PrivateKey) Faucet {
	return Faucet{
		pkey:    pkey,
		address: crypto.PubkeyToAddress(pkey.PublicKey),
		token:   tkn,
	}
}

// Faucet provides API to request funds.
type Faucet struct {
	pkey    *ecdsa.PrivateKey
	address common.Address
	token   *token.Ledger
}

func (f Faucet) Address() common.Address {
	return f.address
}

// Request funds for an address.
func (f Faucet) Request(ctx context.Context, to common.Address, funds *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.token.Transfer(f.address, to, funds)
}

// RequestApproved funds the account of key and lets spender move exactly funds out of it.
func (f Faucet) RequestApproved(ctx context.Context, key *ecdsa.PrivateKey, spender common.Address, funds *uint256.Int) error {
	to := crypto.PubkeyToAddress(key.PublicKey)
	if err := f.Request(ctx, to, funds); err != nil {
		return err
	}
	return f.token.Approve(to, spender, funds)
}
