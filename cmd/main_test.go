package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GridexProtocol/staking"
)

func TestLockDurationIsNotConfigurable(t *testing.T) {
	t.Setenv("STAKING_DATADIR", filepath.Join(t.TempDir(), "data"))
	t.Setenv("STAKING_LOCKDURATION", "-1s")

	var c config
	require.NoError(t, envconfig.Process("staking", &c))

	a, err := openApp(c)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, staking.DefaultLockDuration, a.ledger.LockDuration())
}

func TestAppReopen(t *testing.T) {
	t.Setenv("STAKING_DATADIR", filepath.Join(t.TempDir(), "data"))
	var c config
	require.NoError(t, envconfig.Process("staking", &c))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	amount, err := parseAmount("2.5")
	require.NoError(t, err)

	a, err := openApp(c)
	require.NoError(t, err)
	require.NoError(t, a.token.Mint(owner, amount))
	require.NoError(t, a.token.Approve(owner, a.ledger.Address(), amount))
	id, err := a.client.Stake(context.Background(), key, amount)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = openApp(c)
	require.NoError(t, err)
	defer a.Close()
	dep, err := a.client.GetDeposit(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, owner, dep.Owner)
	assert.Equal(t, "2.5", formatAmount(dep.Amount))
}

func TestParseAmount(t *testing.T) {
	v, err := parseAmount("1")
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1e18), v)

	v, err = parseAmount("0.000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1), v)

	for _, bad := range []string{"", "abc", "-1", "0.0000000000000000001", "1e80"} {
		_, err := parseAmount(bad)
		assert.Error(t, err, bad)
	}
}
