package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/GridexProtocol/staking"
	"github.com/GridexProtocol/staking/storage"
	"github.com/GridexProtocol/staking/token"
)

const decimals = 18

type config struct {
	DataDir   string         `default:"staking-data"`
	CacheSize int            `default:"1024"`
	Contract  common.Address `default:"0x000000000000000000000000005374616b696e67"`

	Key      string
	Password string
	Address  common.Address

	Command string
	Amount  string
	ID      uint64
	Dev     bool
	Verbose bool
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func parseAmount(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "can't parse amount %q", s)
	}
	d = d.Shift(decimals)
	if !d.IsInteger() || d.IsNegative() {
		return nil, errors.Errorf("amount %s has more than %d decimals or is negative", s, decimals)
	}
	v, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return nil, errors.Errorf("amount %s is too large", s)
	}
	return v, nil
}

func formatAmount(v *uint256.Int) string {
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

func loadKey(c config) *ecdsa.PrivateKey {
	if c.Key == "" {
		panic("STAKING_KEY is required for " + c.Command)
	}
	keyjson, err := os.ReadFile(c.Key)
	must(err)
	key, err := keystore.DecryptKey(keyjson, c.Password)
	must(err)
	return key.PrivateKey
}

func setupLogging(verbose bool) {
	level := log.LevelInfo
	if verbose {
		level = log.LevelDebug
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
	staking.SetLogger(log.New("pkg", "staking"))
	storage.SetLogger(log.New("pkg", "storage"))
	token.SetLogger(log.New("pkg", "token"))
}

type app struct {
	db     *storage.LevelDB
	token  *token.Ledger
	ledger *staking.Ledger
	client *staking.Client
}

// openApp opens the ledger stored under c.DataDir. The lock duration is always
// the default one; it is not an operator setting.
func openApp(c config) (*app, error) {
	db, err := storage.OpenLevelDB(c.DataDir, storage.Options{})
	if err != nil {
		return nil, err
	}
	cached, err := storage.NewCachedStore(db, c.CacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	st := storage.NewState(cached)
	tkn := token.New(st)

	ledger, err := staking.New(c.Contract, tkn, st, staking.WithConfig(staking.DefaultConfig()))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{
		db:     db,
		token:  tkn,
		ledger: ledger,
		client: staking.NewClient(ledger),
	}, nil
}

func (a *app) Close() error {
	a.ledger.Close()
	return a.db.Close()
}

func main() {
	var c config
	must(envconfig.Process("staking", &c))
	setupLogging(c.Verbose)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	a, err := openApp(c)
	must(err)
	defer a.Close()
	var (
		tkn    = a.token
		ledger = a.ledger
		client = a.client
	)

	switch c.Command {
	case "stake":
		amount, err := parseAmount(c.Amount)
		must(err)
		id, err := client.Stake(ctx, loadKey(c), amount)
		must(err)
		fmt.Printf("staked %s, deposit %d\n", formatAmount(amount), id)
	case "unstake":
		redeemable, err := client.Unstake(ctx, loadKey(c), c.ID)
		must(err)
		fmt.Printf("unstaked deposit %d, redeemable at %v\n", c.ID, time.Unix(int64(redeemable), 0).UTC())
	case "redeem":
		amount, err := client.Redeem(ctx, loadKey(c), c.ID)
		must(err)
		fmt.Printf("redeemed deposit %d, %s returned\n", c.ID, formatAmount(amount))
	case "show":
		var deposits []staking.Deposit
		if c.Address != (common.Address{}) {
			deposits, err = client.GetOwnerDeposits(ctx, c.Address)
		} else {
			deposits, err = client.GetAllDeposits(ctx)
		}
		must(err)
		for _, dep := range deposits {
			fmt.Printf("%d\t%s\t%s\t%v\n", dep.ID, dep.Owner.Hex(), formatAmount(dep.Amount), dep.State)
		}
		total, err := ledger.TotalStaked()
		must(err)
		active, err := ledger.ActiveDeposits()
		must(err)
		fmt.Printf("total staked %s in %d deposits\n", formatAmount(total), active)
	case "history":
		events, err := client.History(ctx)
		must(err)
		for _, ev := range events {
			switch ev := ev.(type) {
			case *staking.StakeEvent:
				fmt.Printf("Stake\t%d\t%s\t%s\n", ev.ID, ev.Owner.Hex(), formatAmount(ev.Amount))
			case *staking.UnstakeEvent:
				fmt.Printf("Unstake\t%d\t%d\n", ev.ID, ev.RedeemableTime)
			case *staking.RedeemEvent:
				fmt.Printf("Redeem\t%d\n", ev.ID)
			}
		}
	case "approve":
		amount, err := parseAmount(c.Amount)
		must(err)
		key := loadKey(c)
		must(tkn.Approve(crypto.PubkeyToAddress(key.PublicKey), ledger.Address(), amount))
		fmt.Printf("approved %s for %s\n", formatAmount(amount), ledger.Address().Hex())
	case "mint":
		if !c.Dev {
			panic("mint is only available with STAKING_DEV=true")
		}
		amount, err := parseAmount(c.Amount)
		must(err)
		to := c.Address
		if to == (common.Address{}) {
			to = crypto.PubkeyToAddress(loadKey(c).PublicKey)
		}
		must(tkn.Mint(to, amount))
		fmt.Printf("minted %s to %s\n", formatAmount(amount), to.Hex())
	case "balance":
		owner := c.Address
		if owner == (common.Address{}) {
			owner = crypto.PubkeyToAddress(loadKey(c).PublicKey)
		}
		balance, err := tkn.BalanceOf(owner)
		must(err)
		allowance, err := tkn.Allowance(owner, ledger.Address())
		must(err)
		fmt.Printf("balance %s, allowance %s\n", formatAmount(balance), formatAmount(allowance))
	default:
		panic(fmt.Sprintf("unknown command %q", c.Command))
	}
}
