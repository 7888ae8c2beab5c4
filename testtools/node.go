package testtools

import (
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/GridexProtocol/staking"
	"github.com/GridexProtocol/staking/storage"
	"github.com/GridexProtocol/staking/token"
)

const (
	// GenesisTime is the clock reading when a node starts.
	GenesisTime uint64 = 1_700_000_000
	// CacheSize of the LRU in front of the in-memory store.
	CacheSize = 256
)

var (
	// LedgerAddress is the custody account of the staking ledger.
	LedgerAddress = common.HexToAddress("0x000000000000000000000000005374616b696e67")
	// FaucetSupply is minted to the faucet when the node starts, 10^9 tokens of 18 decimals.
	FaucetSupply = new(uint256.Int).Mul(uint256.NewInt(1e9), uint256.NewInt(1e18))
)

func DefaultNode() *Node {
	return new(Node).GenFaucet().WithDefaultConfig()
}

// Node wires a token ledger and a staking ledger over an in-memory store, with a
// manual clock and a funded faucet key.
type Node struct {
	config staking.Config
	pkey   *ecdsa.PrivateKey
	clock  *Clock

	mu     sync.Mutex
	db     *storage.LevelDB
	token  *token.Ledger
	ledger *staking.Ledger
	client *staking.Client
}

func (n *Node) GenFaucet() *Node {
	return n.WithFaucet(GenerateKey())
}

func (n *Node) WithFaucet(pkey *ecdsa.PrivateKey) *Node {
	n.pkey = pkey
	return n
}

func (n *Node) WithConfig(config staking.Config) *Node {
	n.config = config
	return n
}

func (n *Node) WithDefaultConfig() *Node {
	n.config = staking.DefaultConfig()
	return n
}

// Start opens the store, mints the faucet supply and creates the ledgers.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.db != nil {
		return errors.New("node already running")
	}
	db, err := storage.NewMemLevelDB()
	if err != nil {
		return err
	}
	cached, err := storage.NewCachedStore(db, CacheSize)
	if err != nil {
		db.Close()
		return err
	}
	st := storage.NewState(cached)

	tkn := token.New(st)
	if err := tkn.Mint(crypto.PubkeyToAddress(n.pkey.PublicKey), FaucetSupply); err != nil {
		db.Close()
		return err
	}

	n.clock = NewClock(GenesisTime)
	ledger, err := staking.New(LedgerAddress, tkn, st,
		staking.WithConfig(n.config),
		staking.WithClock(n.clock),
	)
	if err != nil {
		db.Close()
		return err
	}

	n.db = db
	n.token = tkn
	n.ledger = ledger
	n.client = staking.NewClient(ledger)
	return nil
}

func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.db == nil {
		return errors.New("node not running")
	}
	n.ledger.Close()
	err := n.db.Close()
	n.db = nil
	return err
}

func (n *Node) Clock() *Clock {
	return n.clock
}

func (n *Node) Token() *token.Ledger {
	return n.token
}

func (n *Node) Ledger() *staking.Ledger {
	return n.ledger
}

func (n *Node) Client() *staking.Client {
	return n.client
}

func (n *Node) FaucetService() Faucet {
	return NewFaucet(n.token, n.pkey)
}

// GenerateKey returns a fresh secp256k1 key, panicking on failure.
func GenerateKey() *ecdsa.PrivateKey {
	pkey, err := crypto.GenerateKey()
	if err != nil {
		panic(err.Error())
	}
	return pkey
}
