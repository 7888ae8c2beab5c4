package staking

import (
	"time"

	"github.com/pkg/errors"
)

// DefaultLockDuration is the cooling-off period between unstake and redeem, in seconds.
const DefaultLockDuration = uint64(24 * time.Hour / time.Second)

type Config struct {
	// LockDuration is the cooling-off period in seconds.
	LockDuration uint64
}

func DefaultConfig() Config {
	return Config{
		LockDuration: DefaultLockDuration,
	}
}

func (cfg Config) Validate() error {
	if cfg.LockDuration == 0 {
		return errors.New("lock duration must be positive")
	}
	return nil
}

// Clock returns the current time in unix seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}
