package staking

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "staking"

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRevert  Outcome = "revert"
	OutcomeError   Outcome = "error"
)

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsRevert(err):
		return OutcomeRevert
	default:
		return OutcomeError
	}
}

type metrics struct {
	operations     *prometheus.CounterVec
	totalStaked    prometheus.Gauge
	activeDeposits prometheus.Gauge
}

// newMetrics creates the ledger collectors and registers them with reg, if any.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_staked",
			Help:      "Token units held in custody, in base units.",
		}),
		activeDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_deposits",
			Help:      "Deposits not yet redeemed.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.operations, m.totalStaked, m.activeDeposits} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	return m, nil
}

func (m *metrics) observe(op string, err error) {
	m.operations.WithLabelValues(op, string(outcomeOf(err))).Inc()
}

func (m *metrics) setTotals(total *uint256.Int, active uint64) {
	f, _ := new(big.Float).SetInt(total.ToBig()).Float64()
	m.totalStaked.Set(f)
	m.activeDeposits.Set(float64(active))
}
