package mathutil

import (
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// ErrInvalidFeeSplit ...
var ErrInvalidFeeSplit = fmt.Errorf(
	"%w: fee split shares must add up to 10000 basis points", fixedpoint.ErrInvalidInput,
)

// FeeSplit is the policy distributing collected trading fees between the
// protocol vault, reward holders and the burn.
type FeeSplit struct {
	VaultBps   uint64
	RewardsBps uint64
	BurnBps    uint64
}

// DefaultFeeSplit is 70% vault, 20% rewards, 10% burn.
var DefaultFeeSplit = FeeSplit{VaultBps: 7000, RewardsBps: 2000, BurnBps: 1000}

// FeeDistribution is the outcome of applying a FeeSplit to an amount.
type FeeDistribution struct {
	Vault   uint64
	Rewards uint64
	Burn    uint64
}

// Validate ...
func (s FeeSplit) Validate() error {
	total, err := fixedpoint.SumUint64([]uint64{s.VaultBps, s.RewardsBps, s.BurnBps})
	if err != nil || total != fixedpoint.MaxBps {
		return ErrInvalidFeeSplit
	}
	return nil
}

// Split distributes fee. Rewards and burn are rounded down and the vault
// receives the remainder so that the parts always add up to fee.
func (s FeeSplit) Split(fee uint64) (FeeDistribution, error) {
	if err := s.Validate(); err != nil {
		return FeeDistribution{}, err
	}
	rewards, err := fixedpoint.ApplyBps(fee, s.RewardsBps)
	if err != nil {
		return FeeDistribution{}, err
	}
	burn, err := fixedpoint.ApplyBps(fee, s.BurnBps)
	if err != nil {
		return FeeDistribution{}, err
	}
	return FeeDistribution{
		Vault:   fee - rewards - burn,
		Rewards: rewards,
		Burn:    burn,
	}, nil
}
