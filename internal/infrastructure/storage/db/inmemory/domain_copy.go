package inmemory

import "github.com/gary322/flashbets-sub011/internal/core/domain"

// Entities are stored and returned by deep copy so that callers never share
// pool slices with the repository.

func copyMarket(m domain.Market) domain.Market {
	if m.LMSR != nil {
		pool := *m.LMSR
		pool.Quantities = copyUint64(pool.Quantities)
		m.LMSR = &pool
	}
	if m.PMAMM != nil {
		pool := *m.PMAMM
		pool.Reserves = copyUint64(pool.Reserves)
		m.PMAMM = &pool
	}
	if m.L2 != nil {
		pool := *m.L2
		pool.Weights = copyUint64(pool.Weights)
		m.L2 = &pool
	}
	return m
}

func copyVerse(v domain.Verse) domain.Verse {
	if v.Successors != nil {
		v.Successors = append([]string(nil), v.Successors...)
	}
	return v
}

func copyUint64(v []uint64) []uint64 {
	if v == nil {
		return nil
	}
	return append([]uint64(nil), v...)
}
