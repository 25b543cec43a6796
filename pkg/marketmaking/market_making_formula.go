package marketmaking

import (
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking/formula"
)

// Engines bundles one instance of every pricing engine, all sharing the same
// lookup tables.
type Engines struct {
	LMSR  *formula.LMSR
	PMAMM *formula.PMAMM
	L2AMM *formula.L2AMM
}

// NewEngines returns the engines built on top of tables.
func NewEngines(tables *fixedpoint.Tables) (*Engines, error) {
	if tables == nil {
		return nil, fmt.Errorf("missing lookup tables")
	}
	return &Engines{
		LMSR:  formula.NewLMSR(tables),
		PMAMM: formula.NewPMAMM(tables),
		L2AMM: formula.NewL2AMM(tables),
	}, nil
}
