package fixedpoint

import (
	"fmt"
	"math"
)

// Table domains and resolutions. Node i is computed as start + i/stepDen
// directly rather than by repeated addition of the truncated step.
var (
	cdfDomain  = tableDomain{startNum: -400, startDen: 100, stepDen: 100, end: 4}
	expDomain  = tableDomain{startNum: 0, startDen: 1, stepDen: 512, end: 8}
	lnDomain   = tableDomain{startNum: 1, startDen: 100, stepDen: 1024, end: 10}
	sqrtDomain = tableDomain{startNum: 0, startDen: 1, stepDen: 64, end: 256}
)

type tableDomain struct {
	startNum          int64
	startDen, stepDen uint64
	end               float64
}

// Tables holds the precomputed lookup tables. It is built once with
// NewTables and is safe for concurrent use since it is never mutated.
type Tables struct {
	exp  *table
	ln   *table
	sqrt *table
	cdf  *table
	pdf  *table

	ln2      Fixed
	exp8     Fixed
	ten      Fixed
	expBound Fixed
}

type table struct {
	start Fixed
	end   Fixed
	// stepDen is 1/step, an integer, so positions are computed exactly.
	stepDen Fixed
	values  []Fixed
}

// NewTables computes every table. It is meant to be called once at startup
// and the result shared by reference with the engines.
func NewTables() (*Tables, error) {
	expT, err := newTable(expDomain, math.Exp)
	if err != nil {
		return nil, fmt.Errorf("exp table: %w", err)
	}
	lnT, err := newTable(lnDomain, math.Log)
	if err != nil {
		return nil, fmt.Errorf("ln table: %w", err)
	}
	sqrtT, err := newTable(sqrtDomain, math.Sqrt)
	if err != nil {
		return nil, fmt.Errorf("sqrt table: %w", err)
	}
	cdfT, err := newTable(cdfDomain, normalCDF)
	if err != nil {
		return nil, fmt.Errorf("cdf table: %w", err)
	}
	pdfT, err := newTable(cdfDomain, normalPDF)
	if err != nil {
		return nil, fmt.Errorf("pdf table: %w", err)
	}
	ln2, err := FromFloat64(math.Ln2)
	if err != nil {
		return nil, err
	}

	return &Tables{
		exp:      expT,
		ln:       lnT,
		sqrt:     sqrtT,
		cdf:      cdfT,
		pdf:      pdfT,
		ln2:      ln2,
		exp8:     expT.values[len(expT.values)-1],
		ten:      FromInt64(10),
		expBound: FromInt64(8),
	}, nil
}

// Size returns the number of nodes of each table, keyed by name.
func (t *Tables) Size() map[string]int {
	return map[string]int{
		"exp":  len(t.exp.values),
		"ln":   len(t.ln.values),
		"sqrt": len(t.sqrt.values),
		"cdf":  len(t.cdf.values),
		"pdf":  len(t.pdf.values),
	}
}

func newTable(d tableDomain, fn func(float64) float64) (*table, error) {
	start, err := FromRatio(uint64(abs64(d.startNum)), d.startDen)
	if err != nil {
		return nil, err
	}
	if d.startNum < 0 {
		if start, err = start.Neg(); err != nil {
			return nil, err
		}
	}
	span := d.end - start.Float64()
	n := int(math.Ceil(span*float64(d.stepDen))) + 1

	values := make([]Fixed, 0, n)
	var last Fixed
	for i := 0; i < n; i++ {
		offset, err := FromRatio(uint64(i), d.stepDen)
		if err != nil {
			return nil, err
		}
		x, err := start.Add(offset)
		if err != nil {
			return nil, err
		}
		v, err := FromFloat64(fn(x.Float64()))
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		values = append(values, v)
		last = x
	}

	return &table{
		start:   start,
		end:     last,
		stepDen: FromInt64(int64(d.stepDen)),
		values:  values,
	}, nil
}

// lookup finds the bracketing pair of nodes and interpolates linearly.
func (t *table) lookup(x Fixed) (Fixed, error) {
	if x.LessThan(t.start) || x.GreaterThan(t.end) {
		return Zero, ErrIndexOutOfBounds
	}
	offset, err := x.Sub(t.start)
	if err != nil {
		return Zero, err
	}
	pos, err := offset.Mul(t.stepDen)
	if err != nil {
		return Zero, err
	}

	i := pos.ToInt64Floor()
	if i < 0 || int(i) >= len(t.values) {
		return Zero, ErrIndexOutOfBounds
	}
	if int(i) == len(t.values)-1 {
		return t.values[i], nil
	}

	lo, hi := t.values[i], t.values[i+1]
	delta, err := hi.Sub(lo)
	if err != nil {
		return Zero, err
	}
	delta, err = delta.Mul(pos.Frac())
	if err != nil {
		return Zero, err
	}
	return lo.Add(delta)
}

func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
