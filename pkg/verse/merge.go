package verse

import (
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"go.uber.org/multierr"
)

// Claim is the value a successor verse receives from a dissolving one.
type Claim struct {
	VerseID string
	Value   uint64
}

// ValidateMerge checks the claims successors make on the value of a
// dissolving verse. Malformed claims are all reported together, then the
// claims must not add up to more than the dissolving value.
func ValidateMerge(dissolvingID string, dissolvingValue uint64, claims []Claim) error {
	if dissolvingID == "" {
		return ErrInvalidVerseID
	}

	var errs error
	seen := make(map[string]struct{}, len(claims))
	for i, c := range claims {
		switch {
		case c.VerseID == "":
			errs = multierr.Append(errs, fmt.Errorf("%w: claim %d has no verse id", ErrInvalidClaim, i))
		case c.VerseID == dissolvingID:
			errs = multierr.Append(errs, fmt.Errorf("%w: verse %s claims from itself", ErrInvalidClaim, c.VerseID))
		default:
			if _, ok := seen[c.VerseID]; ok {
				errs = multierr.Append(errs, fmt.Errorf("%w: verse %s claims twice", ErrInvalidClaim, c.VerseID))
			}
			seen[c.VerseID] = struct{}{}
		}
	}
	if errs != nil {
		return errs
	}

	var total uint64
	for _, c := range claims {
		var err error
		if total, err = fixedpoint.AddUint64(total, c.Value); err != nil {
			return fmt.Errorf("%w: claims overflow", ErrValueLeakage)
		}
	}
	if total > dissolvingValue {
		return fmt.Errorf("%w: %d claimed out of %d", ErrValueLeakage, total, dissolvingValue)
	}
	return nil
}
