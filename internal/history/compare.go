package history

import (
	"context"
	"fmt"
)

// #region compare
// Compare lists every counter in current that is worse than in previous:
// fewer passes or more misreads. Rotations are matched by angle; a rotation
// missing from either run is skipped.
func (s *Store) Compare(ctx context.Context, previousID, currentID string) ([]Regression, error) {
	prev, err := s.RotationResults(ctx, previousID)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	cur, err := s.RotationResults(ctx, currentID)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	return Regressions(prev, cur), nil
}

// Regressions compares two sets of rotation results without touching the database.
func Regressions(previous, current []RotationResult) []Regression {
	before := make(map[float64]RotationResult, len(previous))
	for _, r := range previous {
		before[r.Rotation] = r
	}

	var out []Regression
	for _, r := range current {
		p, ok := before[r.Rotation]
		if !ok {
			continue
		}
		pc, cc := p.Counters, r.Counters
		if cc.Passed < pc.Passed {
			out = append(out, Regression{r.Rotation, "passed", pc.Passed, cc.Passed})
		}
		if cc.Misread > pc.Misread {
			out = append(out, Regression{r.Rotation, "misread", pc.Misread, cc.Misread})
		}
		if cc.TryHarderPassed < pc.TryHarderPassed {
			out = append(out, Regression{r.Rotation, "try_harder_passed", pc.TryHarderPassed, cc.TryHarderPassed})
		}
		if cc.TryHarderMisread > pc.TryHarderMisread {
			out = append(out, Regression{r.Rotation, "try_harder_misread", pc.TryHarderMisread, cc.TryHarderMisread})
		}
	}
	return out
}
// #endregion compare
