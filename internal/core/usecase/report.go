package usecase

import "github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"

// Report folds violations into the single error type the validation layer
// returns for bad input, or nil when there are none.
func Report(operation string, violations []domain.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	out := make([]domain.Violation, len(violations))
	copy(out, violations)
	return &domain.ErrValidation{Operation: operation, Violations: out}
}
