package usecase

import (
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

// CheckGroups enforces the operation's cross-field groups over the normalized
// set. Callers run it only after every field passed on its own.
func CheckGroups(op domain.Operation, values map[string]domain.Value) []domain.Violation {
	var out []domain.Violation
	for _, g := range op.Groups {
		present := make([]string, 0, len(g.Fields))
		for _, name := range g.Fields {
			if values[name].Present() {
				present = append(present, name)
			}
		}

		fields := strings.Join(g.Fields, ", ")
		switch g.Kind {
		case domain.ExactlyOne:
			switch {
			case len(present) == 0:
				out = append(out, groupViolation(g, domain.CodeMissingRequiredGroup,
					fmt.Sprintf("exactly one of %s is required", fields)))
			case len(present) > 1:
				out = append(out, groupViolation(g, domain.CodeMutuallyExclusive,
					fmt.Sprintf("only one of %s may be set, got %s", fields, strings.Join(present, " and "))))
			}
		case domain.AtMostOne:
			if len(present) > 1 {
				out = append(out, groupViolation(g, domain.CodeMutuallyExclusive,
					fmt.Sprintf("at most one of %s may be set, got %s", fields, strings.Join(present, " and "))))
			}
		case domain.AllOrNone:
			if len(present) > 0 && len(present) < len(g.Fields) {
				out = append(out, groupViolation(g, domain.CodeMissingRequiredGroup,
					fmt.Sprintf("%s must be given together, missing %s", fields, strings.Join(missing(g.Fields, present), ", "))))
			}
		}
	}
	return out
}

func groupViolation(g domain.ConstraintGroup, code domain.Code, detail string) domain.Violation {
	return domain.Violation{
		Field:   domain.CrossField,
		Code:    code,
		Message: g.Name + ": " + detail,
	}
}

func missing(all, present []string) []string {
	seen := make(map[string]bool, len(present))
	for _, p := range present {
		seen[p] = true
	}
	var out []string
	for _, name := range all {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}
