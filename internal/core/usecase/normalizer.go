package usecase

import (
	"sort"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

// NormalizeAndValidate turns loosely typed caller input into an outbound
// request for op, or returns *domain.ErrValidation listing every problem.
//
// Fields are processed in declaration order so results are deterministic.
// Cross-field groups are only evaluated once every field passed on its own.
// Keys that op does not declare are ignored; see UnknownFields.
func NormalizeAndValidate(raw map[string]any, op domain.Operation) (domain.Request, error) {
	values := make(map[string]domain.Value, len(op.Fields))
	var violations []domain.Violation

	for _, f := range op.Fields {
		in, ok := raw[f.Name]
		if !ok || in == nil {
			if f.Required {
				violations = append(violations, requiredViolation(f))
			}
			continue
		}
		if IsSentinel(in) {
			violations = append(violations, sentinelViolation(f, in))
			continue
		}

		v, viol := Coerce(in, f)
		if viol != nil {
			violations = append(violations, *viol)
			continue
		}
		v, vs := CheckConstraints(f, v)
		if len(vs) > 0 {
			violations = append(violations, vs...)
			continue
		}
		values[f.Name] = v
	}

	violations = append(violations, CheckRanges(op, values)...)
	if len(violations) == 0 {
		violations = CheckGroups(op, values)
	}
	if err := Report(op.Name, violations); err != nil {
		return domain.Request{}, err
	}
	return BuildRequest(op, values), nil
}

// UnknownFields lists the keys of raw that op does not declare, sorted.
func UnknownFields(raw map[string]any, op domain.Operation) []string {
	var out []string
	for k := range raw {
		if _, ok := op.Field(k); !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
