package solc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forgelabs/bastion/pkg/errs"
)

type version [3]int

func parseVersion(s string) (version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.SplitN(s, "-", 2)[0] // drop any -nightly/-commit suffix
	fields := strings.Split(parts, ".")
	if len(fields) != 3 {
		return version{}, fmt.Errorf("%w: not a version in X.Y.Z form: %q", errs.ErrConfiguration, s)
	}
	var v version
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return version{}, fmt.Errorf("%w: not a version in X.Y.Z form: %q", errs.ErrConfiguration, s)
		}
		v[i] = n
	}
	return v, nil
}

// compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a version) compare(b version) int {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (a version) String() string {
	return fmt.Sprintf("%d.%d.%d", a[0], a[1], a[2])
}

type clause struct {
	op  string // "=", ">=", "<=", ">", "<", "^", "~"
	ver version
}

func parseConstraint(constraint string) ([]clause, error) {
	fields := strings.Fields(constraint)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty version constraint", errs.ErrConfiguration)
	}
	var clauses []clause
	for _, f := range fields {
		op, rest := splitOp(f)
		v, err := parseVersion(rest)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause{op: op, ver: v})
	}
	return clauses, nil
}

func splitOp(f string) (op, rest string) {
	for _, candidate := range []string{">=", "<=", "^", "~", ">", "<", "="} {
		if strings.HasPrefix(f, candidate) {
			return candidate, strings.TrimSpace(f[len(candidate):])
		}
	}
	return "^", f // pragma's bare "0.8.0" carries caret-range semantics
}

func (c clause) matches(v version) bool {
	switch c.op {
	case "=":
		return v.compare(c.ver) == 0
	case ">=":
		return v.compare(c.ver) >= 0
	case "<=":
		return v.compare(c.ver) <= 0
	case ">":
		return v.compare(c.ver) > 0
	case "<":
		return v.compare(c.ver) < 0
	case "^":
		upper := c.ver
		if upper[0] == 0 {
			upper = version{0, upper[1] + 1, 0}
		} else {
			upper = version{upper[0] + 1, 0, 0}
		}
		return v.compare(c.ver) >= 0 && v.compare(upper) < 0
	case "~":
		upper := version{c.ver[0], c.ver[1] + 1, 0}
		return v.compare(c.ver) >= 0 && v.compare(upper) < 0
	default:
		return false
	}
}

// ResolveVersion picks the highest version string in candidates satisfying
// every clause in constraint. candidates need not be sorted.
func ResolveVersion(constraint string, candidates []string) (string, error) {
	clauses, err := parseConstraint(constraint)
	if err != nil {
		return "", err
	}

	var best version
	var bestStr string
	found := false
	for _, c := range candidates {
		v, err := parseVersion(c)
		if err != nil {
			continue
		}
		ok := true
		for _, cl := range clauses {
			if !cl.matches(v) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if !found || v.compare(best) > 0 {
			best, bestStr, found = v, c, true
		}
	}
	if !found {
		return "", fmt.Errorf("%w: no compiler version satisfies constraint %q", errs.ErrConfiguration, constraint)
	}
	return bestStr, nil
}
