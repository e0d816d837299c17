package permissions

import (
	"fmt"
	"strings"
)

// MissingError describes the first required permission a granted set does
// not satisfy.
type MissingError struct {
	Required Permission
	Reason   string
}

func (e *MissingError) Error() string {
	return e.Reason
}

// Check decides whether granted satisfies required. It returns nil when
// every required entry is covered, otherwise a *MissingError naming the
// first unmet requirement.
//
// A required entry is covered by a granted entry of the same kind whose
// level is sufficient and whose resource list contains every required
// resource token. An empty granted resource list covers every resource
// of that kind.
func Check(granted, required Set) error {
	for _, req := range required {
		if err := checkOne(granted, req); err != nil {
			return err
		}
	}
	return nil
}

func checkOne(granted Set, req Permission) *MissingError {
	var first *MissingError
	sameKind := false

	for _, g := range granted {
		if g.Kind != req.Kind {
			continue
		}
		sameKind = true

		miss := match(g, req)
		if miss == nil {
			return nil
		}
		if first == nil {
			first = miss
		}
	}

	if !sameKind {
		return &MissingError{
			Required: req,
			Reason:   fmt.Sprintf("missing %s", req.label()),
		}
	}
	return first
}

func match(g, req Permission) *MissingError {
	if !g.Level.satisfies(req.Level) {
		return &MissingError{
			Required: req,
			Reason: fmt.Sprintf("missing %s: level %s required, %s granted",
				req.label(), req.Level, g.Level),
		}
	}

	if len(req.Resource) == 0 || len(g.Resource) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(g.Resource))
	for _, r := range g.Resource {
		allowed[r] = struct{}{}
	}

	var uncovered []string
	for _, r := range req.Resource {
		if _, ok := allowed[r]; !ok {
			uncovered = append(uncovered, r)
		}
	}
	if len(uncovered) == 0 {
		return nil
	}

	return &MissingError{
		Required: req,
		Reason: fmt.Sprintf("missing %s for resource %s",
			req.label(), quoteAll(uncovered)),
	}
}

func quoteAll(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
