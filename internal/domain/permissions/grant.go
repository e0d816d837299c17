package permissions

// Wildcard is the function id of a fallback grant that applies to every
// function without an exact-id grant.
const Wildcard = "*"

// FunctionGrant binds a granted permission set to one function id, or to
// every function when FunctionID is Wildcard.
type FunctionGrant struct {
	FunctionID string `json:"function_id" yaml:"function_id"`
	Granted    Set    `json:"granted" yaml:"granted"`
}

// IsWildcard reports whether the grant is the fallback entry.
func (g FunctionGrant) IsWildcard() bool {
	return g.FunctionID == Wildcard
}

// Grants is the list of function grants authorized for one run.
type Grants []FunctionGrant

// Effective returns the permission set granted to functionID. An exact
// match takes priority over the wildcard entry. With neither present the
// result is empty, which only satisfies an empty requirement.
func (gs Grants) Effective(functionID string) Set {
	var fallback Set
	hasFallback := false

	for _, g := range gs {
		if g.FunctionID == functionID {
			return g.Granted
		}
		if g.IsWildcard() && !hasFallback {
			fallback = g.Granted
			hasFallback = true
		}
	}

	if hasFallback {
		return fallback
	}
	return Set{}
}

// Authorize checks required against the effective grant for functionID.
func (gs Grants) Authorize(functionID string, required Set) error {
	return Check(gs.Effective(functionID), required)
}

// Merge returns a new list where entries of other replace entries of gs
// with the same function id. Order of first appearance is preserved.
func (gs Grants) Merge(other Grants) Grants {
	merged := make(Grants, 0, len(gs)+len(other))
	index := make(map[string]int, len(gs)+len(other))

	for _, list := range []Grants{gs, other} {
		for _, g := range list {
			if i, ok := index[g.FunctionID]; ok {
				merged[i] = g
				continue
			}
			index[g.FunctionID] = len(merged)
			merged = append(merged, g)
		}
	}
	return merged
}

// FunctionIDs returns the function ids that have an entry, in order.
func (gs Grants) FunctionIDs() []string {
	ids := make([]string, len(gs))
	for i, g := range gs {
		ids[i] = g.FunctionID
	}
	return ids
}

// AllPermissions returns a set granting every concrete kind on every
// resource at any level. Used for local debug runs only.
func AllPermissions() Set {
	kinds := Kinds()
	set := make(Set, 0, len(kinds))
	for _, k := range kinds {
		set = append(set, Permission{
			DisplayName: "All " + k.String(),
			Kind:        k,
		})
	}
	return set
}

// AllowAll returns a wildcard grant carrying AllPermissions.
func AllowAll() Grants {
	return Grants{{FunctionID: Wildcard, Granted: AllPermissions()}}
}
