package main

import (
	"fmt"
	"strings"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// parseGrantFlags converts repeated --grant values into grants. Each value
// has the form function_id=Kind[@Level][:resource,resource]. Values naming
// the same function are combined into one grant.
func parseGrantFlags(values []string) (permissions.Grants, error) {
	var grants permissions.Grants
	index := make(map[string]int)

	for _, value := range values {
		functionID, rule, ok := strings.Cut(value, "=")
		functionID = strings.TrimSpace(functionID)
		if !ok || functionID == "" || strings.TrimSpace(rule) == "" {
			return nil, fmt.Errorf("invalid grant %q: expected function_id=Kind[@Level][:resources]", value)
		}

		perm, err := parsePermission(rule)
		if err != nil {
			return nil, fmt.Errorf("invalid grant %q: %w", value, err)
		}

		if i, seen := index[functionID]; seen {
			grants[i].Granted = append(grants[i].Granted, perm)
			continue
		}
		index[functionID] = len(grants)
		grants = append(grants, permissions.FunctionGrant{
			FunctionID: functionID,
			Granted:    permissions.NewSet(perm),
		})
	}
	return grants, nil
}

func parsePermission(rule string) (permissions.Permission, error) {
	head, resourceList, _ := strings.Cut(rule, ":")
	kindName, levelName, hasLevel := strings.Cut(head, "@")

	kind, err := permissions.ParseKind(kindName)
	if err != nil {
		return permissions.Permission{}, err
	}
	if kind == permissions.KindUnspecified {
		return permissions.Permission{}, fmt.Errorf("permission kind is required")
	}

	level := permissions.LevelUnspecified
	if hasLevel {
		if level, err = permissions.ParseLevel(levelName); err != nil {
			return permissions.Permission{}, err
		}
	}

	var resources []string
	for _, r := range strings.Split(resourceList, ",") {
		if r = strings.TrimSpace(r); r != "" {
			resources = append(resources, r)
		}
	}
	return permissions.New(kind, resources...).WithLevel(level), nil
}
