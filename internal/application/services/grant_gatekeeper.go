package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/reglet-dev/flowgate/internal/application/ports"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/infrastructure/system"
)

// GrantGatekeeper handles grant decisions, user interaction, and persistence.
// This is an application service responsible for the security boundary
// between what functions require and what a run is granted.
type GrantGatekeeper struct {
	store         ports.GrantStore
	prompter      ports.GrantPrompter
	logger        *slog.Logger
	securityLevel system.SecurityLevel
}

var _ ports.GrantGatekeeperPort = (*GrantGatekeeper)(nil)

// NewGrantGatekeeper creates a new grant gatekeeper.
func NewGrantGatekeeper(
	store ports.GrantStore,
	prompter ports.GrantPrompter,
	securityLevel system.SecurityLevel,
	logger *slog.Logger,
) *GrantGatekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantGatekeeper{
		store:         store,
		prompter:      prompter,
		securityLevel: securityLevel,
		logger:        logger,
	}
}

// Resolve returns the grants a run executes with: saved grants, overridden
// by given, extended with decisions for referenced functions that are not
// yet covered.
//
//   - strict: missing grants stay missing and calls are denied at runtime
//   - permissive: missing grants are added without prompting
//   - standard: the user is prompted when interactive is set
func (g *GrantGatekeeper) Resolve(
	ctx context.Context,
	code string,
	set *capability.Set,
	given permissions.Grants,
	interactive bool,
) (permissions.Grants, error) {
	saved, err := g.store.Load()
	if err != nil {
		g.logger.WarnContext(ctx, "ignoring unreadable grants file", "path", g.store.Path(), "error", err)
		saved = nil
	}
	grants := saved.Merge(given)

	missing := findMissingGrants(ReferencedFunctions(code, set), grants)
	if len(missing) == 0 {
		return grants, nil
	}

	switch g.securityLevel {
	case system.SecurityLevelStrict:
		g.logger.WarnContext(ctx, "functions referenced without grants (strict mode)",
			"functions", strings.Join(missing.FunctionIDs(), ","))
		return grants, nil

	case system.SecurityLevelPermissive:
		g.logger.WarnContext(ctx, "auto-granting referenced functions (permissive mode)",
			"functions", strings.Join(missing.FunctionIDs(), ","))
		return grants.Merge(missing), nil
	}

	if !interactive {
		return grants, nil
	}
	if !g.prompter.IsInteractive() {
		return nil, g.prompter.FormatNonInteractiveError(missing, g.store.Path())
	}

	var keep permissions.Grants
	for _, m := range missing {
		granted, always, err := g.prompter.PromptForGrant(m.FunctionID, m.Granted)
		if err != nil {
			return nil, fmt.Errorf("prompt for %s: %w", m.FunctionID, err)
		}
		if !granted {
			return nil, fmt.Errorf("grant denied by user: %s", m.FunctionID)
		}
		grants = grants.Merge(permissions.Grants{m})
		if always {
			keep = append(keep, m)
		}
	}

	if len(keep) > 0 {
		if err := g.store.Save(saved.Merge(keep)); err != nil {
			g.logger.WarnContext(ctx, "failed to save grants", "path", g.store.Path(), "error", err)
		} else {
			g.logger.InfoContext(ctx, "grants saved", "path", g.store.Path(), "count", len(keep))
		}
	}

	return grants, nil
}

// findMissingGrants returns, for each function not covered by granted, a
// grant entry carrying its declared requirement.
func findMissingGrants(functions []capability.Function, granted permissions.Grants) permissions.Grants {
	var missing permissions.Grants
	for _, fn := range functions {
		if err := granted.Authorize(fn.ID, fn.Required); err != nil {
			missing = append(missing, permissions.FunctionGrant{FunctionID: fn.ID, Granted: fn.Required})
		}
	}
	return missing
}

// ReferencedFunctions returns the functions of set whose script path
// ("exec", "fs.read", "acme.tools.ping") appears as a call in code.
func ReferencedFunctions(code string, set *capability.Set) []capability.Function {
	if set == nil {
		return nil
	}
	var referenced []capability.Function
	for _, pkg := range set.Packages() {
		for _, fn := range pkg.Functions {
			path := fn.Name
			if pkg.Namespace != "" {
				path = pkg.Namespace + "." + fn.Name
			}
			if callPattern(path).MatchString(code) {
				referenced = append(referenced, fn)
			}
		}
	}
	return referenced
}

func callPattern(path string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^\w$.])` + regexp.QuoteMeta(path) + `\s*\(`)
}
