// Package services contains application use cases.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reglet-dev/flowgate/internal/application/dto"
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/application/ports"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
	"golang.org/x/sync/errgroup"
)

// selectAll selects every loaded external package.
var selectAll = map[string]bool{"*": true, "all": true}

// WorkflowConfig tunes the workflow service.
type WorkflowConfig struct {
	// DefaultTimeout bounds runs whose request sets no timeout. Zero disables it.
	DefaultTimeout time.Duration
	// MaxConcurrentRuns limits RunBatch. Zero or less is unlimited.
	MaxConcurrentRuns int
	// BaseGrants apply to every run, below stored and request grants.
	BaseGrants permissions.Grants
}

// WorkflowService orchestrates workflow use cases: storing code, running
// it in the sandbox, and querying the results.
type WorkflowService struct {
	repository repositories.WorkflowRepository
	runtime    ports.WorkflowRuntime
	packages   ports.PackageSource
	gatekeeper ports.GrantGatekeeperPort
	scrubber   ports.Scrubber
	config     WorkflowConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewWorkflowService creates a workflow service. packages, gatekeeper and
// scrubber are optional.
func NewWorkflowService(
	repository repositories.WorkflowRepository,
	runtime ports.WorkflowRuntime,
	packages ports.PackageSource,
	gatekeeper ports.GrantGatekeeperPort,
	scrubber ports.Scrubber,
	config WorkflowConfig,
	logger *slog.Logger,
) *WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowService{
		repository: repository,
		runtime:    runtime,
		packages:   packages,
		gatekeeper: gatekeeper,
		scrubber:   scrubber,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// SaveCode stores workflow code. Saving an existing code id replaces its
// text and bumps its code revision.
func (s *WorkflowService) SaveCode(ctx context.Context, req dto.SaveCodeRequest) (*workflow.Code, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	code := &workflow.Code{
		ID:         req.CodeID,
		WorkflowID: req.WorkflowID,
		Text:       req.Code,
		Revision:   1,
		Grants:     req.Grants,
		Plugins:    req.Plugins,
		CreatedAt:  s.now().UTC(),
	}
	if code.ID == "" {
		code.ID = uuid.NewString()
	} else {
		existing, err := s.repository.GetCode(ctx, code.ID)
		switch {
		case err == nil:
			code.Revision = existing.Revision + 1
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, fmt.Errorf("failed to load code %s: %w", code.ID, err)
		}
	}

	if err := s.repository.SaveCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to save code %s: %w", code.ID, err)
	}
	s.logger.DebugContext(ctx, "saved workflow code", "code_id", code.ID, "revision", code.Revision)
	return code, nil
}

// Run executes stored code and appends its result.
//
// Grants are layered config < stored < request, then extended by the
// gatekeeper for referenced functions that are still missing.
func (s *WorkflowService) Run(ctx context.Context, req dto.RunWorkflowRequest) (*dto.RunWorkflowResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	code, err := s.repository.GetCode(ctx, req.CodeID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("code", req.CodeID)
		}
		return nil, fmt.Errorf("failed to load code %s: %w", req.CodeID, err)
	}

	selectors := code.Plugins
	if len(req.Plugins) > 0 {
		selectors = req.Plugins
	}
	packages, err := s.selectPackages(ctx, selectors)
	if err != nil {
		return nil, err
	}

	grants := s.config.BaseGrants.Merge(code.Grants).Merge(req.Grants)
	return s.execute(ctx, code, grants, packages, req.Timeout, req.Interactive, true)
}

// RunScript stores text under the code id name and runs it. Repeated runs
// of the same name accumulate revisions of one result history.
func (s *WorkflowService) RunScript(ctx context.Context, req dto.RunScriptRequest) (*dto.RunWorkflowResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	code, err := s.SaveCode(ctx, dto.SaveCodeRequest{
		CodeID:     req.Name,
		WorkflowID: req.Name,
		Code:       req.Code,
		Grants:     req.Grants,
		Plugins:    req.Plugins,
	})
	if err != nil {
		return nil, err
	}

	packages, err := s.selectPackages(ctx, req.Plugins)
	if err != nil {
		return nil, err
	}

	if req.AllPermissions {
		s.logger.WarnContext(ctx, "running with every permission granted", "code_id", code.ID)
		return s.execute(ctx, code, permissions.AllowAll(), packages, req.Timeout, false, false)
	}
	grants := s.config.BaseGrants.Merge(req.Grants)
	return s.execute(ctx, code, grants, packages, req.Timeout, req.Interactive, true)
}

func (s *WorkflowService) execute(
	ctx context.Context,
	code *workflow.Code,
	grants permissions.Grants,
	packages []capability.Package,
	timeout time.Duration,
	interactive bool,
	gate bool,
) (*dto.RunWorkflowResponse, error) {
	start := s.now()

	if gate && s.gatekeeper != nil {
		set, err := s.runtime.Registry().Resolve(packages...)
		if err != nil {
			return nil, err
		}
		if grants, err = s.gatekeeper.Resolve(ctx, code.Text, set, grants, interactive); err != nil {
			return nil, err
		}
	}

	if timeout == 0 {
		timeout = s.config.DefaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	run := workflow.NewRun(code, grants, packages)
	outcome, err := s.runtime.Execute(runCtx, run)
	if err != nil {
		return nil, fmt.Errorf("workflow run %s: %w", code.ID, err)
	}

	result := outcome.Result(code.ID, start.UTC())
	if s.scrubber != nil {
		result.Text = s.scrubber.ScrubString(result.Text)
	}

	// the run context may have expired; the result is still recorded
	if _, err := s.repository.AppendResult(context.WithoutCancel(ctx), result); err != nil {
		return nil, fmt.Errorf("failed to store result of %s: %w", code.ID, err)
	}

	s.logger.InfoContext(ctx, "workflow run finished",
		"code_id", code.ID,
		"run_id", outcome.RunID,
		"result_type", string(result.Type),
		"revision", result.Revision)

	return &dto.RunWorkflowResponse{
		Result: result,
		RunID:  outcome.RunID,
		Metadata: dto.ResponseMetadata{
			ProcessedAt: start,
			Duration:    s.now().Sub(start),
		},
	}, nil
}

// RunBatch runs several stored codes concurrently, bounded by
// MaxConcurrentRuns. Responses are returned in request order.
func (s *WorkflowService) RunBatch(ctx context.Context, reqs []dto.RunWorkflowRequest) ([]*dto.RunWorkflowResponse, error) {
	responses := make([]*dto.RunWorkflowResponse, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrentRuns > 0 {
		g.SetLimit(s.config.MaxConcurrentRuns)
	}
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := s.Run(gctx, req)
			if err != nil {
				return fmt.Errorf("run %s: %w", req.CodeID, err)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return responses, err
	}
	return responses, nil
}

// ListResults returns the results of a code id in revision order, filtered
// by an optional expression and trimmed to the newest Limit entries.
func (s *WorkflowService) ListResults(ctx context.Context, req dto.ListResultsRequest) (*dto.ListResultsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	filter, err := workflow.CompileResultFilter(req.Filter)
	if err != nil {
		return nil, apperrors.NewValidationError("filter", err.Error())
	}

	results, err := s.repository.ListResults(ctx, req.CodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results of %s: %w", req.CodeID, err)
	}
	if results, err = filter.Apply(results); err != nil {
		return nil, apperrors.NewValidationError("filter", err.Error())
	}
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[len(results)-req.Limit:]
	}

	return &dto.ListResultsResponse{CodeID: req.CodeID, Results: results}, nil
}

// Catalog describes the internal packages plus the selected external ones.
func (s *WorkflowService) Catalog(ctx context.Context, selectors []string) ([]capability.CatalogEntry, error) {
	packages, err := s.selectPackages(ctx, selectors)
	if err != nil {
		return nil, err
	}
	set, err := s.runtime.Registry().Resolve(packages...)
	if err != nil {
		return nil, err
	}
	return set.Catalog(), nil
}

// selectPackages picks loaded external packages by namespace
// ("acme.tools"), plugin package id ("acme/tools/1.0.0"), or "*"/"all".
// A namespace selects its highest installed version.
func (s *WorkflowService) selectPackages(ctx context.Context, selectors []string) ([]capability.Package, error) {
	if len(selectors) == 0 {
		return nil, nil
	}

	var loaded []capability.Package
	if s.packages != nil {
		var err error
		if loaded, err = s.packages.Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}
	}

	latest := make(map[string]capability.Package)
	var namespaces []string
	for _, pkg := range loaded {
		current, ok := latest[pkg.Namespace]
		if !ok {
			namespaces = append(namespaces, pkg.Namespace)
		}
		if !ok || versionLess(packageVersion(current), packageVersion(pkg)) {
			latest[pkg.Namespace] = pkg
		}
	}

	var selected []capability.Package
	seen := make(map[string]bool)
	add := func(pkg capability.Package) {
		key := pkg.Namespace + "@" + packageVersion(pkg)
		if !seen[key] {
			seen[key] = true
			selected = append(selected, pkg)
		}
	}

	for _, sel := range selectors {
		if selectAll[sel] {
			for _, ns := range namespaces {
				add(latest[ns])
			}
			continue
		}
		if pkg, ok := latest[sel]; ok {
			add(pkg)
			continue
		}
		pkg, ok := findByID(loaded, sel)
		if !ok {
			return nil, apperrors.NewNotFoundError("plugin", sel)
		}
		add(pkg)
	}
	return selected, nil
}

func findByID(loaded []capability.Package, ref string) (capability.Package, bool) {
	id, err := values.ParsePluginPackageID(ref)
	if err != nil {
		return capability.Package{}, false
	}
	for _, pkg := range loaded {
		if pkg.Namespace == id.Namespace() && packageVersion(pkg) == id.Version() {
			return pkg, true
		}
	}
	return capability.Package{}, false
}

func packageVersion(pkg capability.Package) string {
	if src, ok := pkg.Provenance.(capability.ExternalSource); ok {
		return src.Version
	}
	return ""
}
