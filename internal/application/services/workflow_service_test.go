package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reglet-dev/flowgate/internal/application/dto"
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
	"github.com/reglet-dev/flowgate/internal/infrastructure/bridge"
	"github.com/reglet-dev/flowgate/internal/infrastructure/persistence/memory"
	"github.com/reglet-dev/flowgate/internal/infrastructure/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shoutID = "test.shout.shout"

// shoutPackage exposes a global shout(text) requiring Execute.
func shoutPackage() capability.Package {
	return capability.Package{
		ID:         "test.shout",
		Provenance: capability.Internal{},
		Functions: []capability.Function{{
			ID:       shoutID,
			Name:     "shout",
			Required: permissions.NewSet(permissions.New(permissions.KindExecute)),
			Invocation: capability.Native{
				Callback: func(_ context.Context, _ capability.RunContext, args []string) (string, error) {
					return strings.ToUpper(strings.Join(args, " ")), nil
				},
			},
		}},
	}
}

type staticSource struct {
	packages []capability.Package
}

func (s staticSource) Load(context.Context) ([]capability.Package, error) {
	return s.packages, nil
}

type literalScrubber struct{ secret string }

func (s literalScrubber) Track(string) {}

func (s literalScrubber) ScrubString(input string) string {
	return strings.ReplaceAll(input, s.secret, "[REDACTED]")
}

type recordingGatekeeper struct {
	mu    sync.Mutex
	calls int
	add   permissions.Grants
}

func (g *recordingGatekeeper) Resolve(_ context.Context, _ string, _ *capability.Set, given permissions.Grants, _ bool) (permissions.Grants, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return given.Merge(g.add), nil
}

func externalPackage(t *testing.T, ref string) capability.Package {
	t.Helper()
	pkg, err := bridge.BuildPackage(values.MustParsePluginPackageID(ref), "", pingBundle, nil)
	require.NoError(t, err)
	return pkg
}

func newWorkflowService(t *testing.T, cfg WorkflowConfig, opts ...func(*WorkflowService)) (*WorkflowService, *memory.WorkflowRepository) {
	t.Helper()
	repo := memory.NewWorkflowRepository()
	rt := sandbox.NewRuntime(capability.MustNewRegistry(shoutPackage()), nil)
	svc := NewWorkflowService(repo, rt, nil, nil, nil, cfg, nil)
	for _, opt := range opts {
		opt(svc)
	}
	return svc, repo
}

func shoutGrant() permissions.Grants {
	return permissions.Grants{{FunctionID: shoutID, Granted: permissions.NewSet(permissions.New(permissions.KindExecute))}}
}

func TestWorkflowService_SaveCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newWorkflowService(t, WorkflowConfig{})

	generated, err := svc.SaveCode(ctx, dto.SaveCodeRequest{WorkflowID: "wf", Code: "1"})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)
	assert.Equal(t, 1, generated.Revision)

	first, err := svc.SaveCode(ctx, dto.SaveCodeRequest{CodeID: "c1", WorkflowID: "wf", Code: "1"})
	require.NoError(t, err)
	second, err := svc.SaveCode(ctx, dto.SaveCodeRequest{CodeID: "c1", WorkflowID: "wf", Code: "2"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Revision)
	assert.Equal(t, 2, second.Revision)

	_, err = svc.SaveCode(ctx, dto.SaveCodeRequest{WorkflowID: "wf"})
	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestWorkflowService_Run(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newWorkflowService(t, WorkflowConfig{DefaultTimeout: 5 * time.Second})

	_, err := svc.SaveCode(ctx, dto.SaveCodeRequest{
		CodeID:     "c1",
		WorkflowID: "wf",
		Code:       `console.log(shout("hello"))`,
		Grants:     shoutGrant(),
	})
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		resp, err := svc.Run(ctx, dto.RunWorkflowRequest{CodeID: "c1"})
		require.NoError(t, err)
		assert.Equal(t, workflow.ResultSuccess, resp.Result.Type)
		assert.Equal(t, "HELLO\n", resp.Result.Text)
		assert.Equal(t, want, resp.Result.Revision, "revisions increase by one per run")
		assert.NotEmpty(t, resp.RunID)
	}
}

func TestWorkflowService_Run_Denied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newWorkflowService(t, WorkflowConfig{})

	_, err := svc.SaveCode(ctx, dto.SaveCodeRequest{CodeID: "c1", WorkflowID: "wf", Code: `shout("x")`})
	require.NoError(t, err)

	resp, err := svc.Run(ctx, dto.RunWorkflowRequest{CodeID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.ResultFailure, resp.Result.Type)
	assert.Equal(t, 1, resp.Result.ExitCode)
	assert.Contains(t, resp.Result.Text, "Error: ")

	// request grants apply to this run only
	resp, err = svc.Run(ctx, dto.RunWorkflowRequest{CodeID: "c1", Grants: shoutGrant()})
	require.NoError(t, err)
	assert.Equal(t, workflow.ResultSuccess, resp.Result.Type)
	assert.Equal(t, 2, resp.Result.Revision)
}

func TestWorkflowService_Run_NotFound(t *testing.T) {
	t.Parallel()
	svc, _ := newWorkflowService(t, WorkflowConfig{})

	_, err := svc.Run(context.Background(), dto.RunWorkflowRequest{CodeID: "missing"})
	var notFound *apperrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestWorkflowService_Run_DefaultTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newWorkflowService(t, WorkflowConfig{DefaultTimeout: 50 * time.Millisecond})

	_, err := svc.SaveCode(ctx, dto.SaveCodeRequest{CodeID: "spin", WorkflowID: "wf", Code: `for (;;) {}`})
	require.NoError(t, err)

	resp, err := svc.Run(ctx, dto.RunWorkflowRequest{CodeID: "spin"})
	require.NoError(t, err)
	assert.Equal(t, workflow.ResultCancelled, resp.Result.Type)

	stored, err := repo.ListResults(ctx, "spin")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestWorkflowService_Run_ScrubsResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newWorkflowService(t, WorkflowConfig{}, func(s *WorkflowService) {
		s.scrubber = literalScrubber{secret: "hunter2"}
	})

	_, err := svc.SaveCode(ctx, dto.SaveCodeRequest{CodeID: "c1", WorkflowID: "wf", Code: `console.log("pw=hunter2")`})
	require.NoError(t, err)

	resp, err := svc.Run(ctx, dto.RunWorkflowRequest{CodeID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "pw=[REDACTED]\n", resp.Result.Text)

	stored, err := repo.ListResults(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotContains(t, stored[0].Text, "hunter2")
}

func TestWorkflowService_Run_Gatekeeper(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := &recordingGatekeeper{add: shoutGrant()}
	svc, _ := newWorkflowService(t, WorkflowConfig{}, func(s *WorkflowService) {
		s.gatekeeper = gate
	})

	_, err := svc.SaveCode(ctx, dto.SaveCodeRequest{CodeID: "c1", WorkflowID: "wf", Code: `console.log(shout("ok"))`})
	require.NoError(t, err)

	resp, err := svc.Run(ctx, dto.RunWorkflowRequest{CodeID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.ResultSuccess, resp.Result.Type)
	assert.Equal(t, 1, gate.calls)
}

func TestWorkflowService_RunScript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := &recordingGatekeeper{}
	svc, _ := newWorkflowService(t, WorkflowConfig{}, func(s *WorkflowService) {
		s.gatekeeper = gate
	})

	resp, err := svc.RunScript(ctx, dto.RunScriptRequest{
		Name:           "debug.js",
		Code:           `console.log(shout("all"))`,
		AllPermissions: true,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.ResultSuccess, resp.Result.Type)
	assert.Equal(t, "debug.js", resp.Result.CodeID)
	assert.Zero(t, gate.calls, "all-permission runs bypass the gatekeeper")

	resp, err = svc.RunScript(ctx, dto.RunScriptRequest{Name: "debug.js", Code: `shout("none")`})
	require.NoError(t, err)
	assert.Equal(t, workflow.ResultFailure, resp.Result.Type)
	assert.Equal(t, 2, resp.Result.Revision)
	assert.Equal(t, 1, gate.calls)
}

func TestWorkflowService_SelectPackages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	source := staticSource{packages: []capability.Package{
		externalPackage(t, "acme/tools/1.10.0"),
		externalPackage(t, "acme/tools/1.9.0"),
		externalPackage(t, "other/kit/0.1.0"),
	}}
	svc, _ := newWorkflowService(t, WorkflowConfig{}, func(s *WorkflowService) {
		s.packages = source
	})

	tests := []struct {
		name      string
		selectors []string
		want      []string
		wantErr   bool
	}{
		{name: "none", selectors: nil, want: nil},
		{name: "namespace picks highest version", selectors: []string{"acme.tools"}, want: []string{"acme.tools@1.10.0"}},
		{name: "exact id", selectors: []string{"acme/tools/1.9.0"}, want: []string{"acme.tools@1.9.0"}},
		{name: "all", selectors: []string{"*"}, want: []string{"acme.tools@1.10.0", "other.kit@0.1.0"}},
		{name: "duplicates collapse", selectors: []string{"all", "other.kit"}, want: []string{"acme.tools@1.10.0", "other.kit@0.1.0"}},
		{name: "unknown", selectors: []string{"nobody.here"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.selectPackages(ctx, tt.selectors)
			if tt.wantErr {
				var notFound *apperrors.NotFoundError
				assert.ErrorAs(t, err, &notFound)
				return
			}
			require.NoError(t, err)

			var keys []string
			for _, pkg := range got {
				keys = append(keys, pkg.Namespace+"@"+packageVersion(pkg))
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestWorkflowService_Catalog(t *testing.T) {
	t.Parallel()
	svc, _ := newWorkflowService(t, WorkflowConfig{}, func(s *WorkflowService) {
		s.packages = staticSource{packages: []capability.Package{externalPackage(t, "acme/tools/1.0.0")}}
	})

	entries, err := svc.Catalog(context.Background(), []string{"acme.tools"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "test.shout", entries[0].PackageID)
	assert.Equal(t, "acme.tools", entries[1].PackageID)
}

func TestWorkflowService_ListResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newWorkflowService(t, WorkflowConfig{})

	_, err := svc.SaveCode(ctx, dto.SaveCodeRequest{CodeID: "c1", WorkflowID: "wf", Code: `shout("x")`})
	require.NoError(t, err)

	grants := []permissions.Grants{nil, shoutGrant(), nil, shoutGrant()}
	for _, g := range grants {
		_, err := svc.Run(ctx, dto.RunWorkflowRequest{CodeID: "c1", Grants: g})
		require.NoError(t, err)
	}

	all, err := svc.ListResults(ctx, dto.ListResultsRequest{CodeID: "c1"})
	require.NoError(t, err)
	assert.Len(t, all.Results, 4)

	failures, err := svc.ListResults(ctx, dto.ListResultsRequest{CodeID: "c1", Filter: `result_type == "Failure"`})
	require.NoError(t, err)
	require.Len(t, failures.Results, 2)
	assert.Equal(t, 1, failures.Results[0].Revision)
	assert.Equal(t, 3, failures.Results[1].Revision)

	newest, err := svc.ListResults(ctx, dto.ListResultsRequest{CodeID: "c1", Filter: "exit_code == 0", Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest.Results, 1)
	assert.Equal(t, 4, newest.Results[0].Revision)

	_, err = svc.ListResults(ctx, dto.ListResultsRequest{CodeID: "c1", Filter: "revision +"})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "filter", verr.Field)
}

func TestWorkflowService_RunBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newWorkflowService(t, WorkflowConfig{MaxConcurrentRuns: 2})

	ids := []string{"a", "b", "c", "d"}
	reqs := make([]dto.RunWorkflowRequest, len(ids))
	for i, id := range ids {
		_, err := svc.SaveCode(ctx, dto.SaveCodeRequest{
			CodeID:     id,
			WorkflowID: id,
			Code:       `console.log(shout("` + id + `"))`,
			Grants:     shoutGrant(),
		})
		require.NoError(t, err)
		reqs[i] = dto.RunWorkflowRequest{CodeID: id}
	}

	responses, err := svc.RunBatch(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, responses, len(ids))
	for i, resp := range responses {
		assert.Equal(t, ids[i], resp.Result.CodeID)
		assert.Equal(t, strings.ToUpper(ids[i])+"\n", resp.Result.Text)
	}

	reqs = append(reqs, dto.RunWorkflowRequest{CodeID: "missing"})
	_, err = svc.RunBatch(ctx, reqs)
	assert.Error(t, err)
}
