package memory

import (
	"context"
	"testing"
	"time"

	"github.com/reglet-dev/flowgate/internal/domain/repositories"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginRepository_Lifecycle(t *testing.T) {
	repo := NewPluginRepository()
	ctx := context.Background()
	id := values.MustParsePluginPackageID("acme/tools/1.0.0")

	row := &repositories.InstalledPlugin{
		ID:          id,
		InstallDir:  "/plugins/acme/tools/1.0.0",
		Status:      repositories.PluginStatusPending,
		InstalledAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, row))
	require.ErrorIs(t, repo.Create(ctx, row), repositories.ErrAlreadyExists)

	require.NoError(t, repo.SetStatus(ctx, id, repositories.PluginStatusInstalled))
	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Loadable())

	require.NoError(t, repo.SetMissing(ctx, id, true))
	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Loadable())

	rows, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, id), repositories.ErrNotFound)
	assert.ErrorIs(t, repo.SetMissing(ctx, id, false), repositories.ErrNotFound)
}
