package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

func writeDirectory(t *testing.T, path, data string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestReloader_CheckNow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staff.yaml")
	start := time.Now().Add(-time.Hour)
	writeDirectory(t, path, sampleDirectory, start)

	a := newTestAuthorizer(t, sampleDirectory)
	r := NewReloader(path, time.Hour, a, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	reloaded, err := r.CheckNow()
	require.NoError(t, err)
	assert.False(t, reloaded)

	writeDirectory(t, path, `
members:
  - identity: maria.treasurer
    barangay: brgy-san-roque
    roles: [CHAIRMAN]
`, start.Add(time.Minute))

	reloaded, err = r.CheckNow()
	require.NoError(t, err)
	assert.True(t, reloaded)

	ok, err := a.HasRole(context.Background(), "maria.treasurer", workflow.RoleChairman)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReloader_KeepsAssignmentsOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staff.yaml")
	start := time.Now().Add(-time.Hour)
	writeDirectory(t, path, sampleDirectory, start)

	a := newTestAuthorizer(t, sampleDirectory)
	r := NewReloader(path, time.Hour, a, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	writeDirectory(t, path, "members:\n  - {identity: a, roles: [MAYOR]}\n", start.Add(time.Minute))

	reloaded, err := r.CheckNow()
	assert.ErrorContains(t, err, "unknown role")
	assert.False(t, reloaded)

	ok, err := a.HasRole(context.Background(), "maria.treasurer", workflow.RoleTreasurer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReloader_StartRequiresFile(t *testing.T) {
	a := newTestAuthorizer(t, sampleDirectory)
	r := NewReloader(filepath.Join(t.TempDir(), "missing.yaml"), 0, a, zap.NewNop())

	assert.Error(t, r.Start(context.Background()))
	assert.NoError(t, r.Stop())
}

func TestReloader_StartTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staff.yaml")
	writeDirectory(t, path, sampleDirectory, time.Now())

	r := NewReloader(path, time.Millisecond, newTestAuthorizer(t, sampleDirectory), zap.NewNop())
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	assert.NoError(t, r.Stop())
	assert.NoError(t, r.Stop())
}
