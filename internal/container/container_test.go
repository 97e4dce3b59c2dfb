package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

const staffYAML = `
resident_self_service: true
members:
  - identity: treasurer-1
    barangay: brgy-1
    roles: [TREASURER]
  - identity: secretary-1
    barangay: brgy-1
    roles: [SECRETARY]
`

func testConfig(t *testing.T, storage string) *Config {
	t.Helper()
	dir := t.TempDir()
	staff := filepath.Join(dir, "staff.yaml")
	require.NoError(t, os.WriteFile(staff, []byte(staffYAML), 0o600))

	cfg := DefaultConfig()
	cfg.Storage = storage
	cfg.Database.Path = filepath.Join(dir, "barangay.db")
	cfg.Authz.StaffDirectory = staff
	cfg.Authz.ReloadInterval = time.Hour
	cfg.Engine.RetryBackoff = time.Millisecond
	return cfg
}

func runClearance(t *testing.T, engine workflow.LifecycleEngine) *entity.RequestRecord {
	t.Helper()
	ctx := context.Background()

	rec, err := engine.CreateRequest(ctx, workflow.NewRequest{
		Type:              domainwf.TypeBarangayClearance,
		BarangayID:        "brgy-1",
		RequesterIdentity: "juan",
	})
	require.NoError(t, err)

	rec, err = engine.Apply(ctx, workflow.TransitionRequest{
		RequestID:       rec.ID,
		ExpectedVersion: 0,
		ActorRole:       domainwf.RoleTreasurer,
		ActorIdentity:   "treasurer-1",
		TargetStatus:    domainwf.StatusApproved,
		SideData:        entity.SideData{ORNumber: "OR-77"},
	})
	require.NoError(t, err)

	rec, err = engine.Apply(ctx, workflow.TransitionRequest{
		RequestID:       rec.ID,
		ExpectedVersion: 1,
		ActorRole:       domainwf.RoleSecretary,
		ActorIdentity:   "secretary-1",
		TargetStatus:    domainwf.StatusForPickup,
	})
	require.NoError(t, err)
	return rec
}

func TestContainer_Lifecycle(t *testing.T) {
	for _, storage := range []string{StorageMemory, StorageSQLite} {
		t.Run(storage, func(t *testing.T) {
			c, err := NewContainer(testConfig(t, storage), zap.NewNop())
			require.NoError(t, err)
			require.NoError(t, c.Start(context.Background()))
			assert.True(t, c.Ready())

			rec := runClearance(t, c.Engine())
			assert.Equal(t, domainwf.StatusForPickup, rec.Status)
			assert.Equal(t, int64(2), rec.Version)
			assert.Equal(t, "OR-77", rec.ORNumberValue())
			assert.Len(t, rec.History, 2)

			history, err := c.History().GetByRequestID(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.Len(t, history, 2)

			require.NotNil(t, c.Metrics())
			series, err := testutil.GatherAndCount(c.Metrics().Registry(), "barangay_lifecycle_apply_total")
			require.NoError(t, err)
			assert.Equal(t, 2, series)

			health := c.Health(context.Background())
			assert.True(t, health.Overall, "%+v", health.Components)
			assert.Equal(t, []string{"staff-directory-reloader"}, c.Workers().Names())

			require.NoError(t, c.Close())
			assert.False(t, c.Ready())
			assert.Error(t, c.Close())
			assert.Error(t, c.Start(context.Background()))
		})
	}
}

func TestContainer_StartFailsWithoutStaffDirectory(t *testing.T) {
	cfg := testConfig(t, StorageMemory)
	cfg.Authz.StaffDirectory = filepath.Join(t.TempDir(), "missing.yaml")

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	assert.ErrorContains(t, err, "failed to initialize authorization")
	assert.False(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t, StorageMemory)
	cfg.MetricsEnabled = false
	cfg.Authz.ReloadInterval = 0

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Nil(t, c.Metrics())
	assert.Empty(t, c.Workers().Names())
	runClearance(t, c.Engine())
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Storage = "postgres"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown storage driver")

	cfg = DefaultConfig()
	cfg.Audit.RedisAddr = "localhost:6379"
	cfg.Audit.RedisStream = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "audit.redis_stream")
}
