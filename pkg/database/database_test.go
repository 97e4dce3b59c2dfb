package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), Config{
		Path:         filepath.Join(t.TempDir(), "lifecycle.db"),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfigDSN(t *testing.T) {
	dsn := Config{Path: "/tmp/x.db"}.DSN()
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=5000")

	dsn = Config{Path: "/tmp/x.db", BusyTimeout: 250 * time.Millisecond}.DSN()
	assert.Contains(t, dsn, "_busy_timeout=250")
}

func TestMigratorRunsEmbeddedSchemaOnce(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	m := NewMigrator(db, zap.NewNop())

	migrations, err := m.Load()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "requests", migrations[0].Name)
	assert.Equal(t, "request_history", migrations[1].Name)

	ran, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)

	ran, err = m.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true}, applied)
}

func TestSchemaTriggers(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	_, err := NewMigrator(db, zap.NewNop()).Run(ctx)
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `INSERT INTO requests (id, type, status, barangay_id, requester_identity, created_at, updated_at)
		VALUES ('r1', 'BLOTTER_REPORT', 'PENDING', 'b1', 'res', ?, ?)`, now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE requests SET or_number = 'OR-1', approver_identity = 't1' WHERE id = 'r1'`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE requests SET or_number = 'OR-2' WHERE id = 'r1'`)
	assert.ErrorContains(t, err, "write-once")

	_, err = db.ExecContext(ctx, `UPDATE requests SET approver_identity = 'other' WHERE id = 'r1'`)
	assert.ErrorContains(t, err, "write-once")

	// Re-writing the same values is allowed.
	_, err = db.ExecContext(ctx, `UPDATE requests SET or_number = 'OR-1', status = 'UNDER_INVESTIGATION' WHERE id = 'r1'`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO request_history (request_id, sequence, from_status, to_status, actor_role, actor_identity, occurred_at)
		VALUES ('r1', 1, 'PENDING', 'UNDER_INVESTIGATION', 'TREASURER', 't1', ?)`, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE request_history SET remarks = 'x'`)
	assert.ErrorContains(t, err, "append-only")

	_, err = db.ExecContext(ctx, `DELETE FROM request_history`)
	assert.ErrorContains(t, err, "append-only")
}

func TestMigratorRejectsBadFiles(t *testing.T) {
	db := openTemp(t)

	bad := NewMigratorFS(db, fstest.MapFS{
		"notes.sql": {Data: []byte("SELECT 1;")},
	}, zap.NewNop())
	_, err := bad.Load()
	assert.ErrorContains(t, err, "invalid migration filename")

	dup := NewMigratorFS(db, fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}, zap.NewNop())
	_, err = dup.Load()
	assert.ErrorContains(t, err, "migration version 1")
}

func TestMigrationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	m := NewMigratorFS(db, fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE b (id INTEGER); THIS IS NOT SQL;")},
	}, zap.NewNop())

	ran, err := m.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, ran)

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true}, applied)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'b'`).Scan(&count))
	assert.Zero(t, count)
}
