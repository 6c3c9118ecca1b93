package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ellipflow/core/models"
	"ellipflow/core/repository"
	"ellipflow/simulation"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(t *testing.T) *repository.Job {
	t.Helper()
	ws, err := repository.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	job, err := ws.OpenJob(models.Statepoint{"kT": 1.0})
	require.NoError(t, err)
	require.NoError(t, job.Init())
	return job
}

func newTestArtifacts(t *testing.T) *repository.ArtifactRepository {
	t.Helper()
	db, err := repository.NewDB(context.Background(), repository.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewArtifactRepository(db)
}

func TestStaging_CommitMovesFilesAndRecordsArtifacts(t *testing.T) {
	ctx := context.Background()
	job := newTestJob(t)
	cm := NewCheckpointManager(newTestArtifacts(t))

	staging := cm.Begin(job, "run-1")
	tmp := staging.Path(Restart)
	assert.Equal(t, job.Fn("restart.partial.gsd"), tmp)
	assert.Equal(t, tmp, staging.Path(Restart))
	require.NoError(t, os.WriteFile(tmp, []byte("frame"), 0o644))
	require.NoError(t, staging.SaveForcefield(simulation.Forcefield{Kind: simulation.ForcefieldEllipsoid, Epsilon: 1}))
	traj := staging.Output("trajectory0.gsd")
	require.NoError(t, os.WriteFile(traj, []byte("traj"), 0o644))

	assert.False(t, job.IsFile(Restart))

	committed, err := staging.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{Restart, ForcefieldFile}, committed)
	assert.True(t, job.IsFile(Restart))
	assert.True(t, job.IsFile(ForcefieldFile))
	assert.False(t, job.IsFile("restart.partial.gsd"))

	latest, err := cm.GetLatestCheckpoint(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Fn(Restart), latest)

	ff, err := cm.LoadForcefield(job)
	require.NoError(t, err)
	assert.Equal(t, simulation.ForcefieldEllipsoid, ff.Kind)
	assert.Equal(t, 1.0, ff.Epsilon)
}

func TestStaging_DiscardKeepsPreviousCheckpoint(t *testing.T) {
	job := newTestJob(t)
	require.NoError(t, os.WriteFile(job.Fn(Restart), []byte("previous"), 0o644))

	cm := NewCheckpointManager(nil)
	staging := cm.Begin(job, "run-2")
	require.NoError(t, os.WriteFile(staging.Path(Restart), []byte("half written"), 0o644))
	staging.Discard()

	data, err := os.ReadFile(job.Fn(Restart))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	assert.False(t, job.IsFile("restart.partial.gsd"))
}

func TestStaging_CommitFailsWhenOutputMissing(t *testing.T) {
	job := newTestJob(t)
	cm := NewCheckpointManager(nil)
	staging := cm.Begin(job, "run-3")
	staging.Path(ShrinkRestart)
	require.NoError(t, os.WriteFile(staging.Path(Restart), []byte("x"), 0o644))

	_, err := staging.Commit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCheckpointMissing))
	// nothing moved
	assert.False(t, job.IsFile(Restart))
}

func TestRequire(t *testing.T) {
	job := newTestJob(t)
	cm := NewCheckpointManager(nil)

	_, err := cm.Require(job, ProductionRestart)
	assert.True(t, errors.Is(err, ErrCheckpointMissing))

	_, err = cm.LoadForcefield(job)
	assert.True(t, errors.Is(err, ErrCheckpointMissing))

	require.NoError(t, os.WriteFile(job.Fn(ProductionRestart), nil, 0o644))
	path, err := cm.Require(job, ProductionRestart)
	require.NoError(t, err)
	assert.Equal(t, job.Fn(ProductionRestart), path)
}

func TestGetLatestCheckpoint_NoLedger(t *testing.T) {
	cm := NewCheckpointManager(nil)
	_, err := cm.GetLatestCheckpoint(context.Background(), "job")
	assert.True(t, errors.Is(err, ErrCheckpointMissing))
}

func TestStaging_CommitRenamesGatesLast(t *testing.T) {
	job := newTestJob(t)
	cm := NewCheckpointManager(nil)
	staging := cm.Begin(job, "run-4")

	frame := staging.Gate(InitFrame)
	assert.Equal(t, job.Fn("init_frame.partial.gsd"), frame)
	require.NoError(t, os.WriteFile(frame, []byte("frame"), 0o644))
	require.NoError(t, os.WriteFile(staging.Path(Restart), []byte("restart"), 0o644))

	committed, err := staging.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{Restart, InitFrame}, committed)
	assert.True(t, job.IsFile(InitFrame))
	assert.True(t, job.IsFile(Restart))
}

func TestStaging_FailedCommitLeavesGateUnset(t *testing.T) {
	job := newTestJob(t)
	cm := NewCheckpointManager(nil)
	staging := cm.Begin(job, "run-5")

	require.NoError(t, os.WriteFile(staging.Gate(InitFrame), []byte("frame"), 0o644))
	require.NoError(t, os.WriteFile(staging.Path(Restart), []byte("restart"), 0o644))
	// a non-empty directory in place of the gate makes its rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(job.Fn(InitFrame), "keep"), 0o755))

	committed, err := staging.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{Restart}, committed)
	assert.True(t, job.IsFile(Restart))
	assert.False(t, job.IsFile(InitFrame))
}
