package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"ellipflow/core/models"
	"ellipflow/core/repository"
	"ellipflow/simulation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Checkpoint and bookkeeping file names inside a job directory
const (
	InitFrame         = "init_frame.gsd"
	ShrinkRestart     = "shrink_restart.gsd"
	Restart           = "restart.gsd"
	ProductionRestart = "production-restart.gsd"
	ForcefieldFile    = "forcefield.json"
)

// ErrCheckpointMissing is returned when a stage's input checkpoint does not exist
var ErrCheckpointMissing = errors.New("checkpoint missing")

// ArtifactStore is the ledger side of checkpoint bookkeeping
type ArtifactStore interface {
	CreateArtifact(ctx context.Context, jobID, runID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error
	GetJobArtifacts(ctx context.Context, jobID string, artifactType *models.ArtifactType) ([]models.JobArtifact, error)
}

// CheckpointManager manages checkpoint staging, commit and lookup
type CheckpointManager struct {
	artifactRepo ArtifactStore
}

// NewCheckpointManager creates a new checkpoint manager. artifactRepo may be nil,
// in which case nothing is recorded in the ledger.
func NewCheckpointManager(artifactRepo ArtifactStore) *CheckpointManager {
	return &CheckpointManager{
		artifactRepo: artifactRepo,
	}
}

// Begin opens a staging area for one stage execution
func (cm *CheckpointManager) Begin(job *repository.Job, runID string) *Staging {
	return &Staging{
		cm:      cm,
		job:     job,
		runID:   runID,
		pending: map[string]string{},
		types:   map[string]models.ArtifactType{},
		gates:   map[string]bool{},
	}
}

// Require returns the path of an existing checkpoint
func (cm *CheckpointManager) Require(job *repository.Job, name string) (string, error) {
	if !job.IsFile(name) {
		return "", errors.Wrapf(ErrCheckpointMissing, "job %s has no %s", job.ID, name)
	}
	return job.Fn(name), nil
}

// LoadForcefield deserializes the force field written by the first stage
func (cm *CheckpointManager) LoadForcefield(job *repository.Job) (simulation.Forcefield, error) {
	var ff simulation.Forcefield
	path, err := cm.Require(job, ForcefieldFile)
	if err != nil {
		return ff, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ff, errors.Wrapf(err, "failed to read force field of job %s", job.ID)
	}
	if err := json.Unmarshal(data, &ff); err != nil {
		return ff, errors.Wrapf(err, "failed to decode force field of job %s", job.ID)
	}
	return ff, nil
}

// GetLatestCheckpoint retrieves the most recently committed checkpoint for a job
func (cm *CheckpointManager) GetLatestCheckpoint(ctx context.Context, jobID string) (string, error) {
	checkpoints, err := cm.ListCheckpoints(ctx, jobID)
	if err != nil {
		return "", err
	}
	if len(checkpoints) == 0 {
		return "", errors.Wrapf(ErrCheckpointMissing, "no checkpoint recorded for job %s", jobID)
	}
	// newest first
	return checkpoints[0].URI, nil
}

// ListCheckpoints lists all committed checkpoints for a job, newest first
func (cm *CheckpointManager) ListCheckpoints(ctx context.Context, jobID string) ([]models.JobArtifact, error) {
	if cm.artifactRepo == nil {
		return nil, nil
	}
	checkpointType := models.ArtifactTypeCheckpoint
	return cm.artifactRepo.GetJobArtifacts(ctx, jobID, &checkpointType)
}

// Staging collects a stage's outputs under temporary names so that a failed stage
// leaves the previous checkpoints untouched
type Staging struct {
	cm      *CheckpointManager
	job     *repository.Job
	runID   string
	pending map[string]string // final name -> temporary path
	order   []string
	types   map[string]models.ArtifactType
	gates   map[string]bool // committed after every other staged file
	outputs []string        // written in place, recorded if present after commit
}

// Path returns the temporary path a checkpoint should be written to
func (s *Staging) Path(name string) string {
	if tmp, ok := s.pending[name]; ok {
		return tmp
	}
	ext := filepath.Ext(name)
	tmp := s.job.Fn(strings.TrimSuffix(name, ext) + ".partial" + ext)
	s.pending[name] = tmp
	s.order = append(s.order, name)
	s.types[name] = models.ArtifactTypeCheckpoint
	return tmp
}

// Gate marks a staged checkpoint whose presence advances the job's workflow state. Gates
// are renamed last, so a commit that fails part way never advances the state without the
// files that state implies.
func (s *Staging) Gate(name string) string {
	path := s.Path(name)
	s.gates[name] = true
	return path
}

// SaveForcefield stages the serialized force-field description
func (s *Staging) SaveForcefield(ff simulation.Forcefield) error {
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode force field")
	}
	path := s.Path(ForcefieldFile)
	s.types[ForcefieldFile] = models.ArtifactTypeForcefield
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write force field of job %s", s.job.ID)
	}
	return nil
}

// Output registers a trajectory or log file written directly by the engine
func (s *Staging) Output(name string) string {
	s.outputs = append(s.outputs, name)
	return s.job.Fn(name)
}

// Commit moves every staged file into place and records them in the ledger.
// Staged files the engine never wrote are reported as missing and nothing is moved.
func (s *Staging) Commit(ctx context.Context) ([]string, error) {
	for _, name := range s.order {
		if _, err := os.Stat(s.pending[name]); err != nil {
			return nil, errors.Wrapf(ErrCheckpointMissing, "stage did not write %s for job %s", name, s.job.ID)
		}
	}

	committed := make([]string, 0, len(s.order))
	for _, name := range s.commitOrder() {
		if err := os.Rename(s.pending[name], s.job.Fn(name)); err != nil {
			return committed, errors.Wrapf(err, "failed to commit %s for job %s", name, s.job.ID)
		}
		committed = append(committed, name)
	}
	s.pending = map[string]string{}

	s.recordArtifacts(ctx, committed)
	return committed, nil
}

// commitOrder is staging order with gates moved to the end
func (s *Staging) commitOrder() []string {
	order := make([]string, 0, len(s.order))
	for _, name := range s.order {
		if !s.gates[name] {
			order = append(order, name)
		}
	}
	for _, name := range s.order {
		if s.gates[name] {
			order = append(order, name)
		}
	}
	return order
}

// recordArtifacts adds committed checkpoints and stage outputs to the ledger. The files
// are already in place, so ledger failures are only logged.
func (s *Staging) recordArtifacts(ctx context.Context, committed []string) {
	if s.cm.artifactRepo == nil {
		return
	}
	record := func(artifactType models.ArtifactType, name string) {
		err := s.cm.artifactRepo.CreateArtifact(ctx, s.job.ID, s.runID, artifactType, s.job.Fn(name), nil)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"job_id": s.job.ID, "run_id": s.runID}).Warnf("Failed to record artifact %s", name)
		}
	}
	for _, name := range committed {
		record(s.types[name], name)
	}
	for _, name := range s.outputs {
		if s.job.IsFile(name) {
			record(outputType(name), name)
		}
	}
}

// Discard removes staged files that were not committed
func (s *Staging) Discard() {
	for _, tmp := range s.pending {
		_ = os.Remove(tmp)
	}
	s.pending = map[string]string{}
}

func outputType(name string) models.ArtifactType {
	if filepath.Ext(name) == ".gsd" {
		return models.ArtifactTypeTrajectory
	}
	return models.ArtifactTypeLog
}
