package executor

import (
	"context"
	"time"

	"ellipflow/core/flow"
	"ellipflow/core/models"
	"ellipflow/core/repository"
	"ellipflow/core/spec"
	"ellipflow/simulation"
	"ellipflow/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// EventStore is the ledger side of stage execution
type EventStore interface {
	CreateJobEvent(ctx context.Context, event *models.JobEvent) error
}

// StageExecutor executes one operation of a workflow on one job
type StageExecutor struct {
	workflow    *flow.Workflow
	project     *spec.Project
	engine      simulation.Engine
	checkpoints *storage.CheckpointManager
	events      EventStore
}

// NewStageExecutor creates a new stage executor. events may be nil.
func NewStageExecutor(
	workflow *flow.Workflow,
	project *spec.Project,
	engine simulation.Engine,
	checkpoints *storage.CheckpointManager,
	events EventStore,
) *StageExecutor {
	return &StageExecutor{
		workflow:    workflow,
		project:     project,
		engine:      engine,
		checkpoints: checkpoints,
		events:      events,
	}
}

// Workflow returns the workflow the executor runs
func (e *StageExecutor) Workflow() *flow.Workflow {
	return e.workflow
}

// ExecuteStage runs op on job without consulting its gates. On success the staged
// checkpoints are committed before the returned document is saved; on failure the staged
// files are discarded and the document is left as it was.
func (e *StageExecutor) ExecuteStage(ctx context.Context, job *repository.Job, op *flow.Operation) error {
	runID := uuid.New().String()
	logger := log.WithFields(log.Fields{
		"job_id":    job.ID,
		"operation": op.Name,
		"run_id":    runID,
	})

	doc, err := job.Document()
	if err != nil {
		return err
	}
	fromState, err := e.workflow.State(job)
	if err != nil {
		return err
	}

	logger.Infof("Executing %s on job %s", op.Name, job.ID)
	e.record(ctx, logger, &models.JobEvent{
		JobID:     job.ID,
		RunID:     runID,
		Operation: op.Name,
		FromState: &fromState,
		ToState:   fromState,
		Reason:    models.ReasonStarted,
	})

	staging := e.checkpoints.Begin(job, runID)
	sc := &flow.StageContext{
		Job:         job,
		Statepoint:  job.Statepoint(),
		Document:    doc.Clone(),
		RunID:       runID,
		Project:     e.project,
		Engine:      e.engine,
		Checkpoints: e.checkpoints,
		Staging:     staging,
		Logger:      logger,
	}

	started := time.Now()
	updated, err := op.Action(ctx, sc)
	if err == nil {
		_, err = staging.Commit(ctx)
	}
	if err != nil {
		staging.Discard()
		logger.WithError(err).Errorf("Operation %s failed for job %s", op.Name, job.ID)
		e.record(ctx, logger, &models.JobEvent{
			JobID:     job.ID,
			RunID:     runID,
			Operation: op.Name,
			FromState: &fromState,
			ToState:   fromState,
			Reason:    models.ReasonFailed,
			MetaJSON:  map[string]interface{}{"error": err.Error()},
		})
		return errors.Wrapf(err, "%s failed for job %s", op.Name, job.ID)
	}

	elapsed := time.Since(started)
	completedAt := time.Now().UTC()
	updated.LastOperation = op.Name
	updated.LastRunID = runID
	updated.LastCompletedAt = &completedAt
	if updated.Walltime == nil {
		updated.Walltime = map[string]float64{}
	}
	updated.Walltime[op.Name] += elapsed.Seconds()

	if err := job.SaveDocument(updated); err != nil {
		return errors.Wrapf(err, "checkpoints of %s committed but document not saved for job %s", op.Name, job.ID)
	}

	toState, err := e.workflow.State(job)
	if err != nil {
		return err
	}
	e.record(ctx, logger, &models.JobEvent{
		JobID:     job.ID,
		RunID:     runID,
		Operation: op.Name,
		FromState: &fromState,
		ToState:   toState,
		Reason:    models.ReasonCompleted,
		MetaJSON:  map[string]interface{}{"walltime_seconds": elapsed.Seconds()},
	})
	logger.WithField("state", toState).Infof("Operation %s completed for job %s", op.Name, job.ID)
	return nil
}

// record writes an event to the ledger. Ledger failures are logged and never fail a stage.
func (e *StageExecutor) record(ctx context.Context, logger *log.Entry, event *models.JobEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.CreateJobEvent(ctx, event); err != nil {
		logger.WithError(err).Warn("Failed to record job event")
	}
}
