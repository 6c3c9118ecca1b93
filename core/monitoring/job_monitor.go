package monitoring

import (
	"context"

	"ellipflow/core/flow"
	"ellipflow/core/models"
	"ellipflow/core/repository"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// EventSource is the ledger side of status reporting
type EventSource interface {
	GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error)
}

// JobMonitor reports where every job stands in its workflow
type JobMonitor struct {
	workflow *flow.Workflow
	events   EventSource
}

// NewJobMonitor creates a new job monitor. events may be nil.
func NewJobMonitor(workflow *flow.Workflow, events EventSource) *JobMonitor {
	return &JobMonitor{
		workflow: workflow,
		events:   events,
	}
}

// JobStatus is the status of a single job
type JobStatus struct {
	JobID          string
	Statepoint     models.Statepoint
	State          models.State
	Labels         []string
	Eligible       []string
	Runs           int
	ProductionRuns int
	LastEvent      *models.JobEvent
}

// StatusReport is the status of a set of jobs
type StatusReport struct {
	Jobs   []JobStatus
	Counts map[models.State]int
	Usage  *Usage
}

// Collect evaluates every job's labels and eligible operations
func (jm *JobMonitor) Collect(ctx context.Context, jobs []*repository.Job) (*StatusReport, error) {
	report := &StatusReport{
		Jobs:   make([]JobStatus, 0, len(jobs)),
		Counts: make(map[models.State]int, len(models.States)),
		Usage:  NewUsage(),
	}
	for _, job := range jobs {
		status, doc, err := jm.checkJob(ctx, job)
		if err != nil {
			return nil, err
		}
		report.Jobs = append(report.Jobs, *status)
		report.Counts[status.State]++
		report.Usage.Add(jm.workflow, doc)
	}
	return report, nil
}

// checkJob evaluates one job
func (jm *JobMonitor) checkJob(ctx context.Context, job *repository.Job) (*JobStatus, models.Document, error) {
	doc, err := job.Document()
	if err != nil {
		return nil, doc, err
	}
	state, err := jm.workflow.State(job)
	if err != nil {
		return nil, doc, err
	}
	labels, err := jm.workflow.Labels(job)
	if err != nil {
		return nil, doc, errors.Wrapf(err, "failed to evaluate labels of job %s", job.ID)
	}
	eligible, err := jm.workflow.Eligible(job)
	if err != nil {
		return nil, doc, err
	}

	status := &JobStatus{
		JobID:          job.ID,
		Statepoint:     job.Statepoint(),
		State:          state,
		Labels:         labels,
		Eligible:       make([]string, 0, len(eligible)),
		Runs:           doc.Runs,
		ProductionRuns: doc.ProductionRuns,
	}
	for _, op := range eligible {
		status.Eligible = append(status.Eligible, op.Name)
	}

	if jm.events != nil {
		events, err := jm.events.GetJobEvents(ctx, job.ID, 1)
		if err != nil {
			// the ledger is advisory; status still comes from the workspace
			log.WithError(err).WithField("job_id", job.ID).Warn("Failed to fetch last event")
		} else if len(events) > 0 {
			status.LastEvent = &events[0]
		}
	}
	return status, doc, nil
}
