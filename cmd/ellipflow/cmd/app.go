package cmd

import (
	"context"
	"encoding/json"
	"io"

	"ellipflow/config"
	"ellipflow/core/executor"
	"ellipflow/core/flow"
	"ellipflow/core/models"
	"ellipflow/core/repository"
	"ellipflow/core/scheduler"
	"ellipflow/core/spec"
	"ellipflow/core/stages"
	"ellipflow/simulation"
	"ellipflow/simulation/flowermd"
	"ellipflow/storage"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// newEngine builds the simulation engine the CLI runs stages with
var newEngine = func(cfg *config.Config) simulation.Engine {
	return flowermd.NewEngine(cfg.Engine.Python, cfg.Engine.Args)
}

// app is the wiring shared by every command
type app struct {
	cfg       *config.Config
	project   *spec.Project
	workspace *repository.Workspace
	workflow  *flow.Workflow
	db        *repository.DB
	events    *repository.EventRepository
	artifacts *repository.ArtifactRepository
}

func loadApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	project, err := spec.LoadProject(cfg.Project)
	if err != nil {
		return nil, err
	}
	workflow, err := stages.Workflow(project)
	if err != nil {
		return nil, err
	}
	ws, err := repository.NewWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	db, err := repository.NewDB(ctx, cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:       cfg,
		project:   project,
		workspace: ws,
		workflow:  workflow,
		db:        db,
		events:    repository.NewEventRepository(db),
		artifacts: repository.NewArtifactRepository(db),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("Failed to close ledger")
	}
}

// jobs resolves job ids, or returns every job when none are given
func (a *app) jobs(ids []string) ([]*repository.Job, error) {
	if len(ids) == 0 {
		return a.workspace.Jobs()
	}
	jobs := make([]*repository.Job, 0, len(ids))
	for _, id := range ids {
		job, err := a.workspace.Job(id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (a *app) scheduler() *scheduler.Scheduler {
	cm := storage.NewCheckpointManager(a.artifacts)
	ex := executor.NewStageExecutor(a.workflow, a.project, newEngine(a.cfg), cm, a.events)
	return scheduler.NewScheduler(ex)
}

// recordEvent writes a ledger event outside stage execution
func (a *app) recordEvent(ctx context.Context, job *repository.Job, reason models.EventReason, meta map[string]interface{}) {
	state, err := a.workflow.State(job)
	if err != nil {
		log.WithError(err).WithField("job_id", job.ID).Warn("Failed to evaluate job state")
		return
	}
	event := &models.JobEvent{JobID: job.ID, ToState: state, Reason: reason, MetaJSON: meta}
	if err := a.events.CreateJobEvent(ctx, event); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Warn("Failed to record job event")
	}
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
