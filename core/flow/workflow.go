// Package flow models a simulation workflow as an ordered list of gated operations.
package flow

import (
	"context"

	"ellipflow/core/models"
	"ellipflow/core/repository"
	"ellipflow/core/spec"
	"ellipflow/simulation"
	"ellipflow/storage"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrUnknownOperation is returned when an operation name is not part of the workflow
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrNotEligible is returned when an operation's gates do not admit a job
	ErrNotEligible = errors.New("operation not eligible")
)

// StageContext is everything an operation needs to run one stage on one job
type StageContext struct {
	Job         *repository.Job
	Statepoint  models.Statepoint
	Document    models.Document // a private copy; the action returns the updated one
	RunID       string
	Project     *spec.Project
	Engine      simulation.Engine
	Checkpoints *storage.CheckpointManager
	Staging     *storage.Staging
	Logger      *log.Entry
}

// Action performs a stage and returns the updated document. It must not write the
// document itself and must stage checkpoints through StageContext.Staging.
type Action func(ctx context.Context, sc *StageContext) (models.Document, error)

// Operation is one named, gated stage of a workflow
type Operation struct {
	Name       string
	Pre        []Condition
	Post       []Condition
	Directives models.Directives
	Action     Action
}

// Eligible reports whether every precondition holds and not every postcondition holds.
// An operation without postconditions is eligible whenever its preconditions hold.
func (op *Operation) Eligible(job *repository.Job) (bool, error) {
	pre, err := all(job, op.Pre)
	if err != nil || !pre {
		return false, err
	}
	if len(op.Post) == 0 {
		return true, nil
	}
	post, err := all(job, op.Post)
	if err != nil {
		return false, err
	}
	return !post, nil
}

// Workflow is an ordered list of operations plus the condition that marks a built system
type Workflow struct {
	Name       string
	Built      Condition
	Operations []*Operation
}

// Operation looks up an operation by name
func (w *Workflow) Operation(name string) (*Operation, error) {
	for _, op := range w.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownOperation, "%s has no operation %q", w.Name, name)
}

// Names returns the operation names in declaration order
func (w *Workflow) Names() []string {
	names := make([]string, len(w.Operations))
	for i, op := range w.Operations {
		names[i] = op.Name
	}
	return names
}

// Eligible returns every operation the job is eligible for, in declaration order
func (w *Workflow) Eligible(job *repository.Job) ([]*Operation, error) {
	var ops []*Operation
	for _, op := range w.Operations {
		ok, err := op.Eligible(job)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to evaluate %s for job %s", op.Name, job.ID)
		}
		if ok {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// Check returns the named operation if the job is eligible for it
func (w *Workflow) Check(job *repository.Job, name string) (*Operation, error) {
	op, err := w.Operation(name)
	if err != nil {
		return nil, err
	}
	ok, err := op.Eligible(job)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrNotEligible, "%s for job %s", name, job.ID)
	}
	return op, nil
}

// State maps the job's labels to its furthest workflow state
func (w *Workflow) State(job *repository.Job) (models.State, error) {
	ladder := []struct {
		cond  Condition
		state models.State
	}{
		{ProductionExtended, models.StateProductionExtended},
		{ProductionDone, models.StateProductionDone},
		{Equilibrated, models.StateEquilibrated},
		{InitialRunDone, models.StateInitialRunDone},
		{w.Built, models.StateBuilt},
	}
	for _, rung := range ladder {
		if rung.cond.Check == nil {
			continue
		}
		ok, err := rung.cond.Check(job)
		if err != nil {
			return "", errors.Wrapf(err, "failed to evaluate %s for job %s", rung.cond.Name, job.ID)
		}
		if ok {
			return rung.state, nil
		}
	}
	return models.StateUninitialized, nil
}

// Labels returns the names of every label that currently holds for the job
func (w *Workflow) Labels(job *repository.Job) ([]string, error) {
	var labels []string
	for _, c := range []Condition{w.Built, InitialRunDone, Equilibrated, ProductionDone, ProductionExtended} {
		if c.Check == nil {
			continue
		}
		ok, err := c.Check(job)
		if err != nil {
			return nil, err
		}
		if ok {
			labels = append(labels, c.Name)
		}
	}
	return labels, nil
}
