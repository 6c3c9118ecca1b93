package scheduler

import (
	"context"
	"sync"

	"ellipflow/core/executor"
	"ellipflow/core/flow"
	"ellipflow/core/repository"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunOptions restrict and pace a Run
type RunOptions struct {
	Operations []string // only these operations, when non-empty
	Parallel   int      // jobs processed concurrently; <1 means 1
	NumPasses  int      // executions of one operation per job per Run; <1 means 1
}

// Execution is one operation executed, or planned, on one job
type Execution struct {
	JobID     string
	Operation string
}

// Scheduler drives jobs through their workflow
type Scheduler struct {
	executor *executor.StageExecutor
	workflow *flow.Workflow
}

// NewScheduler creates a new scheduler
func NewScheduler(executor *executor.StageExecutor) *Scheduler {
	return &Scheduler{
		executor: executor,
		workflow: executor.Workflow(),
	}
}

// Run repeatedly executes the first eligible operation of every job until nothing is
// eligible, the pass limit is reached or a stage fails. A failed job never stops the others;
// every failure is returned together.
func (s *Scheduler) Run(ctx context.Context, jobs []*repository.Job, opts RunOptions) ([]Execution, error) {
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		done   = make([][]Execution, len(jobs))
	)
	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			executed, err := s.runJob(ctx, job, opts)
			done[i] = executed
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var executed []Execution
	for _, d := range done {
		executed = append(executed, d...)
	}
	log.WithField("executions", len(executed)).Info("Run finished")
	return executed, result.ErrorOrNil()
}

// Plan reports the operation Run would execute next on each job, without executing anything
func (s *Scheduler) Plan(jobs []*repository.Job, opts RunOptions) ([]Execution, error) {
	var planned []Execution
	for _, job := range jobs {
		op, err := s.next(job, opts, nil)
		if err != nil {
			return nil, err
		}
		if op != nil {
			planned = append(planned, Execution{JobID: job.ID, Operation: op.Name})
		}
	}
	return planned, nil
}

// Exec runs the named operation on each job regardless of eligibility
func (s *Scheduler) Exec(ctx context.Context, jobs []*repository.Job, name string) error {
	op, err := s.workflow.Operation(name)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, job := range jobs {
		if err := s.executor.ExecuteStage(ctx, job, op); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *Scheduler) runJob(ctx context.Context, job *repository.Job, opts RunOptions) ([]Execution, error) {
	passes := map[string]int{}
	var executed []Execution
	for {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		op, err := s.next(job, opts, passes)
		if err != nil {
			return executed, err
		}
		if op == nil {
			return executed, nil
		}

		passes[op.Name]++
		if err := s.executor.ExecuteStage(ctx, job, op); err != nil {
			return executed, err
		}
		executed = append(executed, Execution{JobID: job.ID, Operation: op.Name})
	}
}

// next picks the first eligible operation that passes the filter and has passes left
func (s *Scheduler) next(job *repository.Job, opts RunOptions, passes map[string]int) (*flow.Operation, error) {
	limit := opts.NumPasses
	if limit < 1 {
		limit = 1
	}
	eligible, err := s.workflow.Eligible(job)
	if err != nil {
		return nil, err
	}
	for _, op := range eligible {
		if !selected(op.Name, opts.Operations) {
			continue
		}
		if passes[op.Name] >= limit {
			continue
		}
		return op, nil
	}
	return nil, nil
}

func selected(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == name {
			return true
		}
	}
	return false
}
