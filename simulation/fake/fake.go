// Package fake is an in-memory simulation engine for tests. It writes placeholder
// snapshot files where a real engine would write checkpoints.
package fake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ellipflow/simulation"
)

// Engine records every plan it receives
type Engine struct {
	mu    sync.Mutex
	plans []*simulation.Plan

	// Fail, when set, is consulted before anything is written; a non-nil error aborts the plan
	Fail func(plan *simulation.Plan) error
	// FailAfterWrites makes Fail run after outputs are written, leaving partial files behind
	FailAfterWrites bool

	RealTimestep float64
}

// New returns a fake engine reporting a 1 fs time step
func New() *Engine {
	return &Engine{RealTimestep: 1.0}
}

// Execute implements simulation.Engine
func (e *Engine) Execute(ctx context.Context, plan *simulation.Plan) (*simulation.Result, error) {
	e.mu.Lock()
	e.plans = append(e.plans, plan)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Fail != nil && !e.FailAfterWrites {
		if err := e.Fail(plan); err != nil {
			return nil, err
		}
	}

	if plan.Pack == nil {
		if _, err := os.Stat(resolve(plan, plan.InitialState)); err != nil {
			return nil, fmt.Errorf("cannot open initial state: %w", err)
		}
	}
	for _, out := range plan.Outputs() {
		if err := os.WriteFile(resolve(plan, out), []byte(plan.RunID), 0o644); err != nil {
			return nil, err
		}
	}
	if plan.Settings.GSDFile != "" {
		if err := os.WriteFile(resolve(plan, plan.Settings.GSDFile), nil, 0o644); err != nil {
			return nil, err
		}
	}

	if e.Fail != nil && e.FailAfterWrites {
		if err := e.Fail(plan); err != nil {
			return nil, err
		}
	}

	return &simulation.Result{RealTimestep: e.RealTimestep, RealTimeUnits: "fs"}, nil
}

// Plans returns the plans executed so far
func (e *Engine) Plans() []*simulation.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*simulation.Plan(nil), e.plans...)
}

// Last returns the most recent plan, or nil
func (e *Engine) Last() *simulation.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.plans) == 0 {
		return nil
	}
	return e.plans[len(e.plans)-1]
}

func resolve(plan *simulation.Plan, path string) string {
	if filepath.IsAbs(path) || plan.WorkDir == "" {
		return path
	}
	return filepath.Join(plan.WorkDir, path)
}
