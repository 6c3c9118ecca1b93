package stages

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"ellipflow/core/executor"
	"ellipflow/core/flow"
	"ellipflow/core/models"
	"ellipflow/core/repository"
	"ellipflow/core/spec"
	"ellipflow/core/sweep"
	"ellipflow/simulation"
	"ellipflow/simulation/fake"
	"ellipflow/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testbed struct {
	project  *spec.Project
	workflow *flow.Workflow
	jobs     []*repository.Job
	engine   *fake.Engine
	cm       *storage.CheckpointManager
	exec     *executor.StageExecutor
}

func newTestbed(t *testing.T, name string) *testbed {
	t.Helper()
	project, err := spec.LoadProject(filepath.Join("..", "..", "projects", name+".yaml"))
	require.NoError(t, err)
	ws, err := repository.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	jobs, err := ws.InitProject(sweep.Statepoints(project.Parameters), DocumentDefaults(project))
	require.NoError(t, err)
	workflow, err := Workflow(project)
	require.NoError(t, err)

	engine := fake.New()
	cm := storage.NewCheckpointManager(nil)
	return &testbed{
		project:  project,
		workflow: workflow,
		jobs:     jobs,
		engine:   engine,
		cm:       cm,
		exec:     executor.NewStageExecutor(workflow, project, engine, cm, nil),
	}
}

func (tb *testbed) run(t *testing.T, job *repository.Job, name string) *simulation.Plan {
	t.Helper()
	op, err := tb.workflow.Operation(name)
	require.NoError(t, err)
	require.NoError(t, tb.exec.ExecuteStage(context.Background(), job, op))
	return tb.engine.Last()
}

func stepKinds(plan *simulation.Plan) []simulation.StepKind {
	kinds := []simulation.StepKind{}
	for _, s := range plan.Steps {
		kinds = append(kinds, s.Kind())
	}
	return kinds
}

func TestWorkflowShapes(t *testing.T) {
	tests := map[string][]string{
		"ellipsoids":       {OpRun, OpRunLonger, OpProduction, OpProductionRunLonger},
		"pps":              {OpRun, OpRunLonger, OpProduction, OpProductionRunLonger},
		"single-ellipsoid": {OpBuild, OpRun, OpProduction},
	}
	for name, expected := range tests {
		t.Run(name, func(t *testing.T) {
			tb := newTestbed(t, name)
			assert.Equal(t, expected, tb.workflow.Names())
			for _, op := range tb.workflow.Operations {
				assert.Equal(t, models.DefaultDirectives, op.Directives, op.Name)
			}
		})
	}
}

func TestWorkflow_Unknown(t *testing.T) {
	_, err := Workflow(&spec.Project{Workflow: "proteins"})
	assert.Error(t, err)
}

func TestDocumentDefaults(t *testing.T) {
	project := &spec.Project{Document: map[string]interface{}{"node": "p100"}}
	defaults := DocumentDefaults(project)

	doc := defaults(models.Statepoint{"chains": []interface{}{5, 10}})
	assert.Equal(t, 5, doc["num_mols"])
	assert.Equal(t, 10, doc["lengths"])
	assert.Equal(t, 0, doc["runs"])
	assert.Equal(t, 0, doc["production_runs"])
	assert.Equal(t, false, doc["equilibrated"])
	assert.Equal(t, false, doc["sampled"])
	assert.Equal(t, "p100", doc["node"])

	doc = defaults(models.Statepoint{"N": 128})
	assert.NotContains(t, doc, "num_mols")
}

func TestChainWorkflow_InitialRunPlan(t *testing.T) {
	tb := newTestbed(t, "ellipsoids")
	job := tb.jobs[0] // chains (1, 10), dt 1e-4

	plan := tb.run(t, job, OpRun)

	require.NotNil(t, plan.Pack)
	assert.Equal(t, 1, plan.Pack.NumMols)
	assert.Equal(t, 10, plan.Pack.Lengths)
	assert.Equal(t, 34, plan.Pack.Seed)
	assert.Equal(t, 11.0, plan.Pack.PackingExpandFactor)
	assert.True(t, strings.HasSuffix(plan.Pack.Output, "init_frame.partial.gsd"))
	require.NotNil(t, plan.Constraint)
	assert.Equal(t, plan.Pack.Output, plan.Constraint.FromSnapshot)
	assert.Equal(t, simulation.ForcefieldEllipsoid, plan.Forcefield.Kind)
	require.NotNil(t, plan.Forcefield.AngleK)

	assert.Equal(t, []simulation.StepKind{
		simulation.StepUpdateVolume, simulation.StepSaveRestart, simulation.StepNVT, simulation.StepSaveRestart,
	}, stepKinds(plan))
	shrink := plan.Steps[0].(simulation.UpdateVolume)
	assert.InDelta(t, math.Cbrt(10/0.01), shrink.FinalBox.X, 1e-9)
	assert.Equal(t, 7.0, shrink.Ramp.KTStart)
	assert.Equal(t, 1.0, shrink.Ramp.KTFinal)
	assert.Equal(t, 10000, shrink.Period)
	assert.InDelta(t, 0.01, shrink.TauKT, 1e-12)
	assert.Equal(t, 500000000, plan.Steps[2].(simulation.NVT).NSteps)
	assert.Equal(t, 42, plan.Settings.Seed)
	assert.True(t, strings.HasSuffix(plan.Settings.GSDFile, "trajectory0.gsd"))

	doc, err := job.Document()
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Runs)
	assert.Equal(t, 10, doc.NParticles)
	assert.InDelta(t, 0.01, doc.TauKT, 1e-12)

	ff, err := tb.cm.LoadForcefield(job)
	require.NoError(t, err)
	assert.Equal(t, plan.Forcefield, ff)
}

func TestChainWorkflow_ResumePlans(t *testing.T) {
	tb := newTestbed(t, "ellipsoids")
	job := tb.jobs[0]
	tb.run(t, job, OpRun)

	plan := tb.run(t, job, OpRunLonger)
	assert.Equal(t, job.Fn(storage.Restart), plan.InitialState)
	assert.Equal(t, job.Fn(storage.Restart), plan.Constraint.FromSnapshot)
	assert.Nil(t, plan.Pack)
	assert.Equal(t, 10000000, plan.Steps[0].(simulation.NVT).NSteps)
	assert.True(t, strings.HasSuffix(plan.Settings.GSDFile, "trajectory1.gsd"))

	require.NoError(t, job.SetDocumentKey("equilibrated", true))
	plan = tb.run(t, job, OpProduction)
	assert.Equal(t, 500000, plan.Settings.GSDWriteFreq)
	assert.Equal(t, 200000000, plan.Steps[0].(simulation.NVT).NSteps)
	assert.True(t, strings.HasSuffix(plan.Settings.GSDFile, "production.gsd"))
	assert.True(t, strings.HasSuffix(plan.Steps[1].(simulation.SaveRestart).Path, "production-restart.partial.gsd"))

	plan = tb.run(t, job, OpProductionRunLonger)
	assert.Equal(t, job.Fn(storage.ProductionRestart), plan.InitialState)
	assert.Equal(t, job.Fn(storage.ProductionRestart), plan.Constraint.FromSnapshot)
	assert.True(t, strings.HasSuffix(plan.Settings.LogFile, "production2.txt"))

	doc, err := job.Document()
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Runs)
	assert.Equal(t, 2, doc.ProductionRuns)
}

func TestPPS_MSIBIForcefield(t *testing.T) {
	tb := newTestbed(t, "pps")
	job := tb.jobs[0]

	plan := tb.run(t, job, OpRun)
	assert.Equal(t, simulation.ForcefieldMSIBI, plan.Forcefield.Kind)
	assert.Equal(t, "34c9e9f8fa7d942743adbf6835395671", plan.Forcefield.MSIBIJob)
	assert.Contains(t, plan.Forcefield.MSIBIProject, "angle-flow-with-pairs")
	assert.Equal(t, 50, plan.Pack.NumMols)
	assert.Equal(t, 20, plan.Pack.Lengths)

	ff, err := tb.cm.LoadForcefield(job)
	require.NoError(t, err)
	assert.Equal(t, simulation.ForcefieldMSIBI, ff.Kind)
}

func TestSingleEllipsoid(t *testing.T) {
	tb := newTestbed(t, "single-ellipsoid")
	job := tb.jobs[0]

	eligible, err := tb.workflow.Eligible(job)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, OpBuild, eligible[0].Name)

	plan := tb.run(t, job, OpBuild)
	assert.Equal(t, 128, plan.Pack.NumMols)
	assert.Equal(t, 0.6, plan.Pack.Density)
	assert.Equal(t, 0.5, plan.Forcefield.Lperp)
	assert.Equal(t, 2.5, plan.Forcefield.RCut)
	assert.Nil(t, plan.Forcefield.AngleK)
	assert.Equal(t, []simulation.StepKind{simulation.StepUpdateVolume, simulation.StepSaveRestart}, stepKinds(plan))

	doc, err := job.Document()
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Runs)
	assert.Equal(t, 128, doc.NParticles)
	assert.Equal(t, "p100", doc.Node)
	assert.True(t, job.IsFile(storage.ShrinkRestart))

	state, err := tb.workflow.State(job)
	require.NoError(t, err)
	assert.Equal(t, models.StateBuilt, state)

	plan = tb.run(t, job, OpRun)
	assert.Equal(t, job.Fn(storage.ShrinkRestart), plan.InitialState)
	require.NotNil(t, plan.Constraint.Body)
	assert.Equal(t, "R", plan.Constraint.Body.Name)
	assert.Equal(t, []string{"X", "A", "T", "T"}, plan.Constraint.Body.ConstituentTypes)
	assert.Len(t, plan.Constraint.Body.Positions, 4)
	assert.Equal(t, 1000000, plan.Steps[0].(simulation.NVT).NSteps)

	eligible, err = tb.workflow.Eligible(job)
	require.NoError(t, err)
	assert.Empty(t, eligible)

	require.NoError(t, job.SetDocumentKey("equilibrated", true))
	plan = tb.run(t, job, OpProduction)
	require.NotNil(t, plan.Constraint.Body)
	assert.True(t, job.IsFile(storage.ProductionRestart))
}

func TestStageRejectsIncompleteStatepoint(t *testing.T) {
	tb := newTestbed(t, "ellipsoids")
	ws, err := repository.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	job, err := ws.OpenJob(models.Statepoint{"chains": []interface{}{1, 10}})
	require.NoError(t, err)
	require.NoError(t, job.Init())

	op, err := tb.workflow.Operation(OpRun)
	require.NoError(t, err)
	err = tb.exec.ExecuteStage(context.Background(), job, op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kT")
	assert.Contains(t, err.Error(), "n_equil_steps")
	assert.Empty(t, tb.engine.Plans())
}
