// Package stages defines the simulation workflows: which operations exist, how they are
// gated and what each one asks of the engine.
package stages

import (
	"context"
	"fmt"

	"ellipflow/core/flow"
	"ellipflow/core/models"
	"ellipflow/core/physics"
	"ellipflow/core/spec"
	"ellipflow/simulation"
	"ellipflow/storage"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// Operation names
const (
	OpBuild               = "build"
	OpRun                 = "run"
	OpRunLonger           = "run-longer"
	OpProduction          = "production"
	OpProductionRunLonger = "production_run_longer"
)

// Workflow returns the workflow a project runs
func Workflow(project *spec.Project) (*flow.Workflow, error) {
	switch project.Workflow {
	case spec.WorkflowEllipsoids:
		return chainWorkflow(project, ellipsoidForcefield), nil
	case spec.WorkflowPPS:
		return chainWorkflow(project, msibiForcefield), nil
	case spec.WorkflowSingleEllipsoid:
		return singleEllipsoidWorkflow(project), nil
	default:
		return nil, errors.Errorf("unknown workflow %q", project.Workflow)
	}
}

// DocumentDefaults returns the initial document of a job in the project.
// Keys already present in a document are never overwritten.
func DocumentDefaults(project *spec.Project) func(models.Statepoint) map[string]interface{} {
	return func(sp models.Statepoint) map[string]interface{} {
		defaults := map[string]interface{}{}
		for k, v := range project.Document {
			defaults[k] = v
		}
		defaults["equilibrated"] = false
		defaults["sampled"] = false
		defaults["runs"] = 0
		defaults["production_runs"] = 0

		if numMols, lengths, err := sp.Pair("chains"); err == nil {
			defaults["num_mols"] = numMols
			defaults["lengths"] = lengths
		}
		return defaults
	}
}

// constrainer rebuilds the rigid-body constraint for a stage starting from snapshot
type constrainer func(snapshot string) *simulation.Constraint

func fromSnapshot(snapshot string) *simulation.Constraint {
	return &simulation.Constraint{FromSnapshot: snapshot}
}

// stage carries what every operation of a workflow shares
type stage struct {
	project    *spec.Project
	constraint constrainer
}

// runLonger extends equilibration from the last restart
func (s *stage) runLonger(ctx context.Context, sc *flow.StageContext) (models.Document, error) {
	doc := sc.Document
	p, err := readRunParams(sc.Statepoint)
	if err != nil {
		return doc, err
	}
	restart, err := sc.Checkpoints.Require(sc.Job, storage.Restart)
	if err != nil {
		return doc, err
	}
	ff, err := sc.Checkpoints.LoadForcefield(sc.Job)
	if err != nil {
		return doc, err
	}

	sc.Logger.Info("Restarting and continuing simulation...")
	plan := &simulation.Plan{
		RunID:        sc.RunID,
		WorkDir:      sc.Job.Dir(),
		InitialState: restart,
		Forcefield:   ff,
		Constraint:   s.constraint(restart),
		Settings: p.settings(
			sc.Staging.Output(fmt.Sprintf("trajectory%d.gsd", doc.Runs)),
			sc.Staging.Output(fmt.Sprintf("log%d.txt", doc.Runs)),
		),
		Steps: []simulation.Step{
			simulation.NVT{NSteps: int(s.project.Settings.RunLongerSteps), KT: p.KT, TauKT: doc.TauKT},
			simulation.SaveRestart{Path: sc.Staging.Path(storage.Restart)},
		},
	}
	if _, err := sc.Engine.Execute(ctx, plan); err != nil {
		return doc, err
	}

	doc.Runs++
	sc.Logger.Info("Simulation finished.")
	return doc, nil
}

// production samples from the equilibrated restart
func (s *stage) production(ctx context.Context, sc *flow.StageContext) (models.Document, error) {
	return s.sample(ctx, sc, storage.Restart, "production.gsd", "production.txt")
}

// productionRunLonger extends production from the last production restart
func (s *stage) productionRunLonger(ctx context.Context, sc *flow.StageContext) (models.Document, error) {
	n := sc.Document.ProductionRuns + 1
	return s.sample(ctx, sc, storage.ProductionRestart, fmt.Sprintf("production%d.gsd", n), fmt.Sprintf("production%d.txt", n))
}

func (s *stage) sample(ctx context.Context, sc *flow.StageContext, from, gsdFile, logFile string) (models.Document, error) {
	doc := sc.Document
	p, err := readRunParams(sc.Statepoint)
	if err != nil {
		return doc, err
	}
	start, err := sc.Checkpoints.Require(sc.Job, from)
	if err != nil {
		return doc, err
	}
	ff, err := sc.Checkpoints.LoadForcefield(sc.Job)
	if err != nil {
		return doc, err
	}

	sc.Logger.Info("Running the production run...")
	settings := p.settings(sc.Staging.Output(gsdFile), sc.Staging.Output(logFile))
	settings.GSDWriteFreq = int(s.project.Settings.ProductionGSDWriteFreq)
	plan := &simulation.Plan{
		RunID:        sc.RunID,
		WorkDir:      sc.Job.Dir(),
		InitialState: start,
		Forcefield:   ff,
		Constraint:   s.constraint(start),
		Settings:     settings,
		Steps: []simulation.Step{
			simulation.NVT{
				NSteps: int(float64(p.NProdSteps) * s.project.Settings.ProductionStepFactor),
				KT:     p.KT,
				TauKT:  doc.TauKT,
			},
			simulation.SaveRestart{Path: sc.Staging.Gate(storage.ProductionRestart)},
		},
	}
	if _, err := sc.Engine.Execute(ctx, plan); err != nil {
		return doc, err
	}

	doc.ProductionRuns++
	sc.Logger.Info("Simulation finished.")
	return doc, nil
}

// shrinkSteps ramps the temperature down while compressing to the target density
func shrinkSteps(p runParams, box r3.Vec, tauKT float64) simulation.Step {
	return simulation.UpdateVolume{
		FinalBox: box,
		NSteps:   p.NShrinkSteps,
		Period:   p.ShrinkPeriod,
		TauKT:    tauKT,
		Ramp: simulation.Ramp{
			NSteps:  p.NShrinkSteps,
			KTStart: p.ShrinkKT,
			KTFinal: p.KT,
		},
	}
}

// recordUnits stores the derived quantities of a freshly built system in the document
func recordUnits(doc *models.Document, tauKT float64, box r3.Vec, res *simulation.Result) {
	doc.TauKT = tauKT
	doc.TargetBox = physics.BoxSlice(box)
	if res != nil {
		doc.RealTimeStep = res.RealTimestep
		doc.RealTimeUnits = res.RealTimeUnits
	}
}
