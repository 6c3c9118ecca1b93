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
)

// forcefieldSource resolves the force field a chain system is built with
type forcefieldSource func(project *spec.Project, sp models.Statepoint) (simulation.Forcefield, error)

func ellipsoidForcefield(project *spec.Project, _ models.Statepoint) (simulation.Forcefield, error) {
	if project.Settings.Forcefield == nil {
		return simulation.Forcefield{}, errors.Errorf("project %s has no forcefield settings", project.Name)
	}
	ff := *project.Settings.Forcefield
	ff.Kind = simulation.ForcefieldEllipsoid
	return ff, nil
}

func msibiForcefield(_ *spec.Project, sp models.Statepoint) (simulation.Forcefield, error) {
	r := &reader{sp: sp}
	ff := simulation.Forcefield{
		Kind:         simulation.ForcefieldMSIBI,
		MSIBIProject: r.str("msibi_project"),
		MSIBIJob:     r.str("msibi_job"),
	}
	return ff, r.Err()
}

// chainWorkflow is the four-stage pipeline for packed ellipsoid chains
func chainWorkflow(project *spec.Project, forcefield forcefieldSource) *flow.Workflow {
	s := &stage{project: project, constraint: fromSnapshot}
	initial := func(ctx context.Context, sc *flow.StageContext) (models.Document, error) {
		return s.initialRun(ctx, sc, forcefield)
	}

	return &flow.Workflow{
		Name:  project.Workflow,
		Built: flow.SystemBuilt(storage.InitFrame),
		Operations: []*flow.Operation{
			{
				Name:       OpRun,
				Post:       []flow.Condition{flow.InitialRunDone},
				Directives: models.DefaultDirectives,
				Action:     initial,
			},
			{
				Name:       OpRunLonger,
				Pre:        []flow.Condition{flow.InitialRunDone},
				Post:       []flow.Condition{flow.Equilibrated},
				Directives: models.DefaultDirectives,
				Action:     s.runLonger,
			},
			{
				Name:       OpProduction,
				Pre:        []flow.Condition{flow.Equilibrated},
				Post:       []flow.Condition{flow.ProductionDone},
				Directives: models.DefaultDirectives,
				Action:     s.production,
			},
			{
				Name:       OpProductionRunLonger,
				Pre:        []flow.Condition{flow.ProductionDone},
				Directives: models.DefaultDirectives,
				Action:     s.productionRunLonger,
			},
		},
	}
}

// initialRun packs the chains, shrinks to the target density and equilibrates
func (s *stage) initialRun(ctx context.Context, sc *flow.StageContext, forcefield forcefieldSource) (models.Document, error) {
	doc := sc.Document
	p, err := readRunParams(sc.Statepoint)
	if err != nil {
		return doc, err
	}
	if s.project.Settings.Pack == nil {
		return doc, errors.Errorf("project %s has no pack settings", s.project.Name)
	}
	numMols, lengths := doc.NumMols, doc.Lengths
	if numMols == 0 || lengths == 0 {
		if numMols, lengths, err = sc.Statepoint.Pair("chains"); err != nil {
			return doc, err
		}
	}
	ff, err := forcefield(s.project, sc.Statepoint)
	if err != nil {
		return doc, err
	}

	nBeads := numMols * lengths
	box, err := physics.TargetBox(p.Density, nBeads)
	if err != nil {
		return doc, err
	}
	tauKT := physics.TauKT(p.DT, p.TauSteps)

	if err := sc.Staging.SaveForcefield(ff); err != nil {
		return doc, err
	}
	initFrame := sc.Staging.Gate(storage.InitFrame)
	pack := s.project.Settings.Pack

	sc.Logger.Info("Building initial frame.")
	plan := &simulation.Plan{
		RunID:   sc.RunID,
		WorkDir: sc.Job.Dir(),
		Pack: &simulation.Pack{
			NumMols:             numMols,
			Lengths:             lengths,
			Lpar:                pack.Lpar,
			BeadMass:            pack.BeadMass,
			Density:             p.Density,
			PackingExpandFactor: pack.PackingExpandFactor,
			Edge:                pack.Edge,
			Overlap:             pack.Overlap,
			FixOrientation:      pack.FixOrientation,
			Seed:                p.SystemSeed,
			Output:              initFrame,
		},
		Forcefield: ff,
		Constraint: s.constraint(initFrame),
		Settings: p.settings(
			sc.Staging.Output(fmt.Sprintf("trajectory%d.gsd", doc.Runs)),
			sc.Staging.Output(fmt.Sprintf("log%d.txt", doc.Runs)),
		),
		Steps: []simulation.Step{
			shrinkSteps(p, box, tauKT),
			simulation.SaveRestart{Path: sc.Staging.Path(storage.ShrinkRestart)},
			simulation.NVT{NSteps: p.NEquilSteps, KT: p.KT, TauKT: tauKT},
			simulation.SaveRestart{Path: sc.Staging.Path(storage.Restart)},
		},
	}
	res, err := sc.Engine.Execute(ctx, plan)
	if err != nil {
		return doc, err
	}

	doc.NumMols, doc.Lengths = numMols, lengths
	doc.NParticles = nBeads
	recordUnits(&doc, tauKT, box, res)
	doc.Runs = 1
	sc.Logger.Info("Simulation finished.")
	return doc, nil
}
