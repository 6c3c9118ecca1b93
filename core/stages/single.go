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
)

// ellipsoidBody is the rigid body of a single ellipsoid: a central X site, an A site on
// the tip and two T sites marking the long axis.
var ellipsoidBody = simulation.RigidBody{
	Name:             "R",
	ConstituentTypes: []string{"X", "A", "T", "T"},
	Positions: [][3]float64{
		{0, 0, 0},
		{1.049999999999999, 0, 0},
		{1.0, 0, 0},
		{-1.0000000000000009, 0, 0},
	},
	Orientations: [][4]float64{
		{1, 0, 0, 0},
		{1, 0, 0, 0},
		{1, 0, 0, 0},
		{1, 0, 0, 0},
	},
}

func literalBody(string) *simulation.Constraint {
	body := ellipsoidBody
	return &simulation.Constraint{Body: &body}
}

// singleEllipsoidWorkflow builds, equilibrates and samples unbonded-chain systems whose
// packing and force field are part of the statepoint
func singleEllipsoidWorkflow(project *spec.Project) *flow.Workflow {
	s := &stage{project: project, constraint: literalBody}
	return &flow.Workflow{
		Name:  project.Workflow,
		Built: flow.SystemBuilt(storage.ShrinkRestart),
		Operations: []*flow.Operation{
			{
				Name:       OpBuild,
				Post:       []flow.Condition{flow.SystemBuilt(storage.ShrinkRestart)},
				Directives: models.DefaultDirectives,
				Action:     s.build,
			},
			{
				Name:       OpRun,
				Pre:        []flow.Condition{flow.SystemBuilt(storage.ShrinkRestart)},
				Post:       []flow.Condition{flow.InitialRunDone},
				Directives: models.DefaultDirectives,
				Action:     s.equilibrate,
			},
			{
				Name:       OpProduction,
				Pre:        []flow.Condition{flow.Equilibrated},
				Post:       []flow.Condition{flow.ProductionDone},
				Directives: models.DefaultDirectives,
				Action:     s.production,
			},
		},
	}
}

// build packs the system and shrinks it to the target density
func (s *stage) build(ctx context.Context, sc *flow.StageContext) (models.Document, error) {
	doc := sc.Document
	p, err := readRunParams(sc.Statepoint)
	if err != nil {
		return doc, err
	}

	r := &reader{sp: sc.Statepoint}
	n, length := r.int("N"), r.int("length")
	pack := simulation.Pack{
		NumMols:             n,
		Lengths:             length,
		Lpar:                r.float("lpar"),
		BeadMass:            r.float("bead_mass"),
		Density:             p.Density,
		PackingExpandFactor: r.float("packing_expand_factor"),
		Edge:                r.float("edge"),
		Overlap:             r.float("overlap"),
		FixOrientation:      r.bool("fix_orientation"),
		Seed:                p.SystemSeed,
	}
	ff := simulation.Forcefield{
		Kind:    simulation.ForcefieldEllipsoid,
		Epsilon: r.float("epsilon"),
		Lpar:    r.float("lpar"),
		Lperp:   r.float("lper"),
		RCut:    r.float("r_cut"),
		BondK:   r.float("bond_k"),
		BondR0:  r.float("bond_r0"),
	}
	if err := r.Err(); err != nil {
		return doc, err
	}

	nBeads := n * length
	box, err := physics.TargetBox(p.Density, nBeads)
	if err != nil {
		return doc, err
	}
	tauKT := physics.TauKT(p.DT, p.TauSteps)

	if err := sc.Staging.SaveForcefield(ff); err != nil {
		return doc, err
	}
	pack.Output = sc.Staging.Path(storage.InitFrame)

	sc.Logger.Info("Building initial frame.")
	plan := &simulation.Plan{
		RunID:      sc.RunID,
		WorkDir:    sc.Job.Dir(),
		Pack:       &pack,
		Forcefield: ff,
		Constraint: fromSnapshot(pack.Output),
		Settings: p.settings(
			sc.Staging.Output(fmt.Sprintf("trajectory%d.gsd", doc.Runs)),
			sc.Staging.Output(fmt.Sprintf("log%d.txt", doc.Runs)),
		),
		Steps: []simulation.Step{
			shrinkSteps(p, box, tauKT),
			simulation.SaveRestart{Path: sc.Staging.Gate(storage.ShrinkRestart)},
		},
	}
	res, err := sc.Engine.Execute(ctx, plan)
	if err != nil {
		return doc, err
	}

	doc.NParticles = nBeads
	recordUnits(&doc, tauKT, box, res)
	sc.Logger.Info("Shrinking simulation finished...")
	return doc, nil
}

// equilibrate runs NVT from the shrunk configuration
func (s *stage) equilibrate(ctx context.Context, sc *flow.StageContext) (models.Document, error) {
	doc := sc.Document
	p, err := readRunParams(sc.Statepoint)
	if err != nil {
		return doc, err
	}
	start, err := sc.Checkpoints.Require(sc.Job, storage.ShrinkRestart)
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
		InitialState: start,
		Forcefield:   ff,
		Constraint:   s.constraint(start),
		Settings: p.settings(
			sc.Staging.Output(fmt.Sprintf("trajectory%d.gsd", doc.Runs)),
			sc.Staging.Output(fmt.Sprintf("log%d.txt", doc.Runs)),
		),
		Steps: []simulation.Step{
			simulation.NVT{NSteps: p.NEquilSteps, KT: p.KT, TauKT: doc.TauKT},
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
