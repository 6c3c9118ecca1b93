// Package simulation describes what the workflow asks of the external molecular-dynamics
// engine. Stages build a Plan; an Engine executes it and reports back.
package simulation

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"
)

// Engine executes a simulation plan. Restart and pack outputs go to the paths the plan
// names; the caller owns them and discards them if Execute fails.
type Engine interface {
	Execute(ctx context.Context, plan *Plan) (*Result, error)
}

// Plan is a complete, ordered description of one stage's simulation work
type Plan struct {
	RunID   string
	WorkDir string // job directory; relative paths resolve against it

	// Exactly one of InitialState and Pack is set
	InitialState string
	Pack         *Pack

	Forcefield Forcefield
	Constraint *Constraint
	Settings   Settings
	Steps      []Step
}

// Pack builds a fresh low-density configuration of ellipsoid chains
type Pack struct {
	NumMols             int     `json:"num_mols"`
	Lengths             int     `json:"lengths"`
	Lpar                float64 `json:"lpar"`
	BeadMass            float64 `json:"bead_mass"`
	Density             float64 `json:"density"` // nm^-3
	PackingExpandFactor float64 `json:"packing_expand_factor"`
	Edge                float64 `json:"edge"`
	Overlap             float64 `json:"overlap"`
	FixOrientation      bool    `json:"fix_orientation"`
	Seed                int     `json:"seed"`
	Output              string  `json:"output"`
}

// ForcefieldKind selects how the engine reconstructs interactions
type ForcefieldKind string

const (
	ForcefieldEllipsoid ForcefieldKind = "ellipsoid"
	ForcefieldMSIBI     ForcefieldKind = "msibi"
)

// Forcefield is the persisted description of the interaction parameters
type Forcefield struct {
	Kind        ForcefieldKind `json:"kind" yaml:"kind"`
	Epsilon     float64        `json:"epsilon,omitempty" yaml:"epsilon"`
	Lpar        float64        `json:"lpar,omitempty" yaml:"lpar"`
	Lperp       float64        `json:"lperp,omitempty" yaml:"lperp"`
	RCut        float64        `json:"r_cut,omitempty" yaml:"r_cut"`
	BondK       float64        `json:"bond_k,omitempty" yaml:"bond_k"`
	BondR0      float64        `json:"bond_r0" yaml:"bond_r0"`
	AngleK      *float64       `json:"angle_k,omitempty" yaml:"angle_k,omitempty"`
	AngleTheta0 *float64       `json:"angle_theta0,omitempty" yaml:"angle_theta0,omitempty"`

	// Tabulated potentials from an MSIBI optimisation job
	MSIBIProject string `json:"msibi_project,omitempty" yaml:"msibi_project,omitempty"`
	MSIBIJob     string `json:"msibi_job,omitempty" yaml:"msibi_job,omitempty"`
}

// RigidBody is one rigid-body type definition
type RigidBody struct {
	Name             string       `json:"name"`
	ConstituentTypes []string     `json:"constituent_types"`
	Positions        [][3]float64 `json:"positions"`
	Orientations     [][4]float64 `json:"orientations"`
}

// Constraint tells the engine how to rebuild the rigid-body constraint on resume.
// Rigid constraints are not persisted by the engine, so every stage rebuilds one.
type Constraint struct {
	FromSnapshot string     `json:"from_snapshot,omitempty"`
	Body         *RigidBody `json:"body,omitempty"`
}

// Settings are the simulation object's construction parameters
type Settings struct {
	DT           float64 `json:"dt"`
	Seed         int     `json:"seed"`
	GSDWriteFreq int     `json:"gsd_write_freq"`
	GSDFile      string  `json:"gsd_file_name"`
	LogWriteFreq int     `json:"log_write_freq"`
	LogFile      string  `json:"log_file_name"`
}

// StepKind names a step type
type StepKind string

const (
	StepUpdateVolume StepKind = "update_volume"
	StepNVT          StepKind = "nvt"
	StepSaveRestart  StepKind = "save_restart"
)

// Step is one action in a plan
type Step interface {
	Kind() StepKind
}

// Ramp is a linear temperature ramp over NSteps
type Ramp struct {
	NSteps  int     `json:"n_steps"`
	KTStart float64 `json:"kT_start"`
	KTFinal float64 `json:"kT_final"`
}

// UpdateVolume shrinks the box to FinalBox under a temperature ramp
type UpdateVolume struct {
	FinalBox r3.Vec
	NSteps   int
	Period   int
	TauKT    float64
	Ramp     Ramp
}

// NVT runs at constant temperature
type NVT struct {
	NSteps int
	KT     float64
	TauKT  float64
}

// SaveRestart writes a restart snapshot
type SaveRestart struct {
	Path string
}

func (UpdateVolume) Kind() StepKind { return StepUpdateVolume }
func (NVT) Kind() StepKind          { return StepNVT }
func (SaveRestart) Kind() StepKind  { return StepSaveRestart }

// Result is what the engine reports after a successful plan
type Result struct {
	RealTimestep  float64 `json:"real_timestep"`
	RealTimeUnits string  `json:"real_time_units"`
}

// Outputs returns every file path the plan writes as a snapshot (pack output and restarts)
func (p *Plan) Outputs() []string {
	var outputs []string
	if p.Pack != nil && p.Pack.Output != "" {
		outputs = append(outputs, p.Pack.Output)
	}
	for _, step := range p.Steps {
		if save, ok := step.(SaveRestart); ok {
			outputs = append(outputs, save.Path)
		}
	}
	return outputs
}

// StartState returns the snapshot the simulation is constructed from
func (p *Plan) StartState() string {
	if p.Pack != nil {
		return p.Pack.Output
	}
	return p.InitialState
}
