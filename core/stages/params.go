package stages

import (
	"ellipflow/core/models"
	"ellipflow/simulation"

	"github.com/hashicorp/go-multierror"
)

// reader pulls typed parameters out of a statepoint and collects every failure
type reader struct {
	sp  models.Statepoint
	err *multierror.Error
}

func (r *reader) fail(err error) {
	r.err = multierror.Append(r.err, err)
}

func (r *reader) float(key string) float64 {
	v, err := r.sp.Float(key)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) int(key string) int {
	v, err := r.sp.Int(key)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) bool(key string) bool {
	v, err := r.sp.Bool(key)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) str(key string) string {
	v, err := r.sp.String(key)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) Err() error {
	return r.err.ErrorOrNil()
}

// runParams are the statepoint parameters every workflow shares
type runParams struct {
	KT           float64
	ShrinkKT     float64
	DT           float64
	TauSteps     float64
	Density      float64
	NEquilSteps  int
	NProdSteps   int
	NShrinkSteps int
	ShrinkPeriod int
	GSDWriteFreq int
	LogWriteFreq int
	SimSeed      int
	SystemSeed   int
}

func readRunParams(sp models.Statepoint) (runParams, error) {
	r := &reader{sp: sp}
	p := runParams{
		KT:           r.float("kT"),
		ShrinkKT:     r.float("shrink_kT"),
		DT:           r.float("dt"),
		TauSteps:     r.float("tau_kT"),
		Density:      r.float("density"),
		NEquilSteps:  r.int("n_equil_steps"),
		NProdSteps:   r.int("n_prod_steps"),
		NShrinkSteps: r.int("n_shrink_steps"),
		ShrinkPeriod: r.int("shrink_period"),
		GSDWriteFreq: r.int("gsd_write_freq"),
		LogWriteFreq: r.int("log_write_freq"),
		SimSeed:      r.int("sim_seed"),
		SystemSeed:   r.int("system_seed"),
	}
	return p, r.Err()
}

func (p runParams) settings(gsdFile, logFile string) simulation.Settings {
	return simulation.Settings{
		DT:           p.DT,
		Seed:         p.SimSeed,
		GSDWriteFreq: p.GSDWriteFreq,
		GSDFile:      gsdFile,
		LogWriteFreq: p.LogWriteFreq,
		LogFile:      logFile,
	}
}
