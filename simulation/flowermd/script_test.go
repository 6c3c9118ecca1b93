package flowermd

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"ellipflow/simulation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func packPlan() *simulation.Plan {
	angleK, theta := 30.0, 1.9
	return &simulation.Plan{
		RunID:   "run-1",
		WorkDir: "/tmp/job",
		Pack: &simulation.Pack{
			NumMols: 10, Lengths: 20, Lpar: 1, BeadMass: 1, Density: 0.1,
			PackingExpandFactor: 11, Edge: 2, Overlap: 1, FixOrientation: true,
			Seed: 7, Output: "init_frame.gsd",
		},
		Forcefield: simulation.Forcefield{
			Kind: simulation.ForcefieldEllipsoid, Epsilon: 1, Lpar: 1, Lperp: 0.5, RCut: 2,
			BondK: 100, AngleK: &angleK, AngleTheta0: &theta,
		},
		Constraint: &simulation.Constraint{FromSnapshot: "init_frame.gsd"},
		Settings:   simulation.Settings{DT: 0.003, Seed: 7, GSDWriteFreq: 10000, GSDFile: "trajectory.gsd", LogWriteFreq: 1000, LogFile: "log.txt"},
		Steps: []simulation.Step{
			simulation.UpdateVolume{FinalBox: r3.Vec{X: 5, Y: 5, Z: 5}, NSteps: 1000, Period: 10, TauKT: 0.3, Ramp: simulation.Ramp{NSteps: 1000, KTStart: 5, KTFinal: 1}},
			simulation.SaveRestart{Path: "shrink_restart.gsd"},
			simulation.NVT{NSteps: 5000, KT: 1, TauKT: 0.3},
			simulation.SaveRestart{Path: "restart.gsd"},
		},
	}
}

func TestRenderScriptPack(t *testing.T) {
	script, err := RenderScript(packPlan())
	require.NoError(t, err)

	assert.Contains(t, script, `EllipsoidChain(num_mols=10, lengths=20, lpar=1.0, bead_mass=1.0)`)
	assert.Contains(t, script, `fix_orientation=True`)
	assert.Contains(t, script, `system.to_gsd("init_frame.gsd")`)
	assert.Contains(t, script, `angle_k=30.0`)
	assert.Contains(t, script, `create_rigid_ellipsoid_chain(traj[-1])`)
	assert.Contains(t, script, `initial_state="init_frame.gsd"`)
	assert.Contains(t, script, `np.array([5.0, 5.0, 5.0])`)
	assert.Contains(t, script, `sim.run_NVT(n_steps=5000, kT=1.0, tau_kt=0.3)`)
	assert.Contains(t, script, ResultPrefix)

	shrink := strings.Index(script, `save_restart_gsd("shrink_restart.gsd")`)
	nvt := strings.Index(script, `sim.run_NVT`)
	restart := strings.Index(script, `save_restart_gsd("restart.gsd")`)
	assert.True(t, shrink > 0 && shrink < nvt && nvt < restart, "steps must render in plan order")
}

func TestRenderScriptResumeWithRigidBody(t *testing.T) {
	plan := &simulation.Plan{
		RunID:        "run-2",
		WorkDir:      "/tmp/job",
		InitialState: "restart.gsd",
		Forcefield:   simulation.Forcefield{Kind: simulation.ForcefieldMSIBI, MSIBIProject: "/msibi", MSIBIJob: "abc"},
		Constraint: &simulation.Constraint{Body: &simulation.RigidBody{
			Name:             "R",
			ConstituentTypes: []string{"X", "A"},
			Positions:        [][3]float64{{0, 0, 0}, {1.05, 0, 0}},
			Orientations:     [][4]float64{{1, 0, 0, 0}, {1, 0, 0, 0}},
		}},
		Settings: simulation.Settings{DT: 0.003},
		Steps:    []simulation.Step{simulation.NVT{NSteps: 10, KT: 1, TauKT: 0.3}},
	}

	script, err := RenderScript(plan)
	require.NoError(t, err)
	assert.NotContains(t, script, "Pack(")
	assert.Contains(t, script, `"abc", "forcefield.pickle"`)
	assert.Contains(t, script, `rigid.body["R"]`)
	assert.Contains(t, script, `[(0.0, 0.0, 0.0), (1.05, 0.0, 0.0)]`)
	assert.Contains(t, script, `initial_state="restart.gsd"`)
}

func TestRenderScriptNeedsStart(t *testing.T) {
	_, err := RenderScript(&simulation.Plan{RunID: "x"})
	assert.Error(t, err)
}

func TestPyLiteral(t *testing.T) {
	assert.Equal(t, "None", pyLiteral(nil))
	assert.Equal(t, "False", pyLiteral(false))
	assert.Equal(t, "3", pyLiteral(3))
	assert.Equal(t, "2.0", pyLiteral(2.0))
	assert.Equal(t, "1e+07", pyLiteral(1e7))
	assert.Equal(t, `"a\"b"`, pyLiteral(`a"b`))
	assert.Equal(t, `["T", "T"]`, pyLiteral([]string{"T", "T"}))
}

func TestScanResult(t *testing.T) {
	out := "Running simulation.\n" + ResultPrefix + `{"real_timestep": 2.5, "real_time_units": "fs"}` + "\n"
	res, err := scanResult(strings.NewReader(out))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2.5, res.RealTimestep)
	assert.Equal(t, "fs", res.RealTimeUnits)

	res, err = scanResult(strings.NewReader("nothing here\n"))
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = scanResult(strings.NewReader(ResultPrefix + "{bad\n"))
	assert.Error(t, err)
}

func fakePython(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestEngineExecute(t *testing.T) {
	python := fakePython(t, `echo "starting"
echo 'ELLIPFLOW_RESULT {"real_timestep": 0.5, "real_time_units": "fs"}'
`)
	dir := t.TempDir()
	plan := &simulation.Plan{RunID: "r1", WorkDir: dir, InitialState: "restart.gsd"}

	res, err := NewEngine(python, nil).Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.RealTimestep)
	assert.FileExists(t, filepath.Join(dir, ScriptDir, "r1.py"))

	console, err := os.ReadFile(filepath.Join(dir, ScriptDir, "r1.out"))
	require.NoError(t, err)
	assert.Contains(t, string(console), "starting")
}

func TestEngineExecuteFailure(t *testing.T) {
	python := fakePython(t, "echo boom >&2\nexit 3\n")
	plan := &simulation.Plan{RunID: "r2", WorkDir: t.TempDir(), InitialState: "restart.gsd"}

	_, err := NewEngine(python, nil).Execute(context.Background(), plan)
	assert.Error(t, err)
}

func TestEngineExecuteNoResult(t *testing.T) {
	python := fakePython(t, "echo done\n")
	plan := &simulation.Plan{RunID: "r3", WorkDir: t.TempDir(), InitialState: "restart.gsd"}

	_, err := NewEngine(python, nil).Execute(context.Background(), plan)
	assert.ErrorContains(t, err, "without a result line")
}
