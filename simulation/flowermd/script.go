// Package flowermd runs simulation plans on the flowerMD/HOOMD-blue Python stack by
// rendering a driver script and executing it with a Python interpreter.
package flowermd

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"ellipflow/simulation"
)

// ResultPrefix marks the line the driver script prints on success
const ResultPrefix = "ELLIPFLOW_RESULT "

// scriptData is the flattened view of a plan the template renders
type scriptData struct {
	*simulation.Plan
	Start string
	Steps []stepView
}

type stepView struct {
	Kind string
	simulation.UpdateVolume
	simulation.NVT
	simulation.SaveRestart
}

var funcs = template.FuncMap{
	"py":   pyLiteral,
	"kind": func(k simulation.ForcefieldKind) string { return string(k) },
}

var driverTemplate = template.Must(template.New("driver").Funcs(funcs).Parse(`import json
import os
import pickle

import gsd.hoomd
import hoomd
import numpy as np
from unyt import Unit
from flowermd.base import Pack, Simulation
from flowermd.library import EllipsoidChain, EllipsoidForcefield
from flowermd.utils.constraints import create_rigid_ellipsoid_chain

os.chdir({{py .WorkDir}})
print("------------------------------------")
print("RUN ID:", {{py .RunID}})
print("------------------------------------")
{{- with .Pack}}

print("Building initial frame.")
chain = EllipsoidChain(num_mols={{py .NumMols}}, lengths={{py .Lengths}}, lpar={{py .Lpar}}, bead_mass={{py .BeadMass}})
system = Pack(
    molecules=chain,
    density={{py .Density}} * Unit("nm**-3"),
    packing_expand_factor={{py .PackingExpandFactor}},
    edge={{py .Edge}},
    overlap={{py .Overlap}},
    fix_orientation={{py .FixOrientation}},
    seed={{py .Seed}},
)
system.to_gsd({{py .Output}})
print("Finished.")
{{- end}}
{{with .Forcefield}}
{{- if eq (kind .Kind) "msibi"}}
with open(os.path.join({{py .MSIBIProject}}, "workspace", {{py .MSIBIJob}}, "forcefield.pickle"), "rb") as f:
    forces = pickle.load(f)
{{- else}}
ff = EllipsoidForcefield(
    epsilon={{py .Epsilon}},
    lpar={{py .Lpar}},
    lperp={{py .Lperp}},
    r_cut={{py .RCut}},
    bond_k={{py .BondK}},
    bond_r0={{py .BondR0}},
{{- if .AngleK}}
    angle_k={{py .AngleK}},
    angle_theta0={{py .AngleTheta0}},
{{- end}}
)
forces = ff.hoomd_forces
{{- end}}
{{- end}}

rigid = None
{{- with .Constraint}}
{{- if .FromSnapshot}}
with gsd.hoomd.open({{py .FromSnapshot}}, "r") as traj:
    rigid_frame, rigid = create_rigid_ellipsoid_chain(traj[-1])
{{- else if .Body}}
rigid = hoomd.md.constrain.Rigid()
rigid.body[{{py .Body.Name}}] = {
    "constituent_types": {{py .Body.ConstituentTypes}},
    "positions": {{py .Body.Positions}},
    "orientations": {{py .Body.Orientations}},
}
{{- end}}
{{- end}}

sim = Simulation(
    initial_state={{py .Start}},
    forcefield=forces,
    constraint=rigid,
    dt={{py .Settings.DT}},
    gsd_write_freq={{py .Settings.GSDWriteFreq}},
    gsd_file_name={{py .Settings.GSDFile}},
    log_write_freq={{py .Settings.LogWriteFreq}},
    log_file_name={{py .Settings.LogFile}},
    seed={{py .Settings.Seed}},
)
print("Running simulation.")
{{- range .Steps}}
{{- if eq .Kind "update_volume"}}
ramp = sim.temperature_ramp(n_steps={{py .Ramp.NSteps}}, kT_start={{py .Ramp.KTStart}}, kT_final={{py .Ramp.KTFinal}})
sim.run_update_volume(
    final_box_lengths=np.array([{{py .FinalBox.X}}, {{py .FinalBox.Y}}, {{py .FinalBox.Z}}]) * Unit("nm"),
    n_steps={{py .UpdateVolume.NSteps}},
    period={{py .Period}},
    tau_kt={{py .UpdateVolume.TauKT}},
    kT=ramp,
)
print("Shrinking simulation finished...")
{{- else if eq .Kind "nvt"}}
sim.run_NVT(n_steps={{py .NVT.NSteps}}, kT={{py .KT}}, tau_kt={{py .NVT.TauKT}})
{{- else if eq .Kind "save_restart"}}
sim.save_restart_gsd({{py .Path}})
{{- end}}
{{- end}}
print("Simulation finished.")
print({{py .ResultPrefix}} + json.dumps({
    "real_timestep": float(sim.real_timestep.to("fs").value),
    "real_time_units": "fs",
}), flush=True)
`))

// ResultPrefix is exposed to the template through scriptData
func (scriptData) ResultPrefix() string { return ResultPrefix }

// RenderScript renders the Python driver for a plan
func RenderScript(plan *simulation.Plan) (string, error) {
	if plan.Pack == nil && plan.InitialState == "" {
		return "", fmt.Errorf("plan %s has no initial state", plan.RunID)
	}

	data := scriptData{Plan: plan, Start: plan.StartState()}
	for _, step := range plan.Steps {
		view := stepView{Kind: string(step.Kind())}
		switch s := step.(type) {
		case simulation.UpdateVolume:
			view.UpdateVolume = s
		case simulation.NVT:
			view.NVT = s
		case simulation.SaveRestart:
			view.SaveRestart = s
		default:
			return "", fmt.Errorf("unsupported step %T", step)
		}
		data.Steps = append(data.Steps, view)
	}

	var b strings.Builder
	if err := driverTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render driver for %s: %w", plan.RunID, err)
	}
	return b.String(), nil
}

// pyLiteral formats a Go value as a Python literal
func pyLiteral(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return strconv.Quote(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case float64:
		return pyFloat(x)
	case *float64:
		if x == nil {
			return "None"
		}
		return pyFloat(*x)
	case []string:
		items := make([]string, len(x))
		for i, s := range x {
			items[i] = strconv.Quote(s)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case [][3]float64:
		return pyTuples(len(x), func(i int) []float64 { return x[i][:] })
	case [][4]float64:
		return pyTuples(len(x), func(i int) []float64 { return x[i][:] })
	default:
		return fmt.Sprintf("%v", v)
	}
}

func pyFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

func pyTuples(n int, at func(int) []float64) string {
	items := make([]string, n)
	for i := 0; i < n; i++ {
		vals := at(i)
		parts := make([]string, len(vals))
		for j, f := range vals {
			parts[j] = pyFloat(f)
		}
		items[i] = "(" + strings.Join(parts, ", ") + ")"
	}
	return "[" + strings.Join(items, ", ") + "]"
}
