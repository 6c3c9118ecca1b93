package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Statepoint is the immutable parameter combination that identifies a job
type Statepoint map[string]interface{}

// Document is the mutable per-job status record
type Document struct {
	Equilibrated   bool    `json:"equilibrated"`
	Sampled        bool    `json:"sampled"`
	Runs           int     `json:"runs"`
	ProductionRuns int     `json:"production_runs"`
	NumMols        int     `json:"num_mols,omitempty"`
	Lengths        int     `json:"lengths,omitempty"`
	NParticles     int     `json:"n_particles,omitempty"`
	TauKT          float64 `json:"tau_kT,omitempty"`
	// Target box edge lengths (x, y, z) reached by the shrink phase
	TargetBox     []float64 `json:"target_box,omitempty"`
	RealTimeStep  float64   `json:"real_time_step,omitempty"`
	RealTimeUnits string    `json:"real_time_units,omitempty"`
	Node          string    `json:"node,omitempty"`

	// Timing metadata
	LastOperation   string             `json:"last_operation,omitempty"`
	LastRunID       string             `json:"last_run_id,omitempty"`
	LastCompletedAt *time.Time         `json:"last_completed_at,omitempty"`
	Walltime        map[string]float64 `json:"walltime,omitempty"` // seconds, accumulated per operation
}

// State is a job's position in the simulation pipeline
type State string

const (
	StateUninitialized      State = "uninitialized"
	StateBuilt              State = "built"
	StateInitialRunDone     State = "initial_run_done"
	StateEquilibrated       State = "equilibrated"
	StateProductionDone     State = "production_done"
	StateProductionExtended State = "production_extended"
)

// States lists every state in completion order
var States = []State{
	StateUninitialized,
	StateBuilt,
	StateInitialRunDone,
	StateEquilibrated,
	StateProductionDone,
	StateProductionExtended,
}

// Clone returns a deep copy of the document
func (d Document) Clone() Document {
	out := d
	if d.TargetBox != nil {
		out.TargetBox = append([]float64(nil), d.TargetBox...)
	}
	if d.Walltime != nil {
		out.Walltime = make(map[string]float64, len(d.Walltime))
		for k, v := range d.Walltime {
			out.Walltime[k] = v
		}
	}
	if d.LastCompletedAt != nil {
		t := *d.LastCompletedAt
		out.LastCompletedAt = &t
	}
	return out
}

// Has reports whether the statepoint carries the named parameter
func (sp Statepoint) Has(key string) bool {
	_, ok := sp[key]
	return ok
}

// Float returns a numeric parameter as float64
func (sp Statepoint) Float(key string) (float64, error) {
	v, ok := sp[key]
	if !ok {
		return 0, fmt.Errorf("statepoint has no parameter %q", key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("statepoint parameter %q is %T, not a number", key, v)
	}
	return f, nil
}

// Int returns a numeric parameter as int. Values written as 5e8 are accepted.
func (sp Statepoint) Int(key string) (int, error) {
	f, err := sp.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Bool returns a boolean parameter
func (sp Statepoint) Bool(key string) (bool, error) {
	v, ok := sp[key]
	if !ok {
		return false, fmt.Errorf("statepoint has no parameter %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("statepoint parameter %q is %T, not a bool", key, v)
	}
	return b, nil
}

// String returns a string parameter
func (sp Statepoint) String(key string) (string, error) {
	v, ok := sp[key]
	if !ok {
		return "", fmt.Errorf("statepoint has no parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("statepoint parameter %q is %T, not a string", key, v)
	}
	return s, nil
}

// Pair returns a two-element integer list parameter such as chains=(num_mols, lengths)
func (sp Statepoint) Pair(key string) (int, int, error) {
	v, ok := sp[key]
	if !ok {
		return 0, 0, fmt.Errorf("statepoint has no parameter %q", key)
	}
	list, ok := v.([]interface{})
	if !ok || len(list) != 2 {
		return 0, 0, fmt.Errorf("statepoint parameter %q is not a pair", key)
	}
	a, okA := toFloat(list[0])
	b, okB := toFloat(list[1])
	if !okA || !okB {
		return 0, 0, fmt.Errorf("statepoint parameter %q is not a numeric pair", key)
	}
	return int(a), int(b), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
