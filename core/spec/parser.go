package spec

import (
	"fmt"
	"os"

	"ellipflow/core/environment"
	"ellipflow/core/sweep"
	"ellipflow/simulation"

	"gopkg.in/yaml.v3"
)

// Workflow names understood by the stage registry
const (
	WorkflowEllipsoids      = "ellipsoids"
	WorkflowPPS             = "pps"
	WorkflowSingleEllipsoid = "single-ellipsoid"
)

var knownWorkflows = map[string]bool{
	WorkflowEllipsoids:      true,
	WorkflowPPS:             true,
	WorkflowSingleEllipsoid: true,
}

// Project is a parsed project definition
type Project struct {
	Name               string
	Workflow           string
	Parameters         sweep.Parameters
	Document           map[string]interface{} // extra document defaults
	Settings           Settings
	Environments       []environment.Environment
	DefaultEnvironment string
}

// Settings are stage constants that are not part of the statepoint
type Settings struct {
	RunLongerSteps         float64                `yaml:"run_longer_steps"`
	ProductionGSDWriteFreq float64                `yaml:"production_gsd_write_freq"`
	ProductionStepFactor   float64                `yaml:"production_step_factor"`
	Forcefield             *simulation.Forcefield `yaml:"forcefield,omitempty"`
	Pack                   *PackSettings          `yaml:"pack,omitempty"`
}

// PackSettings are packing constants for projects whose statepoint omits them
type PackSettings struct {
	Lpar                float64 `yaml:"lpar"`
	BeadMass            float64 `yaml:"bead_mass"`
	PackingExpandFactor float64 `yaml:"packing_expand_factor"`
	Edge                float64 `yaml:"edge"`
	Overlap             float64 `yaml:"overlap"`
	FixOrientation      bool    `yaml:"fix_orientation"`
}

// projectFile is the YAML layout of a project definition
type projectFile struct {
	Name               string                    `yaml:"name"`
	Workflow           string                    `yaml:"workflow"`
	Parameters         yaml.Node                 `yaml:"parameters"`
	Document           map[string]interface{}    `yaml:"document"`
	Settings           Settings                  `yaml:"settings"`
	Environments       []environment.Environment `yaml:"environments"`
	DefaultEnvironment string                    `yaml:"default_environment"`
}

// ParseProject parses a YAML project definition
func ParseProject(data []byte) (*Project, error) {
	var file projectFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if file.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if !knownWorkflows[file.Workflow] {
		return nil, fmt.Errorf("unknown workflow %q", file.Workflow)
	}

	params, err := parseParameters(&file.Parameters)
	if err != nil {
		return nil, err
	}

	project := &Project{
		Name:               file.Name,
		Workflow:           file.Workflow,
		Parameters:         params,
		Document:           file.Document,
		Settings:           file.Settings,
		Environments:       file.Environments,
		DefaultEnvironment: file.DefaultEnvironment,
	}

	// Set defaults
	if project.Settings.RunLongerSteps == 0 {
		project.Settings.RunLongerSteps = 1e7
	}
	if project.Settings.ProductionGSDWriteFreq == 0 {
		project.Settings.ProductionGSDWriteFreq = 5e5
	}
	if project.Settings.ProductionStepFactor == 0 {
		project.Settings.ProductionStepFactor = 2
	}
	if project.Document == nil {
		project.Document = map[string]interface{}{}
	}

	return project, nil
}

// LoadProject reads and parses a project definition file
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", path, err)
	}
	return ParseProject(data)
}

// parseParameters walks the mapping node so declaration order survives decoding
func parseParameters(node *yaml.Node) (sweep.Parameters, error) {
	if node.Kind == 0 {
		return nil, fmt.Errorf("project has no parameters")
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parameters must be a mapping (line %d)", node.Line)
	}

	params := make(sweep.Parameters, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("parameter %s must list candidate values (line %d)", key.Value, value.Line)
		}
		var values []interface{}
		if err := value.Decode(&values); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key.Value, err)
		}
		params = append(params, sweep.Parameter{Name: key.Value, Values: values})
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("project has no parameters")
	}
	return params, nil
}
