package models

// Directives are the per-operation resource hints handed to the cluster submission layer
type Directives struct {
	NGPU       int    `yaml:"ngpu" json:"ngpu"`
	NCPU       int    `yaml:"ncpu" json:"ncpu"`
	Executable string `yaml:"executable" json:"executable"`
}

// DefaultDirectives is what every simulation stage asks for: one accelerator, one core
var DefaultDirectives = Directives{
	NGPU:       1,
	NCPU:       1,
	Executable: "python -u",
}
