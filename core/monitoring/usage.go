package monitoring

import (
	"sort"

	"ellipflow/core/flow"
	"ellipflow/core/models"
)

// Usage accumulates accelerator time consumed per operation across jobs
type Usage struct {
	GPUHours map[string]float64
	Walltime map[string]float64 // seconds
}

// NewUsage creates an empty usage summary
func NewUsage() *Usage {
	return &Usage{
		GPUHours: map[string]float64{},
		Walltime: map[string]float64{},
	}
}

// Add folds one job's recorded walltime into the summary. Operations the workflow does not
// know are counted at one GPU.
func (u *Usage) Add(workflow *flow.Workflow, doc models.Document) {
	for name, seconds := range doc.Walltime {
		ngpu := 1
		if op, err := workflow.Operation(name); err == nil && op.Directives.NGPU > 0 {
			ngpu = op.Directives.NGPU
		}
		u.Walltime[name] += seconds
		u.GPUHours[name] += seconds / 3600 * float64(ngpu)
	}
}

// Operations returns the operations with recorded usage, sorted by name
func (u *Usage) Operations() []string {
	names := make([]string, 0, len(u.Walltime))
	for name := range u.Walltime {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalGPUHours sums GPU hours over all operations
func (u *Usage) TotalGPUHours() float64 {
	total := 0.0
	for _, h := range u.GPUHours {
		total += h
	}
	return total
}
