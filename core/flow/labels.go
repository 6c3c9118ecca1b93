package flow

import (
	"ellipflow/core/models"
	"ellipflow/core/repository"
	"ellipflow/storage"
)

// Condition is a named, read-only check of a job's document and files
type Condition struct {
	Name  string
	Check func(job *repository.Job) (bool, error)
}

// SystemBuilt holds once the given snapshot exists in the job directory
func SystemBuilt(file string) Condition {
	return Condition{
		Name: "system_built",
		Check: func(job *repository.Job) (bool, error) {
			return job.IsFile(file), nil
		},
	}
}

// InitialRunDone holds once the first equilibration run has completed
var InitialRunDone = docCondition("initial_run_done", func(doc models.Document) bool {
	return doc.Runs > 0
})

// Equilibrated holds once the researcher has marked the job as equilibrated
var Equilibrated = docCondition("equilibrated", func(doc models.Document) bool {
	return doc.Equilibrated
})

// ProductionDone holds once a production restart snapshot exists
var ProductionDone = Condition{
	Name: "production_done",
	Check: func(job *repository.Job) (bool, error) {
		return job.IsFile(storage.ProductionRestart), nil
	},
}

// ProductionExtended holds once production has been extended at least once
var ProductionExtended = docCondition("production_extended", func(doc models.Document) bool {
	return doc.ProductionRuns > 1
})

func docCondition(name string, pred func(models.Document) bool) Condition {
	return Condition{
		Name: name,
		Check: func(job *repository.Job) (bool, error) {
			doc, err := job.Document()
			if err != nil {
				return false, err
			}
			return pred(doc), nil
		},
	}
}

// all reports whether every condition holds. An empty list holds vacuously.
func all(job *repository.Job, conds []Condition) (bool, error) {
	for _, c := range conds {
		ok, err := c.Check(job)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
