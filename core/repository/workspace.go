package repository

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"ellipflow/core/models"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	workspaceDir   = "workspace"
	statepointFile = "signac_statepoint.json"
	documentFile   = "signac_job_document.json"
	summaryFile    = "signac_statepoints.json"
)

// ErrJobNotFound is returned when no job directory exists for an id
var ErrJobNotFound = errors.New("job not found")

// Workspace is the on-disk job store: one directory per statepoint under workspace/
type Workspace struct {
	root string
}

// NewWorkspace opens (creating if needed) the workspace rooted at root
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve workspace root %s", root)
	}
	if err := os.MkdirAll(filepath.Join(abs, workspaceDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create workspace directory")
	}
	return &Workspace{root: abs}, nil
}

// Root returns the project root directory
func (w *Workspace) Root() string {
	return w.root
}

// JobID derives the identity of a statepoint: hex MD5 of its canonical JSON encoding,
// matching the ids signac assigns to the same statepoint
func JobID(sp models.Statepoint) (string, error) {
	data, err := canonicalJSON(sp)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode statepoint")
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// OpenJob returns the job for a statepoint without touching the disk
func (w *Workspace) OpenJob(sp models.Statepoint) (*Job, error) {
	id, err := JobID(sp)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:  id,
		dir: filepath.Join(w.root, workspaceDir, id),
		sp:  sp,
	}, nil
}

// Job opens an initialized job by id
func (w *Workspace) Job(id string) (*Job, error) {
	dir := filepath.Join(w.root, workspaceDir, id)
	var sp models.Statepoint
	if err := readJSON(filepath.Join(dir, statepointFile), &sp); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrJobNotFound, "job %s", id)
		}
		return nil, errors.Wrapf(err, "failed to read statepoint of job %s", id)
	}
	return &Job{ID: id, dir: dir, sp: sp}, nil
}

// Jobs lists all initialized jobs sorted by id
func (w *Workspace) Jobs() ([]*Job, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, workspaceDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list workspace")
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := w.Job(id)
		if errors.Is(err, ErrJobNotFound) {
			// directory without a statepoint, not a job
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// InitProject creates one job per statepoint and seeds its document. Defaults are only
// applied to keys that are absent, so re-running leaves existing documents alone.
func (w *Workspace) InitProject(
	statepoints []models.Statepoint,
	defaults func(models.Statepoint) map[string]interface{},
) ([]*Job, error) {
	jobs := make([]*Job, 0, len(statepoints))
	for _, sp := range statepoints {
		job, err := w.OpenJob(sp)
		if err != nil {
			return nil, err
		}
		if err := job.Init(); err != nil {
			return nil, err
		}
		if err := job.SetDefaults(defaults(sp)); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := w.WriteSummary(); err != nil {
		return nil, err
	}
	log.WithField("jobs", len(jobs)).Info("Workspace initialized")
	return jobs, nil
}

// WriteSummary rewrites the root summary mapping every job id to its statepoint
func (w *Workspace) WriteSummary() error {
	jobs, err := w.Jobs()
	if err != nil {
		return err
	}
	summary := make(map[string]interface{}, len(jobs))
	for _, job := range jobs {
		summary[job.ID] = job.sp
	}
	if err := writeCanonicalAtomic(filepath.Join(w.root, summaryFile), summary); err != nil {
		return errors.Wrap(err, "failed to write statepoint summary")
	}
	return nil
}
