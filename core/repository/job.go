package repository

import (
	"encoding/json"
	"os"
	"path/filepath"

	"ellipflow/core/models"

	"github.com/pkg/errors"
)

// Job is a handle on one job directory
type Job struct {
	ID  string
	dir string
	sp  models.Statepoint
}

// Dir returns the job directory
func (j *Job) Dir() string {
	return j.dir
}

// Fn returns the path of a file inside the job directory
func (j *Job) Fn(name string) string {
	return filepath.Join(j.dir, name)
}

// IsFile reports whether the named file exists in the job directory
func (j *Job) IsFile(name string) bool {
	info, err := os.Stat(j.Fn(name))
	return err == nil && !info.IsDir()
}

// Statepoint returns a copy of the job's statepoint
func (j *Job) Statepoint() models.Statepoint {
	sp := make(models.Statepoint, len(j.sp))
	for k, v := range j.sp {
		sp[k] = v
	}
	return sp
}

// Init creates the job directory and statepoint file if they do not exist
func (j *Job) Init() error {
	if j.IsFile(statepointFile) {
		return nil
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create job directory %s", j.ID)
	}
	if err := writeCanonicalAtomic(j.Fn(statepointFile), j.sp); err != nil {
		return errors.Wrapf(err, "failed to write statepoint of job %s", j.ID)
	}
	return nil
}

// RawDocument returns the document as stored, including keys the Document type does not model
func (j *Job) RawDocument() (map[string]interface{}, error) {
	raw := map[string]interface{}{}
	if err := readJSON(j.Fn(documentFile), &raw); err != nil {
		if os.IsNotExist(err) {
			return raw, nil
		}
		return nil, errors.Wrapf(err, "failed to read document of job %s", j.ID)
	}
	return raw, nil
}

// Document loads the job document
func (j *Job) Document() (models.Document, error) {
	var doc models.Document
	data, err := os.ReadFile(j.Fn(documentFile))
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, errors.Wrapf(err, "failed to read document of job %s", j.ID)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, errors.Wrapf(err, "failed to decode document of job %s", j.ID)
	}
	return doc, nil
}

// SetDefaults writes each key only if the document does not already have it
func (j *Job) SetDefaults(defaults map[string]interface{}) error {
	raw, err := j.RawDocument()
	if err != nil {
		return err
	}
	changed := false
	for k, v := range defaults {
		if _, ok := raw[k]; ok {
			continue
		}
		raw[k] = v
		changed = true
	}
	if !changed {
		return nil
	}
	return j.writeDocument(raw)
}

// ErrInvalidDocument is returned when an edit would leave a document that no longer decodes
var ErrInvalidDocument = errors.New("invalid document")

// SetDocumentKey overwrites one document key. Edits that give a modelled key the wrong
// type are rejected and the stored document is left as it was.
func (j *Job) SetDocumentKey(key string, value interface{}) error {
	raw, err := j.RawDocument()
	if err != nil {
		return err
	}
	raw[key] = value

	data, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrapf(ErrInvalidDocument, "%s: %v", key, err)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(ErrInvalidDocument, "%s=%v for job %s: %v", key, value, j.ID, err)
	}
	return j.writeDocument(raw)
}

// SaveDocument persists doc, keeping any stored keys the Document type does not model
func (j *Job) SaveDocument(doc models.Document) error {
	raw, err := j.RawDocument()
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to encode document")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(err, "failed to encode document")
	}
	for k, v := range fields {
		raw[k] = v
	}
	return j.writeDocument(raw)
}

func (j *Job) writeDocument(raw map[string]interface{}) error {
	if err := writeJSONAtomic(j.Fn(documentFile), raw); err != nil {
		return errors.Wrapf(err, "failed to write document of job %s", j.ID)
	}
	return nil
}
