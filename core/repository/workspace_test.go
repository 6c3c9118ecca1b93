package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"ellipflow/core/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStatepoints() []models.Statepoint {
	return []models.Statepoint{
		{"chains": []interface{}{1, 10}, "dt": 0.001, "kT": 1.0, "n_equil_steps": 5e8},
		{"chains": []interface{}{5, 10}, "dt": 0.001, "kT": 1.0, "n_equil_steps": 5e8},
		{"chains": []interface{}{5, 10}, "dt": 0.002, "kT": 1.0, "n_equil_steps": 5e8},
	}
}

func testDefaults(sp models.Statepoint) map[string]interface{} {
	numMols, lengths, _ := sp.Pair("chains")
	return map[string]interface{}{
		"equilibrated":    false,
		"sampled":         false,
		"runs":            0,
		"production_runs": 0,
		"num_mols":        numMols,
		"lengths":         lengths,
	}
}

func TestJobID_Deterministic(t *testing.T) {
	a := models.Statepoint{"kT": 1.0, "dt": 0.001, "chains": []interface{}{1, 10}}
	b := models.Statepoint{"chains": []interface{}{1, 10}, "dt": 0.001, "kT": 1.0}
	c := models.Statepoint{"chains": []interface{}{1, 10}, "dt": 0.002, "kT": 1.0}

	idA, err := JobID(a)
	require.NoError(t, err)
	idB, err := JobID(b)
	require.NoError(t, err)
	idC, err := JobID(c)
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.NotEqual(t, idA, idC)
	assert.Len(t, idA, 32)
}

func TestInitProject(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	jobs, err := ws.InitProject(testStatepoints(), testDefaults)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	for _, job := range jobs {
		assert.True(t, job.IsFile(statepointFile))
		doc, err := job.Document()
		require.NoError(t, err)
		assert.False(t, doc.Equilibrated)
		assert.Equal(t, 0, doc.Runs)
		assert.Equal(t, 0, doc.ProductionRuns)
		assert.Equal(t, 10, doc.Lengths)
	}

	listed, err := ws.Jobs()
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	var summary map[string]map[string]interface{}
	data, err := os.ReadFile(filepath.Join(ws.Root(), summaryFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Len(t, summary, 3)
	for _, job := range jobs {
		assert.Contains(t, summary, job.ID)
	}
}

func TestInitProject_Idempotent(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	jobs, err := ws.InitProject(testStatepoints(), testDefaults)
	require.NoError(t, err)

	// advance one job as a stage would
	doc, err := jobs[0].Document()
	require.NoError(t, err)
	doc.Runs = 3
	doc.Equilibrated = true
	doc.TauKT = 0.1
	require.NoError(t, jobs[0].SaveDocument(doc))
	require.NoError(t, jobs[0].SetDocumentKey("notes", "hand edited"))
	before, err := jobs[0].RawDocument()
	require.NoError(t, err)

	again, err := ws.InitProject(testStatepoints(), testDefaults)
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.Equal(t, jobs[0].ID, again[0].ID)

	after, err := again[0].RawDocument()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	listed, err := ws.Jobs()
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestWorkspace_Job(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	jobs, err := ws.InitProject(testStatepoints(), testDefaults)
	require.NoError(t, err)

	job, err := ws.Job(jobs[1].ID)
	require.NoError(t, err)
	sp := job.Statepoint()
	numMols, lengths, err := sp.Pair("chains")
	require.NoError(t, err)
	assert.Equal(t, 5, numMols)
	assert.Equal(t, 10, lengths)
	steps, err := sp.Int("n_equil_steps")
	require.NoError(t, err)
	assert.Equal(t, 500000000, steps)

	_, err = ws.Job("deadbeef")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestSaveDocument_KeepsUnmodelledKeys(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	job, err := ws.OpenJob(models.Statepoint{"N": 128})
	require.NoError(t, err)
	require.NoError(t, job.Init())
	require.NoError(t, job.SetDefaults(map[string]interface{}{"runs": 0, "flavour": "p100"}))

	doc, err := job.Document()
	require.NoError(t, err)
	doc.Runs = 1
	doc.TargetBox = []float64{2, 2, 2}
	require.NoError(t, job.SaveDocument(doc))

	raw, err := job.RawDocument()
	require.NoError(t, err)
	assert.Equal(t, "p100", raw["flavour"])
	assert.Equal(t, json.Number("1"), raw["runs"])

	reloaded, err := job.Document()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, reloaded.TargetBox)
}

func TestJobs_SkipsStrayDirectories(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Root(), workspaceDir, "stray"), 0o755))

	jobs, err := ws.Jobs()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSetDocumentKey_RejectsMistypedValue(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	job, err := ws.OpenJob(models.Statepoint{"N": 128})
	require.NoError(t, err)
	require.NoError(t, job.Init())
	require.NoError(t, job.SetDefaults(map[string]interface{}{"runs": 1, "equilibrated": false}))
	before, err := job.RawDocument()
	require.NoError(t, err)

	err = job.SetDocumentKey("equilibrated", "yes")
	assert.True(t, errors.Is(err, ErrInvalidDocument), "got %v", err)
	err = job.SetDocumentKey("runs", 1.5)
	assert.True(t, errors.Is(err, ErrInvalidDocument), "got %v", err)

	after, err := job.RawDocument()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	doc, err := job.Document()
	require.NoError(t, err)
	assert.False(t, doc.Equilibrated)

	require.NoError(t, job.SetDocumentKey("equilibrated", true))
	require.NoError(t, job.SetDocumentKey("notes", map[string]interface{}{"by": "hand"}))
	doc, err = job.Document()
	require.NoError(t, err)
	assert.True(t, doc.Equilibrated)
}
