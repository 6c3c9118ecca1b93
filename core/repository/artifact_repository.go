package repository

import (
	"context"
	"encoding/json"
	"time"

	"ellipflow/core/models"

	"github.com/pkg/errors"
)

// ArtifactRepository handles database operations for job artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetJobArtifacts retrieves artifacts for a job, newest first
func (r *ArtifactRepository) GetJobArtifacts(ctx context.Context, jobID string, artifactType *models.ArtifactType) ([]models.JobArtifact, error) {
	query := `
		SELECT id, job_id, run_id, type, uri, created_at, meta_json
		FROM job_artifacts
		WHERE job_id = ?
	`
	args := []interface{}{jobID}

	if artifactType != nil {
		query += " AND type = ?"
		args = append(args, string(*artifactType))
	}

	query += " ORDER BY id DESC"

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query artifacts for job %s", jobID)
	}
	defer rows.Close()

	var artifacts []models.JobArtifact
	for rows.Next() {
		var artifact models.JobArtifact
		var artifactType string
		var createdAt string
		var metaJSON string

		if err := rows.Scan(
			&artifact.ID,
			&artifact.JobID,
			&artifact.RunID,
			&artifactType,
			&artifact.URI,
			&createdAt,
			&metaJSON,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact")
		}
		artifact.Type = models.ArtifactType(artifactType)
		artifact.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "bad artifact timestamp %q", createdAt)
		}

		// Parse meta JSON
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &artifact.MetaJSON); err != nil {
				return nil, errors.Wrap(err, "failed to decode artifact metadata")
			}
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// CreateArtifact creates a new artifact record
func (r *ArtifactRepository) CreateArtifact(
	ctx context.Context,
	jobID, runID string,
	artifactType models.ArtifactType,
	uri string,
	meta map[string]interface{},
) error {
	metaJSON := "{}"
	if meta != nil {
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return errors.Wrap(err, "failed to encode artifact metadata")
		}
		metaJSON = string(metaBytes)
	}

	query := `
		INSERT INTO job_artifacts (job_id, run_id, type, uri, created_at, meta_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.db.rebind(query),
		jobID, runID, string(artifactType), uri, time.Now().UTC().Format(time.RFC3339Nano), metaJSON)
	if err != nil {
		return errors.Wrapf(err, "failed to record artifact for job %s", jobID)
	}
	return nil
}
