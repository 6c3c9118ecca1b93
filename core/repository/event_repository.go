package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"ellipflow/core/models"

	"github.com/pkg/errors"
)

// EventRepository handles database operations for job events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateJobEvent records an event. At defaults to now.
func (r *EventRepository) CreateJobEvent(ctx context.Context, event *models.JobEvent) error {
	query := `
		INSERT INTO job_events (job_id, run_id, operation, at, from_state, to_state, reason, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	var fromState *string
	if event.FromState != nil {
		s := string(*event.FromState)
		fromState = &s
	}

	metaJSON := "{}"
	if event.MetaJSON != nil {
		metaBytes, err := json.Marshal(event.MetaJSON)
		if err != nil {
			return errors.Wrap(err, "failed to encode event metadata")
		}
		metaJSON = string(metaBytes)
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(query),
		event.JobID,
		event.RunID,
		event.Operation,
		event.At.Format(time.RFC3339Nano),
		fromState,
		string(event.ToState),
		string(event.Reason),
		metaJSON,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record event for job %s", event.JobID)
	}
	return nil
}

// GetJobEvents retrieves the most recent events for a job, newest first
func (r *EventRepository) GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_id, run_id, operation, at, from_state, to_state, reason, meta_json
		FROM job_events
		WHERE job_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), jobID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query events for job %s", jobID)
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		var at string
		var fromState sql.NullString
		var toState, reason string
		var metaJSON string

		if err := rows.Scan(
			&event.ID,
			&event.JobID,
			&event.RunID,
			&event.Operation,
			&at,
			&fromState,
			&toState,
			&reason,
			&metaJSON,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}

		event.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, errors.Wrapf(err, "bad event timestamp %q", at)
		}
		if fromState.Valid {
			state := models.State(fromState.String)
			event.FromState = &state
		}
		event.ToState = models.State(toState)
		event.Reason = models.EventReason(reason)

		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &event.MetaJSON); err != nil {
				return nil, errors.Wrap(err, "failed to decode event metadata")
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
