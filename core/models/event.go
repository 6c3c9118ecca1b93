package models

import "time"

// EventReason describes why a job event was recorded
type EventReason string

const (
	ReasonInitialized EventReason = "job_initialized"
	ReasonStarted     EventReason = "operation_started"
	ReasonCompleted   EventReason = "operation_completed"
	ReasonFailed      EventReason = "operation_failed"
	ReasonEdited      EventReason = "document_edited"
)

// JobEvent represents a stage execution attempt or document change for a job
type JobEvent struct {
	ID        int64
	JobID     string
	RunID     string
	Operation string
	At        time.Time
	FromState *State
	ToState   State
	Reason    EventReason
	MetaJSON  map[string]interface{} // Additional metadata
}

// ArtifactType represents the type of job artifact
type ArtifactType string

const (
	ArtifactTypeCheckpoint ArtifactType = "checkpoint"
	ArtifactTypeForcefield ArtifactType = "forcefield"
	ArtifactTypeTrajectory ArtifactType = "trajectory"
	ArtifactTypeLog        ArtifactType = "log"
)

// JobArtifact represents a file a stage left in the job directory
type JobArtifact struct {
	ID        int64
	JobID     string
	RunID     string
	Type      ArtifactType
	URI       string
	CreatedAt time.Time
	MetaJSON  map[string]interface{}
}
