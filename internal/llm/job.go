package llm

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one asynchronously executed query. The HTTP layer creates it
// and publishes the id; the worker runs the pipeline and fills in the
// terminal fields.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"job_id"` // ULID

	SessionID string `gorm:"size:26;index;not null" json:"session_id"`
	DatasetID string `gorm:"size:36;index;not null" json:"dataset_id"`

	Query string `gorm:"type:text;not null" json:"query"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_idempo,unique" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index" json:"result_message_id,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
