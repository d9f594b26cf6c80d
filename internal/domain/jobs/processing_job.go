package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobTypeParse    = "parse"
	JobTypeChunk    = "chunk"
	JobTypeEmbed    = "embed"
	JobTypeComplete = "complete"
	JobTypeNotify   = "notify"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRetrying  = "retrying"
)

const DefaultMaxRetries = 3

// KnownJobType reports whether t names a pipeline stage.
func KnownJobType(t string) bool {
	switch t {
	case JobTypeParse, JobTypeChunk, JobTypeEmbed, JobTypeComplete, JobTypeNotify:
		return true
	default:
		return false
	}
}

// TerminalStatus reports whether a job status admits no further transitions.
func TerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// ProcessingJob is one durable unit of pipeline work for a document.
//
// State machine: pending → running → {completed | retrying | failed};
// retrying → pending-equivalent once scheduled_at elapses; cancelled is
// reachable only from pending/retrying. A claimed row carries a locked_at
// lease so concurrent claimants skip it even before mark-running commits.
type ProcessingJob struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	// user_document or regulatory_document; selects which registry DocumentID points at.
	SourceType string `gorm:"column:source_type;not null;index" json:"source_type"`

	JobType string `gorm:"column:job_type;not null;index" json:"job_type"`
	Status  string `gorm:"column:status;not null;index" json:"status"`

	Priority   int `gorm:"column:priority;not null;default:0" json:"priority"`
	RetryCount int `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries int `gorm:"column:max_retries;not null;default:3" json:"max_retries"`

	ScheduledAt time.Time  `gorm:"column:scheduled_at;not null;index" json:"scheduled_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`

	Payload      datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result       datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	ErrorMessage string         `gorm:"column:error_message" json:"error_message,omitempty"`
	ErrorDetails datatypes.JSON `gorm:"column:error_details;type:jsonb" json:"error_details,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ProcessingJob) TableName() string { return "processing_job" }
