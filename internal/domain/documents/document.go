package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending    = "pending"
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusChunking   = "chunking"
	StatusEmbedding  = "embedding"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Terminal reports whether a document status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Document is the canonical registry row for a user-uploaded artifact.
// Status and progress are mutated only by processing stage completions;
// rows are never hard-deleted while chunks reference them (chunk rows
// cascade when the document is removed).
type Document struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Title       string `gorm:"column:title;not null" json:"title"`
	StorageKey  string `gorm:"column:storage_key;not null" json:"storage_key"`
	ContentHash string `gorm:"column:content_hash;not null;uniqueIndex" json:"content_hash"`
	ContentType string `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	Tags        string `gorm:"column:tags" json:"tags,omitempty"`

	Status             string `gorm:"column:status;not null;index" json:"status"`
	ProgressPercentage int    `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`

	TotalChunks     int `gorm:"column:total_chunks;not null;default:0" json:"total_chunks"`
	ProcessedChunks int `gorm:"column:processed_chunks;not null;default:0" json:"processed_chunks"`
	FailedChunks    int `gorm:"column:failed_chunks;not null;default:0" json:"failed_chunks"`

	ErrorMessage string `gorm:"column:error_message" json:"error_message,omitempty"`
	FailedStage  string `gorm:"column:failed_stage" json:"failed_stage,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
