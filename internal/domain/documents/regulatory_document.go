package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RegulatoryDocument is a shared corpus artifact with no owning user. It
// moves through the same processing pipeline as user documents and lands in
// the same chunk table under its own source type.
type RegulatoryDocument struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Title        string `gorm:"column:title;not null" json:"title"`
	Jurisdiction string `gorm:"column:jurisdiction;index" json:"jurisdiction,omitempty"`
	Citation     string `gorm:"column:citation" json:"citation,omitempty"`
	Tags         string `gorm:"column:tags" json:"tags,omitempty"`

	StorageKey  string `gorm:"column:storage_key;not null" json:"storage_key"`
	ContentHash string `gorm:"column:content_hash;not null;uniqueIndex" json:"content_hash"`
	ContentType string `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`

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

func (RegulatoryDocument) TableName() string { return "regulatory_document" }
