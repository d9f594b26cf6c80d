package vectors

import (
	"time"

	"github.com/google/uuid"
)

const (
	KeyStatusActive  = "active"
	KeyStatusRotated = "rotated"
	KeyStatusRetired = "retired"
)

// EncryptionKey tracks one symmetric key used to seal chunk text and
// metadata at rest. Rows are referenced, never owned, by chunk rows;
// rotation must not break historical encryption_key_id pointers.
type EncryptionKey struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Version int       `gorm:"column:version;not null;uniqueIndex" json:"version"`
	Status  string    `gorm:"column:status;not null;index" json:"status"`

	ActivatedAt time.Time  `gorm:"column:activated_at;not null;default:now()" json:"activated_at"`
	RotatedAt   *time.Time `gorm:"column:rotated_at" json:"rotated_at,omitempty"`
	RetiredAt   *time.Time `gorm:"column:retired_at" json:"retired_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (EncryptionKey) TableName() string { return "encryption_key" }
