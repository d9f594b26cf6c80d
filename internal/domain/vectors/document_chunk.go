package vectors

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceTypeUserDocument       = "user_document"
	SourceTypeRegulatoryDocument = "regulatory_document"
)

// DocumentChunk is one embedded slice of a document. Two corpora share this
// table behind the source_type discriminator: exactly one of DocumentID /
// RegulatoryDocumentID is set, owner_user_id is required for user chunks and
// forbidden for regulatory chunks, and the encryption triple (encrypted_text,
// encrypted_metadata, encryption_key_id) is all-null or all-non-null.
// (document, chunk_index) is unique among active rows per source type.
// Rows are immutable after insert except the is_active flip.
type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChunkIndex int       `gorm:"column:chunk_index;not null" json:"chunk_index"`

	SourceType           string     `gorm:"column:source_type;not null;index" json:"source_type"`
	DocumentID           *uuid.UUID `gorm:"type:uuid;column:document_id;index" json:"document_id,omitempty"`
	RegulatoryDocumentID *uuid.UUID `gorm:"type:uuid;column:regulatory_document_id;index" json:"regulatory_document_id,omitempty"`
	OwnerUserID          *uuid.UUID `gorm:"type:uuid;column:owner_user_id;index" json:"owner_user_id,omitempty"`

	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding;not null" json:"embedding"`

	EncryptedText     []byte     `gorm:"column:encrypted_text" json:"-"`
	EncryptedMetadata []byte     `gorm:"column:encrypted_metadata" json:"-"`
	EncryptionKeyID   *uuid.UUID `gorm:"type:uuid;column:encryption_key_id" json:"encryption_key_id,omitempty"`

	IsActive  bool      `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

// OwningDocumentID returns whichever registry reference is set.
func (c *DocumentChunk) OwningDocumentID() uuid.UUID {
	if c.DocumentID != nil {
		return *c.DocumentID
	}
	if c.RegulatoryDocumentID != nil {
		return *c.RegulatoryDocumentID
	}
	return uuid.Nil
}
