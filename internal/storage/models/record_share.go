package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecordShare holds one accepted signature share of a finalized ceremony.
// It belongs to a CeremonyRecord.
type RecordShare struct {
	gorm.Model
	SessionID   uuid.UUID `gorm:"type:uuid;index" json:"-"` // Foreign key to the ceremony record
	PubKey      string    `gorm:"type:varchar(66)" json:"pubKey"` // hex, compressed
	R           string    `gorm:"type:varchar(64)" json:"r"`
	S           string    `gorm:"type:varchar(64)" json:"s"`
	SubmittedAt time.Time `json:"submittedAt"`
}
