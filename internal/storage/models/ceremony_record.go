package models

import (
	"time"

	"github.com/google/uuid"
)

// CeremonyRecord is a finalized ceremony as persisted: the digest that was
// authorized, the policy that was satisfied, and the accepted shares.
type CeremonyRecord struct {
	SessionID   uuid.UUID     `gorm:"type:uuid;primary_key" json:"sessionId"`
	Digest      string        `gorm:"type:varchar(64)" json:"digest"` // hex
	Threshold   int           `json:"threshold"`
	KeyCount    int           `json:"keyCount"`
	Shares      []RecordShare `gorm:"foreignKey:SessionID;references:SessionID"` // Has-many relationship using UUID
	FinalizedAt time.Time     `json:"finalizedAt"`
}
