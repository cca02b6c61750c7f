package storage

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/39george/multisig-ecdsa/internal/session"
	"github.com/39george/multisig-ecdsa/internal/storage/models"
)

// Archive persists finalized ceremony records. It implements
// ceremony.Archiver.
type Archive struct {
	db *gorm.DB
}

// NewArchive wraps an open database handle.
func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

// SaveRecord writes a record and its shares in a single transaction.
// Records are written at most once per session; a repeated save of the same
// session is a no-op.
func (a *Archive) SaveRecord(ctx context.Context, rec *session.Record) error {
	row := models.CeremonyRecord{
		SessionID:   rec.SessionID,
		Digest:      hex.EncodeToString(rec.Digest[:]),
		Threshold:   rec.Threshold,
		KeyCount:    len(rec.Authorized),
		FinalizedAt: rec.FinalizedAt,
	}

	tx := a.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "failed to begin transaction")
	}

	var existing int64
	if err := tx.Model(&models.CeremonyRecord{}).Where("session_id = ?", rec.SessionID).Count(&existing).Error; err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to check for existing record")
	}
	if existing > 0 {
		tx.Rollback()
		return nil
	}

	if err := tx.Create(&row).Error; err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to create ceremony record")
	}

	for _, sh := range rec.Shares {
		shareRow := models.RecordShare{
			SessionID:   rec.SessionID,
			PubKey:      sh.PubKey,
			R:           hex.EncodeToString(sh.R[:]),
			S:           hex.EncodeToString(sh.S[:]),
			SubmittedAt: sh.SubmittedAt,
		}
		if err := tx.Create(&shareRow).Error; err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to create share row for key %s", sh.PubKey)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}
