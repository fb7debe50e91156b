// Package acceptance keeps the immutable proof that a user accepted a
// specific version of a generated document. The content hash binds the
// acceptance to the exact bytes that were shown, so later drift of the
// document cannot retroactively be claimed as accepted.
package acceptance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scribeforge/scribeforge/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordInput carries everything one acceptance needs. Content is optional;
// when present its SHA-256 digest is stored.
type RecordInput struct {
	DocumentID uint
	Version    int
	UserID     uint
	Content    []byte
	IPAddress  string
	UserAgent  string
}

// Ledger records and queries acceptance state.
type Ledger interface {
	Record(ctx context.Context, in RecordInput) (*models.AcceptanceRecord, error)
	HasAccepted(ctx context.Context, documentID, userID uint) (*models.AcceptanceRecord, error)
}

type gormLedger struct {
	db *gorm.DB
}

// NewLedger creates an acceptance ledger backed by GORM.
func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

// Record upserts the acceptance keyed by (document, user, version).
// Re-accepting the same version refreshes hash, origin and timestamp instead
// of inserting a second row.
func (l *gormLedger) Record(ctx context.Context, in RecordInput) (*models.AcceptanceRecord, error) {
	if in.DocumentID == 0 || in.UserID == 0 {
		return nil, errors.New("document id and user id are required")
	}
	if in.Version <= 0 {
		in.Version = 1
	}

	contentHash := ""
	if len(in.Content) > 0 {
		sum := sha256.Sum256(in.Content)
		contentHash = hex.EncodeToString(sum[:])
	}

	record := &models.AcceptanceRecord{
		PublicID:        uuid.New().String(),
		DocumentID:      in.DocumentID,
		UserID:          in.UserID,
		DocumentVersion: in.Version,
		ContentHash:     contentHash,
		IPAddress:       truncate(in.IPAddress, 45),
		UserAgent:       truncate(in.UserAgent, 255),
		AcceptedAt:      time.Now(),
	}

	if err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "document_id"},
			{Name: "user_id"},
			{Name: "document_version"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"content_hash",
			"ip_address",
			"user_agent",
			"accepted_at",
			"updated_at",
		}),
	}).Create(record).Error; err != nil {
		return nil, err
	}

	// Re-read so the caller sees the stored row, including the original
	// public id when this was a re-acceptance.
	var stored models.AcceptanceRecord
	if err := l.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ? AND document_version = ?", in.DocumentID, in.UserID, in.Version).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// HasAccepted returns the user's most recent acceptance for the document, or
// nil without error when none exists.
func (l *gormLedger) HasAccepted(ctx context.Context, documentID, userID uint) (*models.AcceptanceRecord, error) {
	var record models.AcceptanceRecord
	err := l.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		Order("document_version DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max]
	}
	return s
}
