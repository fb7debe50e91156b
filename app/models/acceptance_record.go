package models

import "time"

// AcceptanceRecord is the proof that a user accepted a specific version of a
// generated document (liability disclaimer and similar). At most one row per
// (document_id, user_id, document_version); re-acceptance overwrites the hash,
// origin metadata and timestamp instead of adding a duplicate, because "has
// this user accepted this version" has exactly one current answer.
type AcceptanceRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PublicID        string    `gorm:"type:char(36);not null;uniqueIndex" json:"public_id"`
	DocumentID      uint      `gorm:"not null;index:ux_acceptance_doc_user_version,unique,priority:1" json:"document_id"`
	UserID          uint      `gorm:"not null;index:ux_acceptance_doc_user_version,unique,priority:2;index" json:"user_id"`
	DocumentVersion int       `gorm:"not null;default:1;index:ux_acceptance_doc_user_version,unique,priority:3" json:"document_version"`
	ContentHash     string    `gorm:"type:char(64);default:''" json:"content_hash"`
	IPAddress       string    `gorm:"type:varchar(45);default:''" json:"-"`
	UserAgent       string    `gorm:"type:varchar(255);default:''" json:"-"`
	AcceptedAt      time.Time `gorm:"not null" json:"accepted_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
