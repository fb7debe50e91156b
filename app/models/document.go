package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DocumentStatusPending   = "pending"
	DocumentStatusGenerated = "generated"
	DocumentStatusFailed    = "failed"
)

// Document is the artifact a metered generation produces. The generation
// pipeline itself lives outside this core; the row exists so consumption,
// acceptance and download counting have a stable identifier to hang off.
type Document struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          string         `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	UserID        uint           `gorm:"index" json:"user_id"`
	User          User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title         string         `gorm:"type:varchar(255)" json:"title"`
	Kind          string         `gorm:"type:varchar(50);default:'generic'" json:"kind"`
	Version       int            `gorm:"not null;default:1" json:"version"`
	Status        string         `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ContentHash   string         `gorm:"type:char(64);default:''" json:"content_hash"`
	ViewCount     int            `gorm:"default:0" json:"view_count"`
	DownloadCount int            `gorm:"default:0" json:"download_count"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == "" {
		d.UUID = uuid.New().String()
	}
	return nil
}

// FindDocumentByUUID loads a document by its public uuid.
func FindDocumentByUUID(db *gorm.DB, id string) (*Document, error) {
	var doc Document
	if err := db.Where("uuid = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}
