package repository

import (
	"github.com/scribeforge/scribeforge/app/models"
	"gorm.io/gorm"
)

// documentRepository implements the DocumentRepository interface
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository instance
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create creates a new document in the database
func (r *documentRepository) Create(doc *models.Document) error {
	return r.db.Create(doc).Error
}

// GetByID retrieves a document by its ID
func (r *documentRepository) GetByID(id uint) (*models.Document, error) {
	var doc models.Document
	err := r.db.First(&doc, id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByUUID retrieves a document by its public uuid
func (r *documentRepository) GetByUUID(uuid string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("uuid = ?", uuid).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByUserID retrieves a page of a user's documents, newest first
func (r *documentRepository) GetByUserID(userID uint, offset, limit int) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&docs).Error
	return docs, err
}

// Update updates an existing document in the database
func (r *documentRepository) Update(doc *models.Document) error {
	return r.db.Save(doc).Error
}

// CountByUserID returns the number of documents owned by a user
func (r *documentRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Document{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
