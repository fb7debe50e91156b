package repository

import (
	"github.com/scribeforge/scribeforge/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Count() (int64, error)
}

// DocumentRepository defines the interface for document-related database operations
type DocumentRepository interface {
	Create(doc *models.Document) error
	GetByID(id uint) (*models.Document, error)
	GetByUUID(uuid string) (*models.Document, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Document, error)
	Update(doc *models.Document) error
	CountByUserID(userID uint) (int64, error)
}
