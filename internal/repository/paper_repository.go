package repository

import (
	"context"
	"fmt"

	"github.com/welldanyogia/webrana-confchat/internal/models"
	"gorm.io/gorm"
)

// PaperRepository defines the interface for paper data access. Papers are
// owned by the submission subsystem; chat only reads them.
type PaperRepository interface {
	Create(ctx context.Context, paper *models.Paper) error
	GetByID(ctx context.Context, id string) (*models.Paper, error)
}

// paperRepository implements PaperRepository using GORM
type paperRepository struct {
	db *gorm.DB
}

// NewPaperRepository creates a new PaperRepository instance
func NewPaperRepository(db *gorm.DB) PaperRepository {
	return &paperRepository{db: db}
}

// Create creates a new paper
func (r *paperRepository) Create(ctx context.Context, paper *models.Paper) error {
	result := r.db.WithContext(ctx).Omit("Author").Create(paper)
	if result.Error != nil {
		return fmt.Errorf("failed to create paper: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a paper with its author
func (r *paperRepository) GetByID(ctx context.Context, id string) (*models.Paper, error) {
	var paper models.Paper
	result := r.db.WithContext(ctx).Preload("Author").Where("id = ?", id).First(&paper)
	if result.Error != nil {
		return nil, lookupError("paper by ID", result.Error)
	}
	return &paper, nil
}
