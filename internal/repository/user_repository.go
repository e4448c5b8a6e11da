package repository

import (
	"context"
	"fmt"

	"github.com/welldanyogia/webrana-confchat/internal/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// userRepository implements UserRepository using GORM
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if !user.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", user.Role, ErrInvalidInput)
	}
	result := r.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("user with email '%s' already exists: %w", user.Email, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create user: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, lookupError("user by ID", result.Error)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email address
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		return nil, lookupError("user by email", result.Error)
	}
	return &user, nil
}

// ListAdmins returns every admin user
func (r *userRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	result := r.db.WithContext(ctx).Where("role = ?", models.RoleAdmin).Order("created_at ASC").Find(&users)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list admins: %w", result.Error)
	}
	return users, nil
}
