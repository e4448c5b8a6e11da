// Package mocks provides testify mocks of the chat server's interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

// MockPaperRepository implements repository.PaperRepository
type MockPaperRepository struct {
	mock.Mock
}

// Create creates a new paper
func (m *MockPaperRepository) Create(ctx context.Context, paper *models.Paper) error {
	args := m.Called(ctx, paper)
	return args.Error(0)
}

// GetByID retrieves a paper by its ID
func (m *MockPaperRepository) GetByID(ctx context.Context, id string) (*models.Paper, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Paper), args.Error(1)
}

// MockUserRepository implements repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

// Create creates a new user
func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID retrieves a user by ID
func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// GetByEmail retrieves a user by e-mail address
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// ListAdmins retrieves every admin
func (m *MockUserRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}
