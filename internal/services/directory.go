package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/welldanyogia/webrana-confchat/internal/errors"
	"github.com/welldanyogia/webrana-confchat/internal/models"
	"github.com/welldanyogia/webrana-confchat/internal/repository"
	"github.com/welldanyogia/webrana-confchat/internal/validator"
)

// Directory seeds the users and papers that conversations hang on. The
// submission system owns these records in a full deployment.
type Directory struct {
	users  repository.UserRepository
	papers repository.PaperRepository
}

// NewDirectory creates a Directory
func NewDirectory(users repository.UserRepository, papers repository.PaperRepository) *Directory {
	return &Directory{users: users, papers: papers}
}

// CreateUser validates and stores a user
func (d *Directory) CreateUser(ctx context.Context, name, email string, role models.Role) (*models.User, error) {
	name = validator.SanitizeString(name, 255)
	if name == "" {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "name is required", apperrors.CodeInvalidInput)
	}
	if err := validator.ValidateEmail(email); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, err.Error(), apperrors.CodeInvalidInput)
	}
	if !role.Valid() {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, fmt.Sprintf("unknown role %q", role), apperrors.CodeInvalidInput)
	}

	user := &models.User{
		Name:  name,
		Email: strings.ToLower(strings.TrimSpace(email)),
		Role:  role,
	}
	if err := d.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CreatePaper stores a paper authored by an existing participant
func (d *Directory) CreatePaper(ctx context.Context, title, authorID string) (*models.Paper, error) {
	title = validator.SanitizeString(title, 500)
	if title == "" {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "title is required", apperrors.CodeInvalidInput)
	}

	author, err := d.users.GetByID(ctx, authorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	if author.IsAdmin() {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "papers are authored by participants", apperrors.CodeInvalidInput)
	}

	paper := &models.Paper{Title: title, AuthorID: author.ID}
	if err := d.papers.Create(ctx, paper); err != nil {
		return nil, err
	}
	paper.Author = author
	return paper, nil
}

// GetUser looks a user up by ID or e-mail
func (d *Directory) GetUser(ctx context.Context, idOrEmail string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	if strings.Contains(idOrEmail, "@") {
		user, err = d.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(idOrEmail)))
	} else {
		user, err = d.users.GetByID(ctx, idOrEmail)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	return user, err
}
