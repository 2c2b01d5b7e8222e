// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// APITokenBytes is the number of random bytes in an API token.
// The token is base64url-encoded for transmission; only its SHA-256 is stored.
const APITokenBytes = 32

// =============================================================================
// Interface Definition
// =============================================================================

// UserService manages metered API users.
type UserService interface {
	// Create registers a user and returns the raw API token. The token is
	// shown once and cannot be recovered.
	// Returns domain.ECONFLICT if the email is taken.
	Create(ctx context.Context, email string) (*domain.User, string, error)

	// GetByToken authenticates a raw API token.
	// Returns domain.EUNAUTHORIZED if the token is unknown.
	GetByToken(ctx context.Context, token string) (*domain.User, error)

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	queries repository.Querier
	logger  *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(queries repository.Querier, logger *slog.Logger) UserService {
	return &userService{
		queries: queries,
		logger:  logger,
	}
}

func (s *userService) Create(ctx context.Context, email string) (*domain.User, string, error) {
	const op = "user.create"

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, "", domain.Invalid(op, "Email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", domain.Invalid(op, "Email address is not valid")
	}

	token, err := generateAPIToken()
	if err != nil {
		return nil, "", domain.Internal(err, op, "failed to generate API token")
	}

	row, err := s.queries.CreateUser(ctx, repository.CreateUserParams{
		Email:        email,
		ApiTokenHash: hashAPIToken(token),
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, "", domain.Conflict(op, "A user with this email already exists")
		}
		s.logger.Error("failed to create user", "op", op, "error", err)
		return nil, "", domain.Internal(err, op, "failed to create user")
	}

	s.logger.Info("user created", "user_id", row.ID)
	return repoUserToDomain(row), token, nil
}

func (s *userService) GetByToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "user.get_by_token"

	if token == "" {
		return nil, domain.Unauthorized(op, "API token is required")
	}

	row, err := s.queries.GetUserByTokenHash(ctx, hashAPIToken(token))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.Unauthorized(op, "Invalid API token")
		}
		return nil, domain.Internal(err, op, "failed to look up API token")
	}
	return repoUserToDomain(row), nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "user.get_by_id"

	row, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}
	return repoUserToDomain(row), nil
}

// generateAPIToken returns a random URL-safe token.
func generateAPIToken() (string, error) {
	b := make([]byte, APITokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashAPIToken creates a SHA-256 hash of an API token. Tokens are
// high-entropy random values, so a fast hash is sufficient.
func hashAPIToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
