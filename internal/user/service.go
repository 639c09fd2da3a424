package user

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"agora-backend/internal/constants"
	"agora-backend/internal/domain"
	"agora-backend/internal/middleware"
	"agora-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service holds DB and Redis for user operations.
type Service struct {
	DB  *gorm.DB
	Rdb *redis.Client
}

// CreateUserInput is the create-user request body.
type CreateUserInput struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUser validates input and creates a user. Returns the created model
// (caller must not expose password_hash).
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	if in.Email == "" || !validation.IsValidEmail(in.Email) {
		return nil, ErrInvalidEmail
	}
	if in.Password == "" || !validation.IsValidPassword(in.Password) {
		return nil, ErrInvalidPassword
	}
	trimmed := strings.TrimSpace(in.Fullname)
	if trimmed == "" {
		return nil, ErrMissingFullname
	}
	if !validation.IsValidFullname(trimmed) {
		return nil, ErrInvalidFullname
	}
	role := in.Role
	if role == "" {
		role = constants.Trader
	}
	if !constants.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	fullname := titleCaseAndNormalize(trimmed)

	var existing domain.User
	if err := s.DB.WithContext(ctx).Where(`"email" = ?`, email).First(&existing).Error; err == nil {
		return nil, ErrEmailRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 10)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Fullname:     fullname,
		Role:         role,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateRole changes a user's role and invalidates all of their sessions,
// so the new role takes effect on their next login.
func (s *Service) UpdateRole(ctx context.Context, targetID uuid.UUID, newRole string) (*domain.User, error) {
	if !constants.IsValidRole(newRole) {
		return nil, ErrInvalidRole
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where(`"user_id" = ?`, targetID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&u).Update("role", newRole).Error; err != nil {
		return nil, err
	}
	u.Role = newRole
	s.DestroyUserSessions(ctx, targetID.String())
	return &u, nil
}

// DestroyUserSessions removes all sessions for a user: each session key
// (session:<sid>) and the user_sessions:<user_id> set.
func (s *Service) DestroyUserSessions(ctx context.Context, userID string) {
	if s.Rdb == nil || userID == "" {
		return
	}
	key := "user_sessions:" + userID
	sessionIDs, err := s.Rdb.SMembers(ctx, key).Result()
	if err != nil || len(sessionIDs) == 0 {
		s.Rdb.Del(ctx, key)
		return
	}
	for _, sid := range sessionIDs {
		s.Rdb.Del(ctx, middleware.SessionRedisPrefix+sid)
	}
	s.Rdb.Del(ctx, key)
}

// titleCaseAndNormalize collapses whitespace and capitalizes each word.
func titleCaseAndNormalize(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		runes := []rune(f)
		runes[0] = unicode.ToUpper(runes[0])
		for j := 1; j < len(runes); j++ {
			runes[j] = unicode.ToLower(runes[j])
		}
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}
