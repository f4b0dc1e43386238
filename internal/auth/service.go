package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vamojunto/nfce-tracker/internal/common"
	"github.com/vamojunto/nfce-tracker/internal/entity"
	"github.com/vamojunto/nfce-tracker/internal/repository"
)

// RegisterRequest carries the signup form. CPF accepts formatted or bare
// digits; it is stored formatted.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	CPF      string `json:"cpf"`
	Password string `json:"password"`
}

// LoginRequest carries the credentials of a login attempt.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the successful outcome of Register or Login.
type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *entity.User `json:"user"`
}

// Service implements account signup and login on top of the user store.
type Service struct {
	users  repository.UserRepository
	cfg    common.AuthConfig
	logger *slog.Logger
}

func NewService(users repository.UserRepository, cfg common.AuthConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, cfg: cfg, logger: logger}
}

// Register creates an account and returns a fresh token for it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	v := common.NewValidator()
	v.Field("name", req.Name, common.Required, common.MaxLength(100))
	v.Field("email", req.Email, common.Required, common.Email)
	v.Field("cpf", req.CPF, common.Required, common.CPF)
	v.Field("password", req.Password, common.Required, common.MinLength(8), common.MaxLength(72))
	if err := v.Error(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, &entity.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		CPF:          common.FormatCPF(req.CPF),
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return s.issue(user)
}

// Login checks credentials and returns a token. A missing account and a
// wrong password produce the same error, so the endpoint does not leak
// which emails are registered.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !CheckPassword(user.PasswordHash, req.Password) {
		return nil, fmt.Errorf("%w: bad credentials", common.ErrUnauthorized)
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return s.issue(user)
}

func (s *Service) issue(user *entity.User) (*TokenResponse, error) {
	token, err := GenerateToken([]byte(s.cfg.JWTSecret), user.ID, user.Name, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.TokenTTL),
		User:      user,
	}, nil
}
