package auth

import (
	"context"
	"fmt"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
	"github.com/domainstack/api/pkg/auth"
	apperrors "github.com/domainstack/api/pkg/errors"
	"github.com/domainstack/api/pkg/security"
)

type Service struct {
	userRepo repository.UserRepository
	hasher   security.PasswordHasher
	jwt      auth.JWTService
}

func NewService(userRepo repository.UserRepository, hasher security.PasswordHasher, jwt auth.JWTService) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		jwt:      jwt,
	}
}

type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *Service) Register(ctx context.Context, email, name, password string) (*Session, error) {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if existing != nil {
		return nil, apperrors.Conflict("email already registered", nil)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.BadRequest("invalid password", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Plan:         "free",
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}

	return s.session(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("unknown email"))
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("bad credentials"))
	}

	return s.session(user)
}

func (s *Service) ValidateToken(token string) (*auth.Claims, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

func (s *Service) session(user *model.User) (*Session, error) {
	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &Session{Token: token, User: user}, nil
}
