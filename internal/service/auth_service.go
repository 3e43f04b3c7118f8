package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"umbrella-admin/internal/model"
	"umbrella-admin/internal/repository"
	"umbrella-admin/pkg/apierror"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAdminPassword = "admin123"
)

type AuthService struct {
	backend    repository.Backend
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	hashCost   int
}

func NewAuthService(backend repository.Backend, jwtSecret string, accessTTL time.Duration, refreshTTL time.Duration) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &AuthService{
		backend:    backend,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		hashCost:   12,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (model.TokenPair, error) {
	account, err := s.backend.Directory().FindAccountByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, model.ErrSubjectNotFound) {
		return model.TokenPair{}, apierror.New("UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("find account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return model.TokenPair{}, apierror.New("UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
	}

	return s.issueTokenPair(account.Subject)
}

// Refresh exchanges a refresh token for a new pair. Refresh tokens are
// stateless and stay valid until they expire.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return model.TokenPair{}, err
	}

	subject, err := s.Subject(ctx, claims.UserID)
	if err != nil {
		return model.TokenPair{}, apierror.New("UNAUTHORIZED", "user not found", "", http.StatusUnauthorized)
	}

	return s.issueTokenPair(*subject)
}

func (s *AuthService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.New("UNAUTHORIZED", "invalid token signing method", "", http.StatusUnauthorized)
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apierror.New("UNAUTHORIZED", "invalid token", "", http.StatusUnauthorized)
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.New("UNAUTHORIZED", "invalid token claims", "", http.StatusUnauthorized)
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, apierror.New("UNAUTHORIZED", "invalid token type", "", http.StatusUnauthorized)
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Username, _ = claimsMap["username"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, apierror.New("UNAUTHORIZED", "invalid token subject", "", http.StatusUnauthorized)
	}

	return claims, nil
}

// Subject loads the subject with its current grants. Grants are read on
// every request so changes apply without a new login.
func (s *AuthService) Subject(ctx context.Context, id string) (*model.Subject, error) {
	account, err := s.backend.Directory().FindAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	subject := account.Subject
	return &subject, nil
}

func (s *AuthService) CreateAccount(ctx context.Context, username string, password string, superuser bool, grants []model.Grant) (model.Subject, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.Subject{}, apierror.BadRequest("username and password are required", "")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return model.Subject{}, fmt.Errorf("hash password: %w", err)
	}

	account := model.Account{
		Subject: model.Subject{
			ID:        uuid.NewString(),
			Username:  username,
			Superuser: superuser,
			Grants:    grants,
			CreatedAt: time.Now().UTC(),
		},
		PasswordHash: string(hash),
	}

	err = s.backend.Atomically(ctx, func(tx repository.Backend) error {
		return tx.Directory().CreateAccount(ctx, account)
	})
	if err != nil {
		return model.Subject{}, err
	}
	return account.Subject, nil
}

// EnsureAdmin creates a superuser account when the directory has none.
func (s *AuthService) EnsureAdmin(ctx context.Context, username string, password string) error {
	count, err := s.backend.Directory().CountAccounts(ctx)
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		password = defaultAdminPassword
	}
	if password == defaultAdminPassword {
		slog.Warn("seeding admin account with the default password", "username", username)
	}

	if _, err := s.CreateAccount(ctx, username, password, true, nil); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	slog.Info("admin account created", "username", username)
	return nil
}

func (s *AuthService) issueTokenPair(subject model.Subject) (model.TokenPair, error) {
	now := time.Now().UTC()

	accessToken, err := s.signToken(jwt.MapClaims{
		"sub":      subject.ID,
		"username": subject.Username,
		"typ":      tokenTypeAccess,
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, err := s.signToken(jwt.MapClaims{
		"sub":      subject.ID,
		"username": subject.Username,
		"typ":      tokenTypeRefresh,
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.refreshTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		Subject:      subject,
	}, nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
