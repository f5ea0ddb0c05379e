package httpapi

import (
	"context"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/store"
	"pharmacy/admin/internal/validation"
)

const tokenIssuer = "pharmacy-admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	validate  *validation.Validator
	logger    *zap.Logger
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

type pharmaClaims struct {
	jwtlib.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore, logger *zap.Logger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		validate:  validation.New(),
		logger:    logger,
	}
}

func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := a.validate.Struct(req); err != nil {
		return domain.User{}, err
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, errors.Wrap(err, "hash password")
	}

	account := domain.UserAccount{
		User: domain.User{
			Username:  req.Username,
			Email:     req.Email,
			Role:      req.Role,
			CreatedAt: time.Now().UTC(),
		},
		PasswordHash: passwordHash,
	}
	if err := a.userStore.CreateUser(ctx, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	created, err := a.userStore.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return domain.User{}, err
	}
	a.logger.Info("user registered", zap.String("id", created.ID), zap.String("role", created.Role))
	return created.User, nil
}

// EnsureUser registers req unless an account with the same email exists.
func (a *AuthManager) EnsureUser(ctx context.Context, req domain.RegisterRequest) (bool, error) {
	_, err := a.userStore.GetUserByEmail(ctx, req.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if _, err := a.Register(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	if err := a.validate.Struct(req); err != nil {
		return domain.LoginResponse{}, err
	}

	account, err := a.userStore.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(account.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	token, err := a.sign(account.User, time.Now().UTC().Add(a.tokenTTL))
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{Token: token, User: account.User}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &pharmaClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{UserID: sub, Email: claims.Email, Role: claims.Role}, nil
}

func (a *AuthManager) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := pharmaClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role:  user.Role,
		Email: user.Email,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
