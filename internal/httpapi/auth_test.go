package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/store"
	"pharmacy/admin/internal/validation"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Email]; exists {
		return store.ErrConflict
	}
	user.ID = "usr-" + user.Username
	s.users[user.Email] = user
	return nil
}

func (s *userStoreStub) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func timeInOneHour() time.Time {
	return time.Now().UTC().Add(time.Hour)
}

func TestRegisterHashesPasswordAndLoginIssuesToken(t *testing.T) {
	users := &userStoreStub{}
	auth := NewAuthManager("secret-secret-secret-secret-secret", time.Hour, users, nil)
	ctx := context.Background()

	user, err := auth.Register(ctx, domain.RegisterRequest{
		Username: "pharmacist",
		Email:    " Staff@Pharmacy.Local ",
		Password: "staff-pass",
		Role:     domain.RoleStaff,
	})
	require.NoError(t, err)
	assert.Equal(t, "staff@pharmacy.local", user.Email)
	assert.True(t, isPasswordHash(users.users["staff@pharmacy.local"].PasswordHash))

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "staff@pharmacy.local", Password: "staff-pass"})
	require.NoError(t, err)
	assert.Equal(t, "usr-pharmacist", resp.User.ID)

	actor, err := auth.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: "usr-pharmacist", Email: "staff@pharmacy.local", Role: domain.RoleStaff}, actor)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := &userStoreStub{}
	auth := NewAuthManager("secret-secret-secret-secret-secret", time.Hour, users, nil)
	req := domain.RegisterRequest{Username: "owner", Email: "owner@pharmacy.local", Password: "owner-pass", Role: domain.RoleAdmin}

	_, err := auth.Register(context.Background(), req)
	require.NoError(t, err)
	_, err = auth.Register(context.Background(), req)
	assert.True(t, errors.Is(err, ErrEmailTaken))
}

func TestRegisterValidatesRole(t *testing.T) {
	auth := NewAuthManager("secret-secret-secret-secret-secret", time.Hour, &userStoreStub{}, nil)

	_, err := auth.Register(context.Background(), domain.RegisterRequest{
		Username: "owner", Email: "owner@pharmacy.local", Password: "owner-pass", Role: "Owner",
	})
	var fields validation.FieldErrors
	require.True(t, errors.As(err, &fields))
	assert.Equal(t, "Invalid role", fields["role"])
}

func TestLoginWrongPassword(t *testing.T) {
	users := &userStoreStub{}
	auth := NewAuthManager("secret-secret-secret-secret-secret", time.Hour, users, nil)
	_, err := auth.Register(context.Background(), domain.RegisterRequest{
		Username: "owner", Email: "owner@pharmacy.local", Password: "owner-pass", Role: domain.RoleAdmin,
	})
	require.NoError(t, err)

	_, err = auth.Login(context.Background(), domain.LoginRequest{Email: "owner@pharmacy.local", Password: "wrong-pass"})
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = auth.Login(context.Background(), domain.LoginRequest{Email: "nobody@pharmacy.local", Password: "wrong-pass"})
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	auth := NewAuthManager("secret-secret-secret-secret-secret", time.Hour, &userStoreStub{}, nil)
	req := domain.RegisterRequest{Username: "admin", Email: "admin@pharmacy.local", Password: "admin-pass", Role: domain.RoleAdmin}

	created, err := auth.EnsureUser(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = auth.EnsureUser(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthManager("secret-secret-secret-secret-secret", time.Hour, nil, nil)
	token, err := auth.sign(domain.User{ID: "usr-1", Role: domain.RoleAdmin}, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	_, err = auth.ParseToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
