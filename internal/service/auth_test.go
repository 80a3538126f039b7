package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

type mockUserRepo struct {
	users map[string]*model.User
	byID  map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User), byID: make(map[string]*model.User)}
}

func (m *mockUserRepo) add(u *model.User) *model.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.Email] = u
	m.byID[u.ID] = u
	return u
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if _, ok := m.users[user.Email]; ok {
		return repository.ErrDuplicateKey
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	m.users[user.Email] = user
	m.byID[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return m.byID[id], nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.users[email], nil
}

func (m *mockUserRepo) UpdateDetails(_ context.Context, id, name, email string) error {
	u := m.byID[id]
	if other, ok := m.users[email]; ok && other.ID != id {
		return repository.ErrDuplicateKey
	}
	delete(m.users, u.Email)
	u.Name, u.Email = name, email
	m.users[email] = u
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	m.byID[id].Password = hash
	return nil
}

func (m *mockUserRepo) UpdateRole(_ context.Context, id, role string) (bool, error) {
	u, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	u.Role = role
	return true, nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]model.User, int64, error) {
	var all []model.User
	for _, u := range m.byID {
		all = append(all, *u)
	}
	return all, int64(len(all)), nil
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuthService_Register(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)

	resp, err := svc.Register(context.Background(), dto.RegisterRequest{
		Name: "John", Email: "Test@Example.com ", Password: "password123",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "test@example.com", resp.User.Email)
	assert.Equal(t, model.RoleUser, resp.User.Role)

	token, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, resp.User.ID, claims["sub"])
	assert.Equal(t, model.RoleUser, claims["role"])
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	repo.add(&model.User{Email: "test@example.com"})

	_, err := svc.Register(context.Background(), dto.RegisterRequest{
		Name: "John", Email: "test@example.com", Password: "password123",
	})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	repo.add(&model.User{Email: "test@example.com", Password: hashed(t, "password123"), Role: model.RoleUser})

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: "test@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	repo.add(&model.User{Email: "test@example.com", Password: hashed(t, "password123")})

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "test@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "nobody@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_UpdatePassword(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	u := repo.add(&model.User{Email: "a@example.com", Password: hashed(t, "oldpass")})

	_, err := svc.UpdatePassword(context.Background(), u.ID, dto.UpdatePasswordRequest{CurrentPassword: "nope", NewPassword: "newpass"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = svc.UpdatePassword(context.Background(), u.ID, dto.UpdatePasswordRequest{CurrentPassword: "oldpass", NewPassword: "newpass"})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("newpass")))
}

func TestAuthService_UpdateDetails(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, "test-secret", time.Hour)
	u := repo.add(&model.User{Name: "A", Email: "a@example.com"})
	repo.add(&model.User{Name: "B", Email: "b@example.com"})

	resp, err := svc.UpdateDetails(context.Background(), u.ID, dto.UpdateDetailsRequest{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", resp.Name)
	assert.Equal(t, "a@example.com", resp.Email)

	_, err = svc.UpdateDetails(context.Background(), u.ID, dto.UpdateDetailsRequest{Email: "B@example.com"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = svc.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
