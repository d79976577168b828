package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/pkg/jwtutil"
	"github.com/mohamedazimal27/rag-docmind/internal/storage"
)

type memUsers struct {
	byID   map[uint]*model.User
	nextID uint
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uint]*model.User{}}
}

func (m *memUsers) Create(u *model.User) error {
	m.nextID++
	u.ID = m.nextID
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) GetByUsername(name string) (*model.User, error) {
	for _, u := range m.byID {
		if u.Username == name {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) GetByEmail(email string) (*model.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) GetByID(id uint) (*model.User, error) {
	return m.byID[id], nil
}

func newAuthFixture(t *testing.T) (*AuthService, storage.Layout) {
	t.Helper()
	layout := storage.NewLayout(t.TempDir())
	svc := NewAuthService(newMemUsers(), storage.NewFileStore(layout), "test-secret", time.Hour)
	svc.bcryptCost = bcrypt.MinCost
	return svc, layout
}

func TestAuthService_RegisterCreatesUserDir(t *testing.T) {
	svc, layout := newAuthFixture(t)

	res, err := svc.Register(RegisterInput{Username: "ada", Email: "Ada@Example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.NotEqual(t, "correct-horse", res.User.PasswordHash)

	info, err := os.Stat(filepath.Join(layout.Root(), "1"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	claims, err := jwtutil.ParseToken("test-secret", res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
}

func TestAuthService_RegisterConflictsAndValidation(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.Register(RegisterInput{Username: "ada", Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(RegisterInput{Username: "ada", Email: "other@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = svc.Register(RegisterInput{Username: "bob", Email: "ada@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = svc.Register(RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(RegisterInput{Username: "bob", Email: "not-an-email", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthService_Login(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.Register(RegisterInput{Username: "ada", Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	res, err := svc.Login(LoginInput{Username: "ada", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	_, err = svc.Login(LoginInput{Username: "ada", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(LoginInput{Username: "nobody", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(LoginInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthService_GetUserByID(t *testing.T) {
	svc, _ := newAuthFixture(t)
	res, err := svc.Register(RegisterInput{Username: "ada", Email: "ada@example.com", Password: "password1"})
	require.NoError(t, err)

	u, err := svc.GetUserByID(res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Username)

	_, err = svc.GetUserByID(0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
