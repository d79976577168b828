package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mohamedazimal27/rag-docmind/internal/model"
)

// ErrDuplicateUser reports a unique index violation on username or email.
var ErrDuplicateUser = errors.New("user already exists")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the account. A race with a concurrent registration surfaces
// as ErrDuplicateUser when the dialector translates the unique violation.
func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.findOne("username = ?", username)
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.findOne("email = ?", email)
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	return r.findOne("id = ?", id)
}

// findOne returns nil, nil when no row matches.
func (r *UserRepository) findOne(query string, arg any) (*model.User, error) {
	var user model.User
	if err := r.db.Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by %s failed: %w", query, err)
	}
	return &user, nil
}
