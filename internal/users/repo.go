package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"guardattend/internal/identity"
	"guardattend/internal/tablestore"
)

var (
	// ErrDuplicateUser is returned when the identity is already registered
	// under trim and case-fold comparison.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrMissingField is returned when user_id or password_hash is empty.
	ErrMissingField = errors.New("user id and password hash are required")
)

// User is a registered guard.
type User struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	PhotoPath    string `json:"photo_path"`
}

// DisplayName is the name if set, else the user id.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.UserID
}

// Repository manages the users table. It holds no rows between calls;
// every operation reloads the table. Registrations through one Repository
// are serialized so the duplicate check and the write see the same rows.
type Repository struct {
	backend tablestore.Backend
	log     *zap.Logger

	mu sync.Mutex
}

// NewRepository creates a repo.
func NewRepository(backend tablestore.Backend, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{backend: backend, log: log}
}

// Init creates the users table if it does not exist.
func (r *Repository) Init(ctx context.Context) error {
	return r.backend.Initialize(ctx, tablestore.Users)
}

// Register appends u after trimming every field. The stored user id keeps
// its original case.
func (r *Repository) Register(ctx context.Context, u User) error {
	u = User{
		UserID:       identity.Clean(u.UserID),
		Name:         identity.Clean(u.Name),
		Phone:        identity.Clean(u.Phone),
		Email:        identity.Clean(u.Email),
		PasswordHash: identity.Clean(u.PasswordHash),
		PhotoPath:    identity.Clean(u.PhotoPath),
	}
	if u.UserID == "" || u.PasswordHash == "" {
		return ErrMissingField
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.backend.Load(ctx, tablestore.Users)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if identity.Equal(fromRow(row).UserID, u.UserID) {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, u.UserID)
		}
	}

	rows = append(rows, toRow(u))
	if err := r.backend.Save(ctx, tablestore.Users, rows); err != nil {
		return err
	}
	r.log.Info("user registered", zap.String("user_id", u.UserID))
	return nil
}

// Find returns the user whose id matches userID after trim and case-fold,
// or nil if there is none.
func (r *Repository) Find(ctx context.Context, userID string) (*User, error) {
	key := identity.Normalize(userID)
	rows, err := r.backend.Load(ctx, tablestore.Users)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		u := fromRow(row)
		if key != "" && identity.Normalize(u.UserID) == key {
			return &u, nil
		}
	}
	return nil, nil
}

func toRow(u User) tablestore.Row {
	return tablestore.Row{u.UserID, u.Name, u.Phone, u.Email, u.PasswordHash, u.PhotoPath}
}

func fromRow(row tablestore.Row) User {
	return User{
		UserID:       identity.Clean(row[0]),
		Name:         row[1],
		Phone:        row[2],
		Email:        row[3],
		PasswordHash: row[4],
		PhotoPath:    row[5],
	}
}
