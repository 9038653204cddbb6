// Package account manages marketplace users, their credentials and role assignments.
package account

import (
	"context"
	"regexp"
	"strings"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/security"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/collectit/marketplace/internal/store"
	log "github.com/sirupsen/logrus"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z]\w{5,}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
)

const minPasswordLength = 6

// ValidateUsername checks the username format: a letter followed by at least five word characters.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperr.Validation("username must start with a letter and contain at least 6 letters, digits or underscores")
	}
	return nil
}

// ValidateEmail checks the address format.
func ValidateEmail(email string) error {
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return apperr.Validation("invalid email address")
	}
	return nil
}

// ValidatePassword requires a minimum length and at least one digit.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if !strings.ContainsAny(password, "0123456789") {
		return apperr.Validation("password must contain a digit")
	}
	return nil
}

func normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// Service implements the identity operations.
type Service struct {
	store *store.Store
}

// NewService constructs a Service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Register creates an account with the default user role.
func (s *Service) Register(ctx context.Context, username, email, password string) (store.UserWithRoles, error) {
	return s.Create(ctx, username, email, password, settings.RoleUser)
}

// Create validates the credentials and creates an account holding roles.
func (s *Service) Create(ctx context.Context, username, email, password string, roles ...string) (store.UserWithRoles, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if errUsername := ValidateUsername(username); errUsername != nil {
		return store.UserWithRoles{}, errUsername
	}
	if errEmail := ValidateEmail(email); errEmail != nil {
		return store.UserWithRoles{}, errEmail
	}
	if errPassword := ValidatePassword(password); errPassword != nil {
		return store.UserWithRoles{}, errPassword
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return store.UserWithRoles{}, errHash
	}
	return s.create(ctx, username, email, hash, roles...)
}

func (s *Service) create(ctx context.Context, username, email, hash string, roles ...string) (store.UserWithRoles, error) {
	user := models.User{
		Username:           username,
		NormalizedUsername: normalize(username),
		Email:              email,
		NormalizedEmail:    normalize(email),
		Password:           hash,
	}
	errTx := s.store.InTx(ctx, func(tx *store.Store) error {
		return tx.InsertUser(ctx, &user, roles...)
	})
	if errTx != nil {
		return store.UserWithRoles{}, errTx
	}
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username}).Info("account: registered")
	return s.withRoles(ctx, user)
}

// Authenticate verifies a username or email with its password. Deactivated accounts are rejected.
func (s *Service) Authenticate(ctx context.Context, login, password string) (store.UserWithRoles, error) {
	user, errFind := s.store.FindUserByLogin(ctx, login)
	if errFind != nil {
		if apperr.Is(errFind, apperr.KindNotFound) {
			return store.UserWithRoles{}, apperr.ErrInvalidCredentials
		}
		return store.UserWithRoles{}, errFind
	}
	if !security.CheckPassword(user.Password, password) {
		return store.UserWithRoles{}, apperr.ErrInvalidCredentials
	}
	if user.LockoutEnabled {
		return store.UserWithRoles{}, apperr.Forbidden("account %q is deactivated", user.Username)
	}
	return s.withRoles(ctx, user)
}

// FindByID loads a user with roles.
func (s *Service) FindByID(ctx context.Context, userID uint64) (store.UserWithRoles, error) {
	user, errFind := s.store.FindUser(ctx, userID)
	if errFind != nil {
		return store.UserWithRoles{}, errFind
	}
	return s.withRoles(ctx, user)
}

// GetPaged lists users ordered by ascending id.
func (s *Service) GetPaged(ctx context.Context, pageNumber, pageSize int) ([]store.UserWithRoles, int64, error) {
	page, errPage := store.NewPage(pageNumber, pageSize)
	if errPage != nil {
		return nil, 0, errPage
	}
	return s.store.PageUsers(ctx, page)
}

// Roles returns the role names held by a user.
func (s *Service) Roles(ctx context.Context, userID uint64) ([]string, error) {
	if errUser := s.store.UserExists(ctx, userID); errUser != nil {
		return nil, errUser
	}
	return s.store.UserRoles(ctx, userID)
}

// AddRole assigns a role. Assigning a held role succeeds without change.
func (s *Service) AddRole(ctx context.Context, userID uint64, roleName string) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		if errUser := tx.UserExists(ctx, userID); errUser != nil {
			return errUser
		}
		role, errRole := tx.FindRole(ctx, roleName)
		if errRole != nil {
			return errRole
		}
		added, errAdd := tx.AddUserRole(ctx, userID, role.ID)
		if errAdd != nil {
			return errAdd
		}
		if added {
			log.WithFields(log.Fields{"user_id": userID, "role": role.Name}).Info("account: role added")
		}
		return nil
	})
}

// RemoveRole revokes a role. Revoking a role the user does not hold succeeds without change;
// an unknown user or role name is NotFound.
func (s *Service) RemoveRole(ctx context.Context, userID uint64, roleName string) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		if errUser := tx.UserExists(ctx, userID); errUser != nil {
			return errUser
		}
		role, errRole := tx.FindRole(ctx, roleName)
		if errRole != nil {
			return errRole
		}
		removed, errRemove := tx.RemoveUserRole(ctx, userID, role.ID)
		if errRemove != nil {
			return errRemove
		}
		if removed {
			log.WithFields(log.Fields{"user_id": userID, "role": role.Name}).Info("account: role removed")
		}
		return nil
	})
}

// ChangeUsername validates and stores a new username.
func (s *Service) ChangeUsername(ctx context.Context, userID uint64, username string) error {
	username = strings.TrimSpace(username)
	if errValidate := ValidateUsername(username); errValidate != nil {
		return errValidate
	}
	return s.store.InTx(ctx, func(tx *store.Store) error {
		normalized := normalize(username)
		taken, errTaken := tx.NormalizedValueTaken(ctx, "normalized_username", normalized, userID)
		if errTaken != nil {
			return errTaken
		}
		if taken {
			return apperr.ErrDuplicateUsername
		}
		return tx.UpdateUser(ctx, userID, map[string]any{
			"username":            username,
			"normalized_username": normalized,
		})
	})
}

// ChangeEmail validates and stores a new email address.
func (s *Service) ChangeEmail(ctx context.Context, userID uint64, email string) error {
	email = strings.TrimSpace(email)
	if errValidate := ValidateEmail(email); errValidate != nil {
		return errValidate
	}
	return s.store.InTx(ctx, func(tx *store.Store) error {
		normalized := normalize(email)
		taken, errTaken := tx.NormalizedValueTaken(ctx, "normalized_email", normalized, userID)
		if errTaken != nil {
			return errTaken
		}
		if taken {
			return apperr.ErrDuplicateEmail
		}
		return tx.UpdateUser(ctx, userID, map[string]any{
			"email":            email,
			"normalized_email": normalized,
		})
	})
}

// Activate clears the lockout flag.
func (s *Service) Activate(ctx context.Context, userID uint64) error {
	return s.store.UpdateUser(ctx, userID, map[string]any{"lockout_enabled": false})
}

// Deactivate sets the lockout flag so the user can no longer sign in.
func (s *Service) Deactivate(ctx context.Context, userID uint64) error {
	return s.store.UpdateUser(ctx, userID, map[string]any{"lockout_enabled": true})
}

// HasAdmin reports whether any user holds the admin role.
func (s *Service) HasAdmin(ctx context.Context) (bool, error) {
	count, errCount := s.store.CountUsersInRole(ctx, settings.RoleAdmin)
	if errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

func (s *Service) withRoles(ctx context.Context, user models.User) (store.UserWithRoles, error) {
	roles, errRoles := s.store.UserRoles(ctx, user.ID)
	if errRoles != nil {
		return store.UserWithRoles{}, errRoles
	}
	return store.UserWithRoles{User: user, Roles: roles}, nil
}
