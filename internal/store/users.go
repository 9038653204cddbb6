package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/collectit/marketplace/internal/apperr"
	dbutil "github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/models"
	"gorm.io/gorm/clause"
)

// UserWithRoles pairs a user with its role names.
type UserWithRoles struct {
	models.User
	Roles []string
}

// InsertUser creates a user and assigns the named roles.
func (s *Store) InsertUser(ctx context.Context, user *models.User, roleNames ...string) error {
	if errCreate := s.conn(ctx).Create(user).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			return uniqueUserConflict(errCreate)
		}
		return fmt.Errorf("store: insert user: %w", errCreate)
	}
	for _, name := range roleNames {
		role, errRole := s.FindRole(ctx, name)
		if errRole != nil {
			return errRole
		}
		if _, errAdd := s.AddUserRole(ctx, user.ID, role.ID); errAdd != nil {
			return errAdd
		}
	}
	return nil
}

// FindUser loads a user by id.
func (s *Store) FindUser(ctx context.Context, id uint64) (models.User, error) {
	var user models.User
	if errFind := s.conn(ctx).Where("id = ?", id).Take(&user).Error; errFind != nil {
		return models.User{}, notFoundOr(errFind, "user %d not found", id)
	}
	return user, nil
}

// FindUserByLogin loads a user by normalized username or normalized email.
func (s *Store) FindUserByLogin(ctx context.Context, login string) (models.User, error) {
	normalized := strings.ToUpper(strings.TrimSpace(login))
	var user models.User
	if errFind := s.conn(ctx).
		Where("normalized_username = ? OR normalized_email = ?", normalized, normalized).
		Take(&user).Error; errFind != nil {
		return models.User{}, notFoundOr(errFind, "user %q not found", login)
	}
	return user, nil
}

// PageUsers lists users ordered by ascending id with their roles.
func (s *Store) PageUsers(ctx context.Context, page Page) ([]UserWithRoles, int64, error) {
	var total int64
	if errCount := s.conn(ctx).Model(&models.User{}).Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("store: count users: %w", errCount)
	}
	var users []models.User
	if errFind := s.conn(ctx).Order("id ASC").Offset(page.Offset()).Limit(page.Size).Find(&users).Error; errFind != nil {
		return nil, 0, fmt.Errorf("store: page users: %w", errFind)
	}
	if len(users) == 0 {
		return []UserWithRoles{}, total, nil
	}

	ids := make([]uint64, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	type roleRow struct {
		UserID uint64
		Name   string
	}
	var roleRows []roleRow
	if errRoles := s.conn(ctx).Table("user_roles").
		Select("user_roles.user_id, roles.name").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id IN ?", ids).
		Order("roles.name ASC").
		Scan(&roleRows).Error; errRoles != nil {
		return nil, 0, fmt.Errorf("store: load user roles: %w", errRoles)
	}
	byUser := make(map[uint64][]string, len(users))
	for _, row := range roleRows {
		byUser[row.UserID] = append(byUser[row.UserID], row.Name)
	}
	out := make([]UserWithRoles, 0, len(users))
	for _, user := range users {
		roles := byUser[user.ID]
		if roles == nil {
			roles = []string{}
		}
		out = append(out, UserWithRoles{User: user, Roles: roles})
	}
	return out, total, nil
}

// UserRoles returns the role names assigned to a user.
func (s *Store) UserRoles(ctx context.Context, userID uint64) ([]string, error) {
	names := []string{}
	if errFind := s.conn(ctx).Table("user_roles").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Pluck("roles.name", &names).Error; errFind != nil {
		return nil, fmt.Errorf("store: user roles: %w", errFind)
	}
	return names, nil
}

// FindRole loads a role by name, ignoring case.
func (s *Store) FindRole(ctx context.Context, name string) (models.Role, error) {
	var role models.Role
	if errFind := s.conn(ctx).
		Where("normalized_name = ?", strings.ToUpper(strings.TrimSpace(name))).
		Take(&role).Error; errFind != nil {
		return models.Role{}, notFoundOr(errFind, "role %q not found", name)
	}
	return role, nil
}

// AddUserRole assigns a role. It reports false when the assignment already existed.
func (s *Store) AddUserRole(ctx context.Context, userID, roleID uint64) (bool, error) {
	link := models.UserRole{UserID: userID, RoleID: roleID}
	result := s.conn(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link)
	if result.Error != nil {
		if dbutil.IsForeignKeyViolation(result.Error) {
			return false, apperr.NotFound("user %d not found", userID)
		}
		return false, fmt.Errorf("store: add user role: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RemoveUserRole removes a role assignment. It reports false when nothing was assigned.
func (s *Store) RemoveUserRole(ctx context.Context, userID, roleID uint64) (bool, error) {
	result := s.conn(ctx).Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.UserRole{})
	if result.Error != nil {
		return false, fmt.Errorf("store: remove user role: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateUser applies column updates to a user, mapping uniqueness failures to conflicts.
func (s *Store) UpdateUser(ctx context.Context, userID uint64, updates map[string]any) error {
	result := s.conn(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		if dbutil.IsUniqueViolation(result.Error) {
			return uniqueUserConflict(result.Error)
		}
		return fmt.Errorf("store: update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("user %d not found", userID)
	}
	return nil
}

// NormalizedValueTaken reports whether another user already holds value in column.
func (s *Store) NormalizedValueTaken(ctx context.Context, column, value string, exceptUserID uint64) (bool, error) {
	switch column {
	case "normalized_username", "normalized_email":
	default:
		return false, fmt.Errorf("store: unsupported column %q", column)
	}
	var count int64
	if errCount := s.conn(ctx).Model(&models.User{}).
		Where(column+" = ? AND id <> ?", value, exceptUserID).
		Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("store: check %s: %w", column, errCount)
	}
	return count > 0, nil
}

// CountUsersInRole counts users holding a role.
func (s *Store) CountUsersInRole(ctx context.Context, roleName string) (int64, error) {
	var count int64
	if errCount := s.conn(ctx).Table("user_roles").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.normalized_name = ?", strings.ToUpper(roleName)).
		Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("store: count role members: %w", errCount)
	}
	return count, nil
}

func uniqueUserConflict(err error) error {
	msg := strings.ToLower(err.Error() + " " + dbutil.ConstraintName(err))
	if strings.Contains(msg, "email") {
		return apperr.ErrDuplicateEmail
	}
	return apperr.ErrDuplicateUsername
}
