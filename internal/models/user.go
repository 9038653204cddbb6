package models

import "time"

// User represents a marketplace account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username           string `gorm:"type:text;not null"`             // Login name as entered.
	NormalizedUsername string `gorm:"type:text;not null;uniqueIndex"` // Upper-cased login name.
	Email              string `gorm:"type:text;not null"`             // Email address as entered.
	NormalizedEmail    string `gorm:"type:text;not null;uniqueIndex"` // Upper-cased email address.
	Password           string `gorm:"type:text;not null"`             // Hashed password.

	LockoutEnabled bool `gorm:"not null;default:false"` // Deactivated when true.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Role represents a named authorization role.
type Role struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name           string `gorm:"type:varchar(64);not null;uniqueIndex"` // Role name.
	NormalizedName string `gorm:"type:varchar(64);not null;uniqueIndex"` // Upper-cased role name.
}

// UserRole links a user to a role.
type UserRole struct {
	UserID uint64 `gorm:"primaryKey;autoIncrement:false"`                   // Related user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Related user record.
	RoleID uint64 `gorm:"primaryKey;autoIncrement:false;index"`             // Related role ID.
	Role   Role   `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"` // Related role record.
}
