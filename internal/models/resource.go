package models

import (
	"strings"
	"time"
)

// ResourceType identifies the concrete content kind of a resource.
type ResourceType string

// ResourceType constants define the supported content kinds.
const (
	// ResourceTypeImage marks image resources.
	ResourceTypeImage ResourceType = "Image"
	// ResourceTypeMusic marks music resources.
	ResourceTypeMusic ResourceType = "Music"
	// ResourceTypeVideo marks video resources.
	ResourceTypeVideo ResourceType = "Video"
)

// ParseResourceType resolves a resource type by name, ignoring case.
func ParseResourceType(raw string) (ResourceType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "image", "images":
		return ResourceTypeImage, true
	case "music", "musics":
		return ResourceTypeMusic, true
	case "video", "videos":
		return ResourceTypeVideo, true
	default:
		return "", false
	}
}

// Valid reports whether the type is one of the known kinds.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypeImage, ResourceTypeMusic, ResourceTypeVideo:
		return true
	default:
		return false
	}
}

// Resource stores metadata shared by every content item.
type Resource struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"`                                 // Owning user ID.
	Owner   User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"` // Owning user record.

	Type       ResourceType `gorm:"type:varchar(16);not null;index"` // Content kind.
	Path       string       `gorm:"type:text;not null"`              // Blob storage key.
	Name       string       `gorm:"type:text;not null"`              // Display name.
	UploadDate time.Time    `gorm:"not null"`                        // Upload timestamp.

	Image *Image `gorm:"foreignKey:ID;constraint:OnDelete:CASCADE"` // Image fields when Type is Image.
	Music *Music `gorm:"foreignKey:ID;constraint:OnDelete:CASCADE"` // Music fields when Type is Music.
	Video *Video `gorm:"foreignKey:ID;constraint:OnDelete:CASCADE"` // Video fields when Type is Video.
}

// Image stores image-specific fields keyed by the shared resource id.
type Image struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false"` // Shared resource ID.

	Tags      Tags   `gorm:"type:jsonb;not null;default:'[]'"` // Tag set.
	Extension string `gorm:"type:varchar(32);not null"`        // File extension.
}

// Music stores music-specific fields keyed by the shared resource id.
type Music struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false"` // Shared resource ID.

	Tags      Tags   `gorm:"type:jsonb;not null;default:'[]'"` // Tag set.
	Extension string `gorm:"type:varchar(32);not null"`        // File extension.
	Duration  int    `gorm:"not null"`                         // Length in seconds.
}

// TableName keeps the plural form used by the rest of the schema.
func (Music) TableName() string { return "musics" }

// Video stores video-specific fields keyed by the shared resource id.
// On PostgreSQL the table also carries a generated tags_search_vector column.
type Video struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false"` // Shared resource ID.

	Tags      Tags   `gorm:"type:jsonb;not null;default:'[]'"` // Tag set.
	Extension string `gorm:"type:varchar(32);not null"`        // File extension.
	Duration  int    `gorm:"not null"`                         // Length in seconds.
}

// Tags returns the tag set of the typed row.
func (r Resource) Tags() Tags {
	switch {
	case r.Image != nil:
		return r.Image.Tags
	case r.Music != nil:
		return r.Music.Tags
	case r.Video != nil:
		return r.Video.Tags
	default:
		return Tags{}
	}
}

// Extension returns the file extension of the typed row.
func (r Resource) Extension() string {
	switch {
	case r.Image != nil:
		return r.Image.Extension
	case r.Music != nil:
		return r.Music.Extension
	case r.Video != nil:
		return r.Video.Extension
	default:
		return ""
	}
}

// Duration returns the length in seconds for music and video, zero otherwise.
func (r Resource) Duration() int {
	switch {
	case r.Music != nil:
		return r.Music.Duration
	case r.Video != nil:
		return r.Video.Duration
	default:
		return 0
	}
}
