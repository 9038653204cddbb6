package settings

import "time"

// Built-in role names.
const (
	// RoleAdmin grants access to the admin API.
	RoleAdmin = "Admin"
	// RoleUser is assigned to every registered account.
	RoleUser = "User"
	// RoleTechSupport marks support staff.
	RoleTechSupport = "TechSupport"
)

// DefaultRoles lists roles seeded by migrations.
var DefaultRoles = []string{RoleAdmin, RoleUser, RoleTechSupport}

// Defaults for configurable values.
const (
	// DefaultPort is the HTTP listen port.
	DefaultPort = 8080
	// DefaultPageSize is used when a list request omits page_size.
	DefaultPageSize = 20
	// MaxPageSize caps page_size on list requests.
	MaxPageSize = 200
	// DefaultStorageDriver selects the local filesystem blob store.
	DefaultStorageDriver = "local"
	// DefaultStoragePath is the local blob root.
	DefaultStoragePath = "./content"
	// DefaultStorageTimeout bounds every blob operation.
	DefaultStorageTimeout = 30 * time.Second
	// DefaultUploadLimitBytes caps multipart uploads.
	DefaultUploadLimitBytes = 512 << 20
	// DefaultRateLimit is the fallback per-second limit (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "collectit:rl"
	// DefaultCurrency is used for checkout sessions.
	DefaultCurrency = "usd"
	// SearchConfig is the PostgreSQL text search configuration for video tags.
	SearchConfig = "russian"
)
