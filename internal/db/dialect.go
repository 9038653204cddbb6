package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// likeEscape is the escape character used by every LIKE pattern built here.
const likeEscape = `\`

// CaseInsensitiveLikeExpr returns a SQL expression for case-insensitive LIKE.
// Patterns must be built with EscapeLike and NormalizeLikePattern.
func CaseInsensitiveLikeExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("%s(%s) LIKE ? ESCAPE '%s'", SQLiteLowerFunc, column, likeEscape)
	}
	return fmt.Sprintf("%s ILIKE ? ESCAPE '%s'", column, likeEscape)
}

// EscapeLike escapes LIKE metacharacters so s matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_").Replace(s)
}

// NormalizeLikePattern normalizes a LIKE pattern for the current dialect.
func NormalizeLikePattern(conn *gorm.DB, pattern string) string {
	if IsSQLite(conn) {
		return strings.ToLower(pattern)
	}
	return pattern
}

// JSONArrayContainsExpr returns a SQL expression testing whether a JSON string array holds a value.
func JSONArrayContainsExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE %s(value) = ?)", column, SQLiteLowerFunc)
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(%s) AS elem(value) WHERE LOWER(elem.value) = ?)", column)
}

// JSONArrayContainsValue returns the bind value for JSON array containment checks.
func JSONArrayContainsValue(value string) any {
	return strings.ToLower(strings.TrimSpace(value))
}

// JSONArrayElementLikeExpr returns a SQL expression testing whether any element of a JSON
// string array matches a case-insensitive LIKE pattern.
func JSONArrayElementLikeExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE %s)", column, CaseInsensitiveLikeExpr(conn, "value"))
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(%s) AS elem(value) WHERE %s)", column, CaseInsensitiveLikeExpr(conn, "elem.value"))
}
