// Package respond maps service results onto JSON HTTP responses.
package respond

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindStorageFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error", "kind"}. Unclassified errors are logged and hidden from the client.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	message := err.Error()
	if kind == apperr.KindInternal || kind == apperr.KindStorageFailure {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	if kind == apperr.KindInternal {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "kind": kind.String()})
}

// BadRequest writes a validation error with a fixed message.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message, "kind": apperr.KindValidation.String()})
}

// ParseID reads a positive integer path parameter. It writes a 400 and returns false on failure.
func ParseID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// ParsePage reads page_number and page_size query values, applying defaults when absent.
// Values outside 1..MaxPageSize are rejected.
func ParsePage(c *gin.Context) (int, int, bool) {
	number, okNumber := queryInt(c, "page_number", 1)
	size, okSize := queryInt(c, "page_size", settings.DefaultPageSize)
	if !okNumber || !okSize {
		BadRequest(c, "page_number and page_size must be integers")
		return 0, 0, false
	}
	if number < 1 || size < 1 {
		BadRequest(c, "page_number and page_size must be at least 1")
		return 0, 0, false
	}
	if size > settings.MaxPageSize {
		BadRequest(c, "page_size must not exceed "+strconv.Itoa(settings.MaxPageSize))
		return 0, 0, false
	}
	return number, size, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	value, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return 0, false
	}
	return value, true
}

// Paged writes a page envelope.
func Paged(c *gin.Context, items any, total int64, number, size int) {
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total":       total,
		"page_number": number,
		"page_size":   size,
	})
}
