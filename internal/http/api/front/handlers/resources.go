package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/middleware"
	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/resources"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ResourceHandler serves the endpoints of one resource kind.
type ResourceHandler struct {
	kind         models.ResourceType
	resources    *resources.Service
	entitlements *entitlement.Service
	maxUpload    int64
}

// NewResourceHandler constructs a ResourceHandler for kind.
func NewResourceHandler(kind models.ResourceType, res *resources.Service, ent *entitlement.Service, maxUpload int64) *ResourceHandler {
	return &ResourceHandler{kind: kind, resources: res, entitlements: ent, maxUpload: maxUpload}
}

// List returns one page of resources. q runs a text query; tag and owner_id filter instead.
func (h *ResourceHandler) List(c *gin.Context) {
	number, size, ok := respond.ParsePage(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	query := strings.TrimSpace(c.Query("q"))
	tag := strings.TrimSpace(c.Query("tag"))
	ownerQ := strings.TrimSpace(c.Query("owner_id"))

	var (
		page    resources.Page
		errList error
	)
	switch {
	case query != "":
		page, errList = h.resources.Query(ctx, h.kind, query, number, size)
	case tag != "":
		page, errList = h.resources.ListByTag(ctx, h.kind, tag, number, size)
	case ownerQ != "":
		ownerID, errParse := strconv.ParseUint(ownerQ, 10, 64)
		if errParse != nil || ownerID == 0 {
			respond.BadRequest(c, "invalid owner_id")
			return
		}
		page, errList = h.resources.ListByOwner(ctx, h.kind, ownerID, number, size)
	default:
		page, errList = h.resources.GetPaged(ctx, h.kind, number, size)
	}
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	respond.Paged(c, api.Resources(page.Items), page.Total, page.Number, page.Size)
}

// Get returns one resource.
func (h *ResourceHandler) Get(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	res, errFind := h.resources.FindByID(c.Request.Context(), h.kind, id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	c.JSON(http.StatusOK, api.Resource(res))
}

// Create stores an uploaded file. The multipart form carries content, name, tags and duration.
func (h *ResourceHandler) Create(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	fileHeader, errFile := c.FormFile("content")
	if errFile != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(errFile, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large", "kind": "validation"})
			return
		}
		respond.BadRequest(c, "content file is required")
		return
	}

	extension := strings.TrimSpace(c.PostForm("extension"))
	if extension == "" {
		extension = filepath.Ext(fileHeader.Filename)
	}
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(fileHeader.Filename), filepath.Ext(fileHeader.Filename))
	}
	duration := 0
	if raw := strings.TrimSpace(c.PostForm("duration")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil {
			respond.BadRequest(c, "invalid duration")
			return
		}
		duration = parsed
	}

	file, errOpen := fileHeader.Open()
	if errOpen != nil {
		respond.BadRequest(c, "read upload failed")
		return
	}
	defer func() {
		if errClose := file.Close(); errClose != nil {
			log.WithError(errClose).Debug("close upload")
		}
	}()

	res, errCreate := h.resources.Create(c.Request.Context(), resources.CreateParams{
		Type:      h.kind,
		OwnerID:   userID,
		Name:      name,
		Tags:      formTags(c),
		Extension: extension,
		Duration:  duration,
		Content:   file,
	})
	if errCreate != nil {
		respond.Error(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, api.Resource(res))
}

// formTags accepts repeated tags fields as well as comma separated lists.
func formTags(c *gin.Context) []string {
	var tags []string
	for _, raw := range c.PostFormArray("tags") {
		tags = append(tags, strings.Split(raw, ",")...)
	}
	return tags
}

// renameRequest defines the request body for renaming a resource.
type renameRequest struct {
	Name string `json:"name"` // New display name.
}

// UpdateName renames a resource owned by the caller.
func (h *ResourceHandler) UpdateName(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	var body renameRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	if errChange := h.resources.ChangeName(c.Request.Context(), actor(c), h.kind, id, body.Name); errChange != nil {
		respond.Error(c, errChange)
		return
	}
	h.writeCurrent(c, id)
}

// retagRequest defines the request body for replacing resource tags.
type retagRequest struct {
	Tags []string `json:"tags"` // Replacement tag set.
}

// UpdateTags replaces the tags of a resource owned by the caller.
func (h *ResourceHandler) UpdateTags(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	var body retagRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	if errChange := h.resources.ChangeTags(c.Request.Context(), actor(c), h.kind, id, body.Tags); errChange != nil {
		respond.Error(c, errChange)
		return
	}
	h.writeCurrent(c, id)
}

func (h *ResourceHandler) writeCurrent(c *gin.Context, id uint64) {
	res, errFind := h.resources.FindByID(c.Request.Context(), h.kind, id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	c.JSON(http.StatusOK, api.Resource(res))
}

// Delete removes a resource owned by the caller.
func (h *ResourceHandler) Delete(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.resources.Delete(c.Request.Context(), actor(c), h.kind, id); errDelete != nil {
		respond.Error(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// Content streams the stored file to its owner, an admin or a user who holds it.
func (h *ResourceHandler) Content(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	res, errFind := h.resources.FindByID(ctx, h.kind, id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	userID := middleware.UserID(c)
	if res.OwnerID != userID && !middleware.IsAdmin(c) {
		acquired, errAcquired := h.entitlements.IsResourceAcquired(ctx, userID, id)
		if errAcquired != nil {
			respond.Error(c, errAcquired)
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "resource not acquired", "kind": "forbidden"})
			return
		}
	}

	res, content, errContent := h.resources.Content(ctx, h.kind, id)
	if errContent != nil {
		respond.Error(c, errContent)
		return
	}
	defer func() {
		if errClose := content.Close(); errClose != nil {
			log.WithError(errClose).WithField("resource_id", id).Debug("close content")
		}
	}()

	contentType := mime.TypeByExtension("." + res.Extension())
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := fmt.Sprintf("%s.%s", strings.ReplaceAll(res.Name, `"`, ""), res.Extension())
	c.DataFromReader(http.StatusOK, -1, contentType, content, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": filename}),
	})
}

// Acquire charges the resource to one of the caller's subscriptions.
func (h *ResourceHandler) Acquire(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, errFind := h.resources.FindByID(ctx, h.kind, id); errFind != nil {
		respond.Error(c, errFind)
		return
	}
	acquired, errAcquire := h.entitlements.AcquireResource(ctx, middleware.UserID(c), id)
	if errAcquire != nil {
		respond.Error(c, errAcquire)
		return
	}
	c.JSON(http.StatusOK, api.Acquisition(acquired))
}

// Acquired reports whether the caller holds the resource.
func (h *ResourceHandler) Acquired(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, errFind := h.resources.FindByID(ctx, h.kind, id); errFind != nil {
		respond.Error(c, errFind)
		return
	}
	acquired, errAcquired := h.entitlements.IsResourceAcquired(ctx, middleware.UserID(c), id)
	if errAcquired != nil {
		respond.Error(c, errAcquired)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource_id": id, "acquired": acquired})
}

func actor(c *gin.Context) resources.Actor {
	return resources.Actor{UserID: middleware.UserID(c), Admin: middleware.IsAdmin(c)}
}
