// Package resources manages images, music and videos: metadata rows plus their stored content.
package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/blob"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/collectit/marketplace/internal/store"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID uint64
	Admin  bool
}

// CreateParams describes a new resource.
type CreateParams struct {
	Type      models.ResourceType
	OwnerID   uint64
	Name      string
	Tags      []string
	Extension string
	Duration  int
	Content   io.Reader
}

// Page is one page of resources.
type Page struct {
	Items  []models.Resource
	Total  int64
	Number int
	Size   int
}

// Service implements the resource store operations.
type Service struct {
	store   *store.Store
	blobs   blob.Storage
	timeout time.Duration
	now     func() time.Time
	newKey  func() string
}

// NewService constructs a Service. A zero timeout uses the default blob timeout.
func NewService(st *store.Store, blobs blob.Storage, timeout time.Duration, now func() time.Time) *Service {
	if timeout <= 0 {
		timeout = settings.DefaultStorageTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   st,
		blobs:   blobs,
		timeout: timeout,
		now:     now,
		newKey:  uuid.NewString,
	}
}

// Create validates params, inserts metadata and writes the content in one unit of work.
// A failed content write rolls the metadata back; a failed metadata insert never touches storage.
func (s *Service) Create(ctx context.Context, params CreateParams) (models.Resource, error) {
	res, errValidate := s.buildResource(params)
	if errValidate != nil {
		return models.Resource{}, errValidate
	}
	if params.Content == nil {
		return models.Resource{}, apperr.Validation("content is required")
	}

	written := false
	errTx := s.store.InTx(ctx, func(tx *store.Store) error {
		if errInsert := tx.InsertResource(ctx, &res); errInsert != nil {
			return errInsert
		}
		blobCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if _, errWrite := s.blobs.Write(blobCtx, res.Path, params.Content); errWrite != nil {
			return apperr.StorageFailure(errWrite, "store %s content", strings.ToLower(string(res.Type)))
		}
		written = true
		return nil
	})
	if errTx != nil {
		if written {
			s.removeBlob(ctx, res.Path)
		}
		return models.Resource{}, errTx
	}
	return res, nil
}

func (s *Service) buildResource(params CreateParams) (models.Resource, error) {
	if !params.Type.Valid() {
		return models.Resource{}, apperr.Validation("unknown resource type %q", params.Type)
	}
	if params.OwnerID == 0 {
		return models.Resource{}, apperr.Validation("owner is required")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Resource{}, apperr.Validation("name is required")
	}
	ext, errExt := normalizeExtension(params.Extension)
	if errExt != nil {
		return models.Resource{}, errExt
	}
	tags := models.NormalizeTags(params.Tags)

	res := models.Resource{
		OwnerID:    params.OwnerID,
		Type:       params.Type,
		Path:       s.newKey() + "." + ext,
		Name:       name,
		UploadDate: s.now().UTC(),
	}
	switch params.Type {
	case models.ResourceTypeImage:
		res.Image = &models.Image{Tags: tags, Extension: ext}
	case models.ResourceTypeMusic, models.ResourceTypeVideo:
		if params.Duration < 1 {
			return models.Resource{}, apperr.Validation("duration must be at least 1 second")
		}
		if params.Type == models.ResourceTypeMusic {
			res.Music = &models.Music{Tags: tags, Extension: ext, Duration: params.Duration}
		} else {
			res.Video = &models.Video{Tags: tags, Extension: ext, Duration: params.Duration}
		}
	}
	return res, nil
}

func normalizeExtension(raw string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
	if ext == "" {
		return "", apperr.Validation("extension is required")
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", apperr.Validation("invalid extension %q", raw)
		}
	}
	return ext, nil
}

// Delete removes the metadata, then deletes the content on a best-effort basis.
func (s *Service) Delete(ctx context.Context, actor Actor, t models.ResourceType, id uint64) error {
	var deleted models.Resource
	errTx := s.store.InTx(ctx, func(tx *store.Store) error {
		existing, errFind := tx.FindResource(ctx, t, id)
		if errFind != nil {
			return errFind
		}
		if errAuth := authorize(actor, existing); errAuth != nil {
			return errAuth
		}
		res, errDelete := tx.DeleteResource(ctx, t, id)
		if errDelete != nil {
			return errDelete
		}
		deleted = res
		return nil
	})
	if errTx != nil {
		return errTx
	}
	s.removeBlob(ctx, deleted.Path)
	return nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	blobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if errDelete := s.blobs.Delete(blobCtx, key); errDelete != nil {
		log.WithError(errDelete).WithField("key", key).Warn("resources: delete content failed")
	}
}

// FindByID loads one resource of the given type.
func (s *Service) FindByID(ctx context.Context, t models.ResourceType, id uint64) (models.Resource, error) {
	return s.store.FindResource(ctx, t, id)
}

// GetPaged lists resources ordered by ascending id.
func (s *Service) GetPaged(ctx context.Context, t models.ResourceType, pageNumber, pageSize int) (Page, error) {
	return s.list(ctx, store.ResourceFilter{Type: t}, pageNumber, pageSize)
}

// ListByOwner lists the resources uploaded by one user.
func (s *Service) ListByOwner(ctx context.Context, t models.ResourceType, ownerID uint64, pageNumber, pageSize int) (Page, error) {
	return s.list(ctx, store.ResourceFilter{Type: t, OwnerID: ownerID}, pageNumber, pageSize)
}

// ListByTag lists resources carrying a tag.
func (s *Service) ListByTag(ctx context.Context, t models.ResourceType, tag string, pageNumber, pageSize int) (Page, error) {
	return s.list(ctx, store.ResourceFilter{Type: t, Tag: tag}, pageNumber, pageSize)
}

func (s *Service) list(ctx context.Context, filter store.ResourceFilter, pageNumber, pageSize int) (Page, error) {
	page, errPage := store.NewPage(pageNumber, pageSize)
	if errPage != nil {
		return Page{}, errPage
	}
	rows, total, errList := s.store.PageResources(ctx, filter, page)
	if errList != nil {
		return Page{}, errList
	}
	return Page{Items: rows, Total: total, Number: page.Number, Size: page.Size}, nil
}

// Query searches names and tags and returns the best matches first.
func (s *Service) Query(ctx context.Context, t models.ResourceType, text string, pageNumber, pageSize int) (Page, error) {
	page, errPage := store.NewPage(pageNumber, pageSize)
	if errPage != nil {
		return Page{}, errPage
	}
	rows, total, errSearch := s.store.SearchResources(ctx, t, text, page)
	if errSearch != nil {
		return Page{}, errSearch
	}
	return Page{Items: rows, Total: total, Number: page.Number, Size: page.Size}, nil
}

// ChangeName renames a resource owned by the actor.
func (s *Service) ChangeName(ctx context.Context, actor Actor, t models.ResourceType, id uint64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Validation("name is required")
	}
	return s.store.InTx(ctx, func(tx *store.Store) error {
		existing, errFind := tx.FindResource(ctx, t, id)
		if errFind != nil {
			return errFind
		}
		if errAuth := authorize(actor, existing); errAuth != nil {
			return errAuth
		}
		return tx.UpdateResourceName(ctx, t, id, name)
	})
}

// ChangeTags replaces the tag set of a resource owned by the actor.
func (s *Service) ChangeTags(ctx context.Context, actor Actor, t models.ResourceType, id uint64, tags []string) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		existing, errFind := tx.FindResource(ctx, t, id)
		if errFind != nil {
			return errFind
		}
		if errAuth := authorize(actor, existing); errAuth != nil {
			return errAuth
		}
		return tx.UpdateResourceTags(ctx, t, id, models.NormalizeTags(tags))
	})
}

// Content opens the stored content of a resource. Closing the reader releases the blob timeout.
func (s *Service) Content(ctx context.Context, t models.ResourceType, id uint64) (models.Resource, io.ReadCloser, error) {
	res, errFind := s.store.FindResource(ctx, t, id)
	if errFind != nil {
		return models.Resource{}, nil, errFind
	}
	blobCtx, cancel := context.WithTimeout(ctx, s.timeout)
	rc, errRead := s.blobs.Read(blobCtx, res.Path)
	if errRead != nil {
		cancel()
		if errors.Is(errRead, blob.ErrNotFound) {
			return models.Resource{}, nil, apperr.StorageFailure(errRead, "content of %s %d is missing", strings.ToLower(string(t)), id)
		}
		return models.Resource{}, nil, apperr.StorageFailure(errRead, "read %s content", strings.ToLower(string(t)))
	}
	return res, &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
}

func authorize(actor Actor, res models.Resource) error {
	if actor.Admin || (actor.UserID != 0 && actor.UserID == res.OwnerID) {
		return nil
	}
	return apperr.Forbidden("only the owner may modify %s %d", strings.ToLower(string(res.Type)), res.ID)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	if errClose := c.ReadCloser.Close(); errClose != nil {
		return fmt.Errorf("resources: close content: %w", errClose)
	}
	return nil
}
