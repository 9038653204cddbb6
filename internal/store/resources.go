package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/collectit/marketplace/internal/apperr"
	dbutil "github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResourceFilter narrows resource listings.
type ResourceFilter struct {
	Type    models.ResourceType
	OwnerID uint64
	Tag     string
}

func typedTable(t models.ResourceType) (string, error) {
	switch t {
	case models.ResourceTypeImage:
		return "images", nil
	case models.ResourceTypeMusic:
		return "musics", nil
	case models.ResourceTypeVideo:
		return "videos", nil
	default:
		return "", apperr.Validation("unknown resource type %q", t)
	}
}

// InsertResource inserts the shared resource row and its typed row.
// The typed payload is taken from the Image, Music or Video field matching res.Type.
func (s *Store) InsertResource(ctx context.Context, res *models.Resource) error {
	if res == nil {
		return fmt.Errorf("store: nil resource")
	}
	if _, errType := typedTable(res.Type); errType != nil {
		return errType
	}
	if errCreate := s.conn(ctx).Omit(clause.Associations).Create(res).Error; errCreate != nil {
		if dbutil.IsForeignKeyViolation(errCreate) {
			return apperr.NotFound("user %d not found", res.OwnerID)
		}
		return fmt.Errorf("store: insert resource: %w", errCreate)
	}

	var typed any
	switch res.Type {
	case models.ResourceTypeImage:
		if res.Image == nil {
			return fmt.Errorf("store: missing image fields")
		}
		res.Image.ID = res.ID
		typed = res.Image
	case models.ResourceTypeMusic:
		if res.Music == nil {
			return fmt.Errorf("store: missing music fields")
		}
		res.Music.ID = res.ID
		typed = res.Music
	case models.ResourceTypeVideo:
		if res.Video == nil {
			return fmt.Errorf("store: missing video fields")
		}
		res.Video.ID = res.ID
		typed = res.Video
	}
	if errCreate := s.conn(ctx).Create(typed).Error; errCreate != nil {
		return fmt.Errorf("store: insert %s: %w", strings.ToLower(string(res.Type)), errCreate)
	}
	return nil
}

// FindResource loads a resource with its typed fields.
// An empty type matches any kind.
func (s *Store) FindResource(ctx context.Context, t models.ResourceType, id uint64) (models.Resource, error) {
	q := s.conn(ctx).Model(&models.Resource{}).Where("id = ?", id)
	if t != "" {
		q = q.Where("type = ?", t)
	}
	var res models.Resource
	if errFind := q.Take(&res).Error; errFind != nil {
		return models.Resource{}, notFoundOr(errFind, "%s %d not found", resourceLabel(t), id)
	}
	if errLoad := s.loadTyped(ctx, []*models.Resource{&res}); errLoad != nil {
		return models.Resource{}, errLoad
	}
	return res, nil
}

// DeleteResource removes the typed row and the resource row, returning the deleted resource.
func (s *Store) DeleteResource(ctx context.Context, t models.ResourceType, id uint64) (models.Resource, error) {
	table, errType := typedTable(t)
	if errType != nil {
		return models.Resource{}, errType
	}
	res, errFind := s.FindResource(ctx, t, id)
	if errFind != nil {
		return models.Resource{}, errFind
	}
	if errDelete := s.conn(ctx).Where("id = ?", id).Delete(typedModel(t)).Error; errDelete != nil {
		return models.Resource{}, fmt.Errorf("store: delete %s row: %w", table, errDelete)
	}
	result := s.conn(ctx).Where("id = ?", id).Delete(&models.Resource{})
	if result.Error != nil {
		return models.Resource{}, fmt.Errorf("store: delete resource: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.Resource{}, apperr.NotFound("%s %d not found", resourceLabel(t), id)
	}
	return res, nil
}

// PageResources lists resources ordered by ascending id with the total match count.
func (s *Store) PageResources(ctx context.Context, filter ResourceFilter, page Page) ([]models.Resource, int64, error) {
	table, errType := typedTable(filter.Type)
	if errType != nil {
		return nil, 0, errType
	}
	q := s.conn(ctx).Model(&models.Resource{}).Where("resources.type = ?", filter.Type)
	if filter.OwnerID != 0 {
		q = q.Where("resources.owner_id = ?", filter.OwnerID)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		q = q.Joins("JOIN "+table+" ON "+table+".id = resources.id").
			Where(dbutil.JSONArrayContainsExpr(s.db, table+".tags"), dbutil.JSONArrayContainsValue(tag))
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("store: count resources: %w", errCount)
	}
	var rows []models.Resource
	if errFind := q.Order("resources.id ASC").Offset(page.Offset()).Limit(page.Size).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("store: page resources: %w", errFind)
	}
	if errLoad := s.loadTyped(ctx, resourcePtrs(rows)); errLoad != nil {
		return nil, 0, errLoad
	}
	return rows, total, nil
}

// SearchResources matches text against names and tags and orders by relevance.
// PostgreSQL ranks videos with the tags search vector; other cases match substrings and rank name hits first.
func (s *Store) SearchResources(ctx context.Context, t models.ResourceType, text string, page Page) ([]models.Resource, int64, error) {
	table, errType := typedTable(t)
	if errType != nil {
		return nil, 0, errType
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.PageResources(ctx, ResourceFilter{Type: t}, page)
	}

	pattern := dbutil.NormalizeLikePattern(s.db, "%"+dbutil.EscapeLike(text)+"%")
	nameExpr := dbutil.CaseInsensitiveLikeExpr(s.db, "resources.name")
	tagsExpr := dbutil.JSONArrayElementLikeExpr(s.db, table+".tags")

	q := s.conn(ctx).Model(&models.Resource{}).
		Joins("JOIN "+table+" ON "+table+".id = resources.id").
		Where("resources.type = ?", t)

	var order clause.Expr
	if t == models.ResourceTypeVideo && !dbutil.IsSQLite(s.db) {
		tsQuery := "websearch_to_tsquery('" + settings.SearchConfig + "', ?)"
		q = q.Where("(videos.tags_search_vector @@ "+tsQuery+" OR "+nameExpr+")", text, pattern)
		order = clause.Expr{
			SQL:                "ts_rank(videos.tags_search_vector, " + tsQuery + ") DESC, resources.id ASC",
			Vars:               []any{text},
			WithoutParentheses: true,
		}
	} else {
		q = q.Where("("+nameExpr+" OR "+tagsExpr+")", pattern, pattern)
		order = clause.Expr{
			SQL:                "CASE WHEN " + nameExpr + " THEN 0 ELSE 1 END, resources.id ASC",
			Vars:               []any{pattern},
			WithoutParentheses: true,
		}
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("store: count search: %w", errCount)
	}
	var rows []models.Resource
	if errFind := q.Clauses(clause.OrderBy{Expression: order}).
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("store: search resources: %w", errFind)
	}
	if errLoad := s.loadTyped(ctx, resourcePtrs(rows)); errLoad != nil {
		return nil, 0, errLoad
	}
	return rows, total, nil
}

// UpdateResourceName renames a resource.
func (s *Store) UpdateResourceName(ctx context.Context, t models.ResourceType, id uint64, name string) error {
	result := s.conn(ctx).Model(&models.Resource{}).
		Where("id = ? AND type = ?", id, t).
		Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("store: update resource name: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("%s %d not found", resourceLabel(t), id)
	}
	return nil
}

// UpdateResourceTags replaces the tag set of a typed row.
func (s *Store) UpdateResourceTags(ctx context.Context, t models.ResourceType, id uint64, tags models.Tags) error {
	table, errType := typedTable(t)
	if errType != nil {
		return errType
	}
	result := s.conn(ctx).Model(typedModel(t)).Where("id = ?", id).Update("tags", tags)
	if result.Error != nil {
		return fmt.Errorf("store: update %s tags: %w", table, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("%s %d not found", resourceLabel(t), id)
	}
	return nil
}

// loadTyped fills the typed field of each resource according to its type.
func (s *Store) loadTyped(ctx context.Context, rows []*models.Resource) error {
	ids := map[models.ResourceType][]uint64{}
	for _, row := range rows {
		ids[row.Type] = append(ids[row.Type], row.ID)
	}
	if len(ids[models.ResourceTypeImage]) > 0 {
		var images []models.Image
		if errFind := s.conn(ctx).Where("id IN ?", ids[models.ResourceTypeImage]).Find(&images).Error; errFind != nil {
			return fmt.Errorf("store: load images: %w", errFind)
		}
		byID := make(map[uint64]*models.Image, len(images))
		for i := range images {
			byID[images[i].ID] = &images[i]
		}
		for _, row := range rows {
			if row.Type == models.ResourceTypeImage {
				row.Image = byID[row.ID]
			}
		}
	}
	if len(ids[models.ResourceTypeMusic]) > 0 {
		var musics []models.Music
		if errFind := s.conn(ctx).Where("id IN ?", ids[models.ResourceTypeMusic]).Find(&musics).Error; errFind != nil {
			return fmt.Errorf("store: load musics: %w", errFind)
		}
		byID := make(map[uint64]*models.Music, len(musics))
		for i := range musics {
			byID[musics[i].ID] = &musics[i]
		}
		for _, row := range rows {
			if row.Type == models.ResourceTypeMusic {
				row.Music = byID[row.ID]
			}
		}
	}
	if len(ids[models.ResourceTypeVideo]) > 0 {
		var videos []models.Video
		if errFind := s.conn(ctx).Where("id IN ?", ids[models.ResourceTypeVideo]).Find(&videos).Error; errFind != nil {
			return fmt.Errorf("store: load videos: %w", errFind)
		}
		byID := make(map[uint64]*models.Video, len(videos))
		for i := range videos {
			byID[videos[i].ID] = &videos[i]
		}
		for _, row := range rows {
			if row.Type == models.ResourceTypeVideo {
				row.Video = byID[row.ID]
			}
		}
	}
	return nil
}

func typedModel(t models.ResourceType) any {
	switch t {
	case models.ResourceTypeMusic:
		return &models.Music{}
	case models.ResourceTypeVideo:
		return &models.Video{}
	default:
		return &models.Image{}
	}
}

func resourcePtrs(rows []models.Resource) []*models.Resource {
	out := make([]*models.Resource, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

func resourceLabel(t models.ResourceType) string {
	if t == "" {
		return "resource"
	}
	return strings.ToLower(string(t))
}
