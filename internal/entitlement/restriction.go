package entitlement

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/models"
	"gorm.io/datatypes"
)

// Restriction kinds narrow which resources a plan admits.
const (
	RestrictionAuthor    = "author"
	RestrictionTags      = "tags"
	RestrictionDaysTo    = "days_to"
	RestrictionDaysAfter = "days_after"
)

// Restriction is the optional eligibility rule attached to a plan.
type Restriction struct {
	Type     string   `json:"type"`
	AuthorID uint64   `json:"author_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Days     int      `json:"days,omitempty"`
}

// ParseRestriction decodes a stored restriction. Empty input yields nil.
func ParseRestriction(raw datatypes.JSON) (*Restriction, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var r Restriction
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &r); errUnmarshal != nil {
		return nil, apperr.Validation("invalid restriction: %v", errUnmarshal)
	}
	if errValidate := r.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return &r, nil
}

// Validate checks that the fields required by the restriction kind are present.
func (r *Restriction) Validate() error {
	if r == nil {
		return nil
	}
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	switch r.Type {
	case RestrictionAuthor:
		if r.AuthorID == 0 {
			return apperr.Validation("author restriction requires author_id")
		}
	case RestrictionTags:
		r.Tags = models.NormalizeTags(r.Tags)
		if len(r.Tags) == 0 {
			return apperr.Validation("tags restriction requires at least one tag")
		}
	case RestrictionDaysTo, RestrictionDaysAfter:
		if r.Days < 1 {
			return apperr.Validation("%s restriction requires days >= 1", r.Type)
		}
	default:
		return apperr.Validation("unknown restriction type %q", r.Type)
	}
	return nil
}

// Encode returns the JSON column value. A nil restriction encodes as NULL.
func (r *Restriction) Encode() (datatypes.JSON, error) {
	if r == nil {
		return nil, nil
	}
	encoded, errMarshal := json.Marshal(r)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(encoded), nil
}

// Admits reports whether a resource satisfies the restriction at now.
func (r *Restriction) Admits(res models.Resource, now time.Time) bool {
	if r == nil {
		return true
	}
	age := now.Sub(res.UploadDate)
	window := time.Duration(r.Days) * 24 * time.Hour
	switch r.Type {
	case RestrictionAuthor:
		return res.OwnerID == r.AuthorID
	case RestrictionTags:
		tags := res.Tags()
		for _, tag := range r.Tags {
			if !tags.Contains(tag) {
				return false
			}
		}
		return true
	case RestrictionDaysTo:
		return age < window
	case RestrictionDaysAfter:
		return age >= window
	default:
		return false
	}
}
