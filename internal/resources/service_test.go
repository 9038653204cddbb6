package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/blob"
	"github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/store"
)

type failingStorage struct {
	blob.Storage
	failWrite  bool
	failDelete bool
	writes     int
	deleted    []string
}

func (f *failingStorage) Write(ctx context.Context, key string, r io.Reader) (blob.Info, error) {
	f.writes++
	if f.failWrite {
		return blob.Info{}, errors.New("disk full")
	}
	return f.Storage.Write(ctx, key, r)
}

func (f *failingStorage) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	if f.failDelete {
		return errors.New("permission denied")
	}
	return f.Storage.Delete(ctx, key)
}

type fixture struct {
	store *store.Store
	blobs *failingStorage
	svc   *Service
	owner models.User
	other models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "resources-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	local, err := blob.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	st := store.New(conn)
	blobs := &failingStorage{Storage: local}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(st, blobs, time.Second, func() time.Time { return now })

	f := &fixture{store: st, blobs: blobs, svc: svc}
	f.owner = insertUser(t, st, "owner1")
	f.other = insertUser(t, st, "other1")
	return f
}

func insertUser(t *testing.T, st *store.Store, name string) models.User {
	t.Helper()
	user := models.User{
		Username:           name,
		NormalizedUsername: strings.ToUpper(name),
		Email:              name + "@example.com",
		NormalizedEmail:    strings.ToUpper(name + "@example.com"),
		Password:           "hash",
	}
	if errInsert := st.InsertUser(context.Background(), &user); errInsert != nil {
		t.Fatalf("insert user %s: %v", name, errInsert)
	}
	return user
}

func (f *fixture) createImage(t *testing.T, name string, tags ...string) models.Resource {
	t.Helper()
	res, err := f.svc.Create(context.Background(), CreateParams{
		Type:      models.ResourceTypeImage,
		OwnerID:   f.owner.ID,
		Name:      name,
		Tags:      tags,
		Extension: "png",
		Content:   strings.NewReader("pixels-" + name),
	})
	if err != nil {
		t.Fatalf("create image %s: %v", name, err)
	}
	return res
}

func TestCreateStoresMetadataAndContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateParams{
		Type:      models.ResourceTypeVideo,
		OwnerID:   f.owner.ID,
		Name:      "  Sunset  ",
		Tags:      []string{"sea", "Sea", " ", "sun"},
		Extension: ".MP4",
		Duration:  42,
		Content:   strings.NewReader("frames"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID == 0 || res.Name != "Sunset" {
		t.Fatalf("unexpected resource %+v", res)
	}
	if !strings.HasSuffix(res.Path, ".mp4") {
		t.Fatalf("expected key with extension, got %q", res.Path)
	}

	found, err := f.svc.FindByID(ctx, models.ResourceTypeVideo, res.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.Duration() != 42 || found.Extension() != "mp4" {
		t.Fatalf("unexpected typed fields %+v", found.Video)
	}
	if got := found.Tags(); len(got) != 2 || got[0] != "sea" || got[1] != "sun" {
		t.Fatalf("unexpected tags %v", got)
	}

	_, rc, err := f.svc.Content(ctx, models.ResourceTypeVideo, res.ID)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	body, errRead := io.ReadAll(rc)
	_ = rc.Close()
	if errRead != nil || string(body) != "frames" {
		t.Fatalf("unexpected content %q (%v)", body, errRead)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []CreateParams{
		{Type: "Book", OwnerID: f.owner.ID, Name: "x", Extension: "png", Content: strings.NewReader("x")},
		{Type: models.ResourceTypeImage, OwnerID: f.owner.ID, Name: " ", Extension: "png", Content: strings.NewReader("x")},
		{Type: models.ResourceTypeImage, OwnerID: f.owner.ID, Name: "x", Extension: "p/ng", Content: strings.NewReader("x")},
		{Type: models.ResourceTypeMusic, OwnerID: f.owner.ID, Name: "x", Extension: "mp3", Duration: 0, Content: strings.NewReader("x")},
		{Type: models.ResourceTypeImage, OwnerID: f.owner.ID, Name: "x", Extension: "png"},
	}
	for i, params := range cases {
		if _, err := f.svc.Create(ctx, params); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCreateUnknownOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateParams{
		Type:      models.ResourceTypeImage,
		OwnerID:   9999,
		Name:      "orphan",
		Extension: "png",
		Content:   strings.NewReader("x"),
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.blobs.writes != 0 {
		t.Fatalf("expected no content write after failed metadata insert, got %d", f.blobs.writes)
	}
}

func TestCreateBlobFailureLeavesNoMetadata(t *testing.T) {
	f := newFixture(t)
	f.blobs.failWrite = true

	_, err := f.svc.Create(context.Background(), CreateParams{
		Type:      models.ResourceTypeMusic,
		OwnerID:   f.owner.ID,
		Name:      "song",
		Extension: "mp3",
		Duration:  180,
		Content:   strings.NewReader("notes"),
	})
	if !apperr.Is(err, apperr.KindStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}

	var resources, musics int64
	f.store.DB().Model(&models.Resource{}).Count(&resources)
	f.store.DB().Model(&models.Music{}).Count(&musics)
	if resources != 0 || musics != 0 {
		t.Fatalf("expected no rows after failed upload, got resources=%d musics=%d", resources, musics)
	}
}

func TestDeleteRemovesMetadataEvenWhenBlobDeleteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createImage(t, "cat")

	if err := f.svc.Delete(ctx, Actor{UserID: f.other.ID}, models.ResourceTypeImage, res.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	f.blobs.failDelete = true
	if err := f.svc.Delete(ctx, Actor{UserID: f.owner.ID}, models.ResourceTypeImage, res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.blobs.deleted) != 1 || f.blobs.deleted[0] != res.Path {
		t.Fatalf("expected blob delete attempt for %q, got %v", res.Path, f.blobs.deleted)
	}
	if _, err := f.svc.FindByID(ctx, models.ResourceTypeImage, res.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, Actor{Admin: true}, models.ResourceTypeImage, res.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteWrongTypeIsNotFound(t *testing.T) {
	f := newFixture(t)
	res := f.createImage(t, "dog")
	err := f.svc.Delete(context.Background(), Actor{Admin: true}, models.ResourceTypeVideo, res.ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetPagedOrderAndBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.createImage(t, fmt.Sprintf("img-%d", i)).ID)
	}

	page, err := f.svc.GetPaged(ctx, models.ResourceTypeImage, 2, 2)
	if err != nil {
		t.Fatalf("GetPaged: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].ID != ids[2] || page.Items[1].ID != ids[3] {
		t.Fatalf("expected ids %d,%d got %d,%d", ids[2], ids[3], page.Items[0].ID, page.Items[1].ID)
	}

	last, err := f.svc.GetPaged(ctx, models.ResourceTypeImage, 4, 2)
	if err != nil {
		t.Fatalf("GetPaged beyond end: %v", err)
	}
	if len(last.Items) != 0 || last.Total != 5 {
		t.Fatalf("expected empty page past the end, got %+v", last)
	}

	if _, err = f.svc.GetPaged(ctx, models.ResourceTypeImage, 0, 2); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation for page 0, got %v", err)
	}
	if _, err = f.svc.GetPaged(ctx, models.ResourceTypeImage, 1, 0); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation for size 0, got %v", err)
	}
	huge, err := f.svc.GetPaged(ctx, models.ResourceTypeImage, 1<<62+1, 4)
	if !apperr.Is(err, apperr.KindValidation) || len(huge.Items) != 0 {
		t.Fatalf("expected validation for an overflowing page, got %d items (%v)", len(huge.Items), err)
	}
	if _, err = f.svc.Query(ctx, models.ResourceTypeImage, "img", 1<<62+1, 4); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation for an overflowing query page, got %v", err)
	}
	farthest, err := f.svc.GetPaged(ctx, models.ResourceTypeImage, math.MaxInt, 1)
	if err != nil || len(farthest.Items) != 0 {
		t.Fatalf("expected empty last addressable page, got %+v (%v)", farthest, err)
	}
}

func TestQueryRanksNameMatchesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tagged := f.createImage(t, "beach", "cat")
	named := f.createImage(t, "Cat portrait")
	f.createImage(t, "mountain", "snow")

	page, err := f.svc.Query(ctx, models.ResourceTypeImage, "cat", 1, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 matches, got %+v", page)
	}
	if page.Items[0].ID != named.ID || page.Items[1].ID != tagged.ID {
		t.Fatalf("expected name match first, got %d then %d", page.Items[0].ID, page.Items[1].ID)
	}
}

func TestQueryTreatsPatternCharactersLiterally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createImage(t, "plain", "one")
	f.createImage(t, "other", "two")
	literal := f.createImage(t, "a_b 100%", "x")

	for _, text := range []string{"_", "%", "[", `"`, `\`} {
		page, err := f.svc.Query(ctx, models.ResourceTypeImage, text, 1, 10)
		if err != nil {
			t.Fatalf("Query %q: %v", text, err)
		}
		for _, item := range page.Items {
			if item.ID != literal.ID {
				t.Fatalf("query %q matched unrelated resource %q", text, item.Name)
			}
		}
	}
	for _, text := range []string{"a_b", "100%"} {
		page, err := f.svc.Query(ctx, models.ResourceTypeImage, text, 1, 10)
		if err != nil {
			t.Fatalf("Query %q: %v", text, err)
		}
		if page.Total != 1 || page.Items[0].ID != literal.ID {
			t.Fatalf("expected %q to match only the literal name, got %+v", text, page)
		}
	}
	if page, _ := f.svc.Query(ctx, models.ResourceTypeImage, "ab", 1, 10); page.Total != 0 {
		t.Fatalf("expected underscore to stay significant, got %d matches", page.Total)
	}
}

func TestQueryMatchesTagsByElement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rnb := f.createImage(t, "vinyl", "R&B", "<live>")
	cyrillic := f.createImage(t, "Закат над морем", "Природа")

	cases := map[string]uint64{
		"r&b":    rnb.ID,
		"<LIVE>": rnb.ID,
		"природа": cyrillic.ID,
		"ЗАКАТ":   cyrillic.ID,
	}
	for text, want := range cases {
		page, err := f.svc.Query(ctx, models.ResourceTypeImage, text, 1, 10)
		if err != nil {
			t.Fatalf("Query %q: %v", text, err)
		}
		if page.Total != 1 || page.Items[0].ID != want {
			t.Fatalf("expected %q to match resource %d, got %+v", text, want, page)
		}
	}
	if page, _ := f.svc.Query(ctx, models.ResourceTypeImage, `B","<`, 1, 10); page.Total != 0 {
		t.Fatalf("expected no match across tag boundaries, got %d", page.Total)
	}

	tagged, err := f.svc.ListByTag(ctx, models.ResourceTypeImage, "ПРИРОДА", 1, 10)
	if err != nil || tagged.Total != 1 {
		t.Fatalf("expected case-insensitive cyrillic tag listing, got %+v (%v)", tagged, err)
	}
}

func TestListByTagAndOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createImage(t, "one", "Nature")
	f.createImage(t, "two", "city")

	page, err := f.svc.ListByTag(ctx, models.ResourceTypeImage, "nature", 1, 10)
	if err != nil {
		t.Fatalf("ListByTag: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "one" {
		t.Fatalf("unexpected tag listing %+v", page)
	}

	mine, err := f.svc.ListByOwner(ctx, models.ResourceTypeImage, f.other.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if mine.Total != 0 {
		t.Fatalf("expected no resources for other user, got %d", mine.Total)
	}
}

func TestChangeNameAndTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createImage(t, "draft", "a")

	if err := f.svc.ChangeName(ctx, Actor{UserID: f.other.ID}, models.ResourceTypeImage, res.ID, "stolen"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := f.svc.ChangeName(ctx, Actor{UserID: f.owner.ID}, models.ResourceTypeImage, res.ID, "final"); err != nil {
		t.Fatalf("ChangeName: %v", err)
	}
	if err := f.svc.ChangeTags(ctx, Actor{Admin: true}, models.ResourceTypeImage, res.ID, []string{"b", "B", "c"}); err != nil {
		t.Fatalf("ChangeTags: %v", err)
	}

	found, err := f.svc.FindByID(ctx, models.ResourceTypeImage, res.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.Name != "final" {
		t.Fatalf("expected renamed resource, got %q", found.Name)
	}
	if tags := found.Tags(); len(tags) != 2 || !tags.Contains("c") {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestContentMissingBlobIsStorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.createImage(t, "ghost")
	if err := f.blobs.Storage.Delete(ctx, res.Path); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	if _, _, err := f.svc.Content(ctx, models.ResourceTypeImage, res.ID); !apperr.Is(err, apperr.KindStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
}
