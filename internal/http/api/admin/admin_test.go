package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/blob"
	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/resources"
	"github.com/collectit/marketplace/internal/security"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/collectit/marketplace/internal/store"
	"github.com/gin-gonic/gin"
)

const testSecret = "admin-test-secret"

type testServer struct {
	engine       *gin.Engine
	accounts     *account.Service
	catalog      *entitlement.Catalog
	entitlements *entitlement.Service
	resources    *resources.Service
	adminToken   string
	userToken    string
	userID       uint64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "admin-test.db"))
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
	s := &testServer{
		accounts:     account.NewService(st),
		catalog:      entitlement.NewCatalog(st),
		entitlements: entitlement.NewService(st, nil),
		resources:    resources.NewService(st, local, time.Second, nil),
	}
	r := gin.New()
	RegisterAdminRoutes(r, api.Services{
		Store:        st,
		Accounts:     s.accounts,
		Resources:    s.resources,
		Catalog:      s.catalog,
		Entitlements: s.entitlements,
		JWT:          config.JWTConfig{Secret: testSecret, Expiry: time.Hour},
		StoragePath:  t.TempDir(),
	})
	s.engine = r

	ctx := context.Background()
	adminUser, errAdmin := s.accounts.Create(ctx, "admin1", "admin1@example.com", "secret1", settings.RoleAdmin, settings.RoleUser)
	if errAdmin != nil {
		t.Fatalf("create admin: %v", errAdmin)
	}
	plainUser, errUser := s.accounts.Register(ctx, "alice1", "alice1@example.com", "secret1")
	if errUser != nil {
		t.Fatalf("create user: %v", errUser)
	}
	s.adminToken = issue(t, adminUser)
	s.userToken = issue(t, plainUser)
	s.userID = plainUser.ID
	return s
}

func issue(t *testing.T, user store.UserWithRoles) string {
	t.Helper()
	token, errToken := security.IssueUserToken(testSecret, time.Hour, user.ID, user.Username, user.Roles, time.Now())
	if errToken != nil {
		t.Fatalf("issue token: %v", errToken)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		encoded, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		payload = encoded
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), errDecode)
	}
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Fatalf("healthz: %d %s", w.Code, w.Body.String())
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/v1/admin/subscriptions", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/admin/subscriptions", s.userToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/admin/subscriptions", s.adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("expected admin access, got %d", w.Code)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/admin/subscriptions", s.adminToken, gin.H{
		"name": "Nature", "type": "image", "max_resources_count": 5, "validity_days": 30, "price": 9.99,
		"restriction": gin.H{"type": "TAGS", "tags": []string{"nature", " Nature "}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	restriction := created["restriction"].(map[string]any)
	if restriction["type"] != entitlement.RestrictionTags || len(restriction["tags"].([]any)) != 1 {
		t.Fatalf("expected normalized restriction, got %v", restriction)
	}
	id := uint64(created["id"].(float64))
	path := fmt.Sprintf("/api/v1/admin/subscriptions/%d", id)

	if w = s.do(t, http.MethodPost, "/api/v1/admin/subscriptions", s.adminToken, gin.H{"name": "Bad", "type": "image", "max_resources_count": 0, "validity_days": 30}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected zero quota to be rejected, got %d", w.Code)
	}
	if w = s.do(t, http.MethodPut, path, s.adminToken, gin.H{"type": "video"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected type change to be rejected, got %d", w.Code)
	}

	w = s.do(t, http.MethodPut, path, s.adminToken, map[string]any{"price": 4.5, "restriction": nil, "active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	updated := decode(t, w)
	if updated["price"].(float64) != 4.5 || updated["restriction"] != nil || updated["active"] != false {
		t.Fatalf("unexpected update result %v", updated)
	}

	if w = s.do(t, http.MethodPost, path+"/enable", s.adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("enable: %d", w.Code)
	}
	if w = s.do(t, http.MethodGet, path, s.adminToken, nil); w.Code != http.StatusOK || decode(t, w)["active"] != true {
		t.Fatalf("expected plan to be active again: %d %s", w.Code, w.Body.String())
	}
	if w = s.do(t, http.MethodDelete, path, s.adminToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w = s.do(t, http.MethodDelete, path, s.adminToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected second delete to be not found, got %d", w.Code)
	}
}

func TestUserRoleManagement(t *testing.T) {
	s := newTestServer(t)
	rolesPath := fmt.Sprintf("/api/v1/admin/users/%d/roles", s.userID)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, rolesPath, s.adminToken, gin.H{"role": settings.RoleTechSupport})
		if w.Code != http.StatusOK || len(decode(t, w)["roles"].([]any)) != 2 {
			t.Fatalf("add role attempt %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	if w := s.do(t, http.MethodPost, rolesPath, s.adminToken, gin.H{"role": "Wizard"}); w.Code != http.StatusNotFound {
		t.Fatalf("expected unknown role to be not found, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/users/9999/roles", s.adminToken, gin.H{"role": settings.RoleUser}); w.Code != http.StatusNotFound {
		t.Fatalf("expected unknown user to be not found, got %d", w.Code)
	}

	w := s.do(t, http.MethodDelete, rolesPath+"?role="+settings.RoleTechSupport, s.adminToken, nil)
	if w.Code != http.StatusOK || len(decode(t, w)["roles"].([]any)) != 1 {
		t.Fatalf("remove role: %d %s", w.Code, w.Body.String())
	}
	if w = s.do(t, http.MethodDelete, rolesPath+"?role="+settings.RoleTechSupport, s.adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("expected removing an unassigned role to succeed, got %d", w.Code)
	}
}

func TestDeactivateLocksUserOut(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/deactivate", s.userID), s.adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("deactivate: %d %s", w.Code, w.Body.String())
	}
	user, errFind := s.accounts.FindByID(context.Background(), s.userID)
	if errFind != nil || !user.LockoutEnabled {
		t.Fatalf("expected lockout, got %+v (%v)", user, errFind)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/admin/subscriptions", s.userToken, nil); w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "disabled") {
		t.Fatalf("expected disabled user to be rejected, got %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/activate", s.userID), s.adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("activate: %d", w.Code)
	}
}

func TestGrantResource(t *testing.T) {
	s := newTestServer(t)
	owner, errOwner := s.accounts.Register(context.Background(), "owner1", "owner1@example.com", "secret1")
	if errOwner != nil {
		t.Fatalf("register owner: %v", errOwner)
	}
	res, errCreate := s.resources.Create(context.Background(), resources.CreateParams{
		Type:      models.ResourceTypeVideo,
		OwnerID:   owner.ID,
		Name:      "Clip",
		Extension: "mp4",
		Duration:  12,
		Content:   strings.NewReader("mp4"),
	})
	if errCreate != nil {
		t.Fatalf("create video: %v", errCreate)
	}

	path := fmt.Sprintf("/api/v1/admin/users/%d/resources/%d/grant", s.userID, res.ID)
	w := s.do(t, http.MethodPost, path, s.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("grant: %d %s", w.Code, w.Body.String())
	}
	if row := decode(t, w); row["user_subscription_id"] != nil {
		t.Fatalf("expected a direct grant, got %v", row)
	}
	if w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/resources/9999/grant", s.userID), s.adminToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected missing resource to be not found, got %d", w.Code)
	}
}

func TestSystemMetrics(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/admin/system/metrics", s.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	if sample := decode(t, w); sample["goroutines"].(float64) < 1 {
		t.Fatalf("unexpected sample %v", sample)
	}
}

func TestCheckoutLedger(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	plan, err := s.catalog.Create(ctx, entitlement.PlanParams{
		Name: "Music x2", Type: models.ResourceTypeMusic, MaxResourcesCount: 2, ValidityDays: 30, Price: 5,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	for _, session := range []string{"cs_paid_1", "cs_paid_2"} {
		if _, _, errFulfil := s.entitlements.FulfilCheckout(ctx, session, s.userID, plan.ID); errFulfil != nil {
			t.Fatalf("FulfilCheckout(%s): %v", session, errFulfil)
		}
	}

	if w := s.do(t, http.MethodGet, "/api/v1/admin/checkouts", s.userToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected non-admin to be forbidden, got %d", w.Code)
	}
	w := s.do(t, http.MethodGet, "/api/v1/admin/checkouts?status=rejected", s.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list rejected: %d %s", w.Code, w.Body.String())
	}
	rejected := decode(t, w)["checkouts"].([]any)
	if len(rejected) != 1 || rejected[0].(map[string]any)["session_id"] != "cs_paid_2" {
		t.Fatalf("expected the second session to need a refund, got %v", rejected)
	}
	w = s.do(t, http.MethodGet, "/api/v1/admin/checkouts", s.adminToken, nil)
	if w.Code != http.StatusOK || len(decode(t, w)["checkouts"].([]any)) != 2 {
		t.Fatalf("list all: %d %s", w.Code, w.Body.String())
	}
	if w = s.do(t, http.MethodGet, "/api/v1/admin/checkouts?status=pending", s.adminToken, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown status to be rejected, got %d", w.Code)
	}
}
