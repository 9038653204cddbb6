package payment

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/store"
)

type ledgerFixture struct {
	store *store.Store
	now   time.Time
	ent   *entitlement.Service
	svc   *Service
	user  models.User
	plan  models.Subscription
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "payment-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	f := &ledgerFixture{store: store.New(conn), now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.ent = entitlement.NewService(f.store, func() time.Time { return f.now })
	catalog := entitlement.NewCatalog(f.store)

	f.user = models.User{Username: "buyer1", NormalizedUsername: "BUYER1", Email: "buyer1@example.com", NormalizedEmail: "BUYER1@EXAMPLE.COM", Password: "hash"}
	if errInsert := f.store.InsertUser(context.Background(), &f.user); errInsert != nil {
		t.Fatalf("insert user: %v", errInsert)
	}
	f.plan, err = catalog.Create(context.Background(), entitlement.PlanParams{
		Name:              "Day pass",
		Type:              models.ResourceTypeImage,
		MaxResourcesCount: 3,
		ValidityDays:      1,
		Price:             2,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	f.svc = NewService(Config{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}, catalog, f.ent)
	return f
}

func (f *ledgerFixture) deliver(t *testing.T, sessionID string) {
	t.Helper()
	payload, header := signedSessionEvent(t, sessionID, "checkout.session.completed", "paid", strconv.FormatUint(f.user.ID, 10), strconv.FormatUint(f.plan.ID, 10))
	if err := f.svc.HandleWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("deliver %s: %v", sessionID, err)
	}
}

func TestRedeliveredCheckoutSubscribesOnce(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.deliver(t, "cs_once")
	f.deliver(t, "cs_once")
	f.now = f.now.Add(72 * time.Hour)
	f.deliver(t, "cs_once")

	purchases, err := f.ent.Subscriptions(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(purchases) != 1 {
		t.Fatalf("expected one purchase for one paid session, got %d", len(purchases))
	}
	checkouts, err := f.ent.Checkouts(ctx, models.CheckoutFulfilled)
	if err != nil {
		t.Fatalf("Checkouts: %v", err)
	}
	if len(checkouts) != 1 || checkouts[0].UserSubscriptionID == nil || *checkouts[0].UserSubscriptionID != purchases[0].ID {
		t.Fatalf("unexpected checkout records %+v", checkouts)
	}
}

func TestPaidCheckoutForActiveSubscriberIsRecordedAsRejected(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.deliver(t, "cs_first")
	if _, err := f.svc.CreateCheckout(ctx, f.user.ID, f.plan.ID); !errors.Is(err, apperr.ErrUserAlreadySubscribed) {
		t.Fatalf("expected checkout to be refused while subscribed, got %v", err)
	}
	f.deliver(t, "cs_second")

	rejected, err := f.ent.Checkouts(ctx, models.CheckoutRejected)
	if err != nil {
		t.Fatalf("Checkouts: %v", err)
	}
	if len(rejected) != 1 || rejected[0].SessionID != "cs_second" || rejected[0].UserSubscriptionID != nil || rejected[0].Reason == "" {
		t.Fatalf("expected the second session to be recorded as rejected, got %+v", rejected)
	}
	purchases, _ := f.ent.Subscriptions(ctx, f.user.ID)
	if len(purchases) != 1 {
		t.Fatalf("expected the rejected session to leave one purchase, got %d", len(purchases))
	}
}
