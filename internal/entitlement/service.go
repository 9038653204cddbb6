package entitlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/collectit/marketplace/internal/apperr"
	dbutil "github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/store"
	log "github.com/sirupsen/logrus"
)

// Service subscribes users to plans and records resource acquisitions.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService constructs a Service. A nil clock uses time.Now.
func NewService(st *store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// SubscribeUser purchases a plan for a user. The user row lock serializes concurrent
// subscribe calls so at most one purchase per resource type is active.
func (s *Service) SubscribeUser(ctx context.Context, userID, subscriptionID uint64) (models.UserSubscription, error) {
	var purchase models.UserSubscription
	errTx := s.store.InTx(ctx, func(tx *store.Store) error {
		if _, errLock := tx.LockUser(ctx, userID); errLock != nil {
			return errLock
		}
		created, errSubscribe := s.subscribe(ctx, tx, userID, subscriptionID, s.clock())
		if errSubscribe != nil {
			return errSubscribe
		}
		purchase = created
		return nil
	})
	if errTx != nil {
		return models.UserSubscription{}, errTx
	}
	log.WithFields(log.Fields{
		"user_id":         userID,
		"subscription_id": subscriptionID,
		"expiry":          purchase.ExpiryDate,
	}).Info("entitlement: user subscribed")
	return purchase, nil
}

// subscribe inserts a purchase inside tx. The caller holds the user row lock.
func (s *Service) subscribe(ctx context.Context, tx *store.Store, userID, subscriptionID uint64, now time.Time) (models.UserSubscription, error) {
	plan, errPlan := tx.FindSubscription(ctx, subscriptionID)
	if errPlan != nil {
		if apperr.Is(errPlan, apperr.KindNotFound) {
			return models.UserSubscription{}, apperr.ErrSubscriptionNotFound
		}
		return models.UserSubscription{}, errPlan
	}
	if !plan.Active {
		return models.UserSubscription{}, apperr.ErrSubscriptionNotFound
	}

	active, errActive := tx.HasActiveSubscription(ctx, userID, plan.Type, now)
	if errActive != nil {
		return models.UserSubscription{}, errActive
	}
	if active {
		return models.UserSubscription{}, apperr.ErrUserAlreadySubscribed
	}

	purchase := models.UserSubscription{
		UserID:         userID,
		SubscriptionID: plan.ID,
		Type:           plan.Type,
		PurchaseDate:   now,
		ExpiryDate:     now.Add(plan.Validity()),
	}
	if errInsert := tx.InsertUserSubscription(ctx, &purchase); errInsert != nil {
		if dbutil.IsUniqueViolation(errInsert) {
			return models.UserSubscription{}, apperr.ErrUserAlreadySubscribed
		}
		return models.UserSubscription{}, errInsert
	}
	return purchase, nil
}

// HasActiveSubscription reports whether the user holds an unexpired purchase for the resource type.
func (s *Service) HasActiveSubscription(ctx context.Context, userID uint64, t models.ResourceType) (bool, error) {
	return s.store.HasActiveSubscription(ctx, userID, t, s.clock())
}

// FulfilCheckout applies a paid checkout session exactly once. The session record and the
// purchase it produces are written in one transaction. A session that was already processed
// returns its record with recorded set to false. A paid session that cannot become a purchase,
// because the plan was withdrawn or the buyer already holds the type, is recorded as rejected.
func (s *Service) FulfilCheckout(ctx context.Context, sessionID string, userID, subscriptionID uint64) (checkout models.Checkout, recorded bool, err error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return models.Checkout{}, false, apperr.Validation("checkout session id is required")
	}
	errTx := s.store.InTx(ctx, func(tx *store.Store) error {
		if _, errLock := tx.LockUser(ctx, userID); errLock != nil {
			return errLock
		}
		existing, errFind := tx.FindCheckout(ctx, sessionID)
		if errFind != nil {
			return errFind
		}
		if existing != nil {
			checkout = *existing
			return nil
		}

		checkout = models.Checkout{
			SessionID:      sessionID,
			UserID:         userID,
			SubscriptionID: subscriptionID,
			Status:         models.CheckoutFulfilled,
		}
		purchase, errSubscribe := s.subscribe(ctx, tx, userID, subscriptionID, s.clock())
		switch {
		case errSubscribe == nil:
			checkout.UserSubscriptionID = &purchase.ID
		case errors.Is(errSubscribe, apperr.ErrUserAlreadySubscribed), errors.Is(errSubscribe, apperr.ErrSubscriptionNotFound):
			checkout.Status = models.CheckoutRejected
			checkout.Reason = errSubscribe.Error()
		default:
			return errSubscribe
		}
		if errInsert := tx.InsertCheckout(ctx, &checkout); errInsert != nil {
			if dbutil.IsUniqueViolation(errInsert) {
				return apperr.Conflict("checkout session %s is being processed", sessionID)
			}
			return errInsert
		}
		recorded = true
		return nil
	})
	if errTx != nil {
		return models.Checkout{}, false, errTx
	}
	return checkout, recorded, nil
}

// Checkouts lists processed checkout sessions, optionally filtered by status.
func (s *Service) Checkouts(ctx context.Context, status string) ([]models.Checkout, error) {
	switch status {
	case "", models.CheckoutFulfilled, models.CheckoutRejected:
	default:
		return nil, apperr.Validation("unknown checkout status %q", status)
	}
	return s.store.ListCheckouts(ctx, status)
}

// IsResourceAcquired reports whether the user holds the resource directly or
// through an active subscription with quota left that admits it.
func (s *Service) IsResourceAcquired(ctx context.Context, userID, resourceID uint64) (bool, error) {
	res, errFind := s.store.FindResource(ctx, "", resourceID)
	if errFind != nil {
		return false, errFind
	}
	existing, errAcq := s.store.FindAcquisition(ctx, userID, resourceID)
	if errAcq != nil {
		return false, errAcq
	}
	if existing != nil {
		return true, nil
	}
	eligible, errEligible := s.eligible(ctx, s.store, userID, res, s.clock())
	if errEligible != nil {
		return false, errEligible
	}
	return len(eligible) > 0, nil
}

// AcquireResource charges the resource to the earliest-expiring eligible subscription.
// Acquiring a resource the user already holds returns the existing row.
func (s *Service) AcquireResource(ctx context.Context, userID, resourceID uint64) (models.AcquiredUserResource, error) {
	var acquired models.AcquiredUserResource
	errTx := s.store.InTx(ctx, func(tx *store.Store) error {
		if _, errLock := tx.LockUser(ctx, userID); errLock != nil {
			return errLock
		}
		res, errFind := tx.FindResource(ctx, "", resourceID)
		if errFind != nil {
			return errFind
		}
		existing, errAcq := tx.FindAcquisition(ctx, userID, resourceID)
		if errAcq != nil {
			return errAcq
		}
		if existing != nil {
			acquired = *existing
			return nil
		}

		now := s.clock()
		eligible, errEligible := s.eligible(ctx, tx, userID, res, now)
		if errEligible != nil {
			return errEligible
		}
		for _, candidate := range eligible {
			if _, errLockSub := tx.LockUserSubscription(ctx, candidate.ID); errLockSub != nil {
				return errLockSub
			}
			used, errCount := tx.CountAcquisitionsUnder(ctx, candidate.ID)
			if errCount != nil {
				return errCount
			}
			if used >= candidate.MaxResourcesCount {
				continue
			}
			subID := candidate.ID
			row, errRecord := record(ctx, tx, userID, resourceID, &subID, now)
			if errRecord != nil {
				return errRecord
			}
			acquired = row
			return nil
		}
		return apperr.ErrNoEligibleSubscription
	})
	if errTx != nil {
		return models.AcquiredUserResource{}, errTx
	}
	return acquired, nil
}

// GrantResource records a direct acquisition that is not charged to any subscription.
func (s *Service) GrantResource(ctx context.Context, userID, resourceID uint64) (models.AcquiredUserResource, error) {
	var acquired models.AcquiredUserResource
	errTx := s.store.InTx(ctx, func(tx *store.Store) error {
		if errUser := tx.UserExists(ctx, userID); errUser != nil {
			return errUser
		}
		if _, errFind := tx.FindResource(ctx, "", resourceID); errFind != nil {
			return errFind
		}
		row, errRecord := record(ctx, tx, userID, resourceID, nil, s.clock())
		if errRecord != nil {
			return errRecord
		}
		acquired = row
		return nil
	})
	if errTx != nil {
		return models.AcquiredUserResource{}, errTx
	}
	return acquired, nil
}

// Subscriptions lists every purchase of a user, newest first.
func (s *Service) Subscriptions(ctx context.Context, userID uint64) ([]models.UserSubscription, error) {
	if errUser := s.store.UserExists(ctx, userID); errUser != nil {
		return nil, errUser
	}
	return s.store.UserSubscriptions(ctx, userID)
}

// ActiveSubscriptions lists the purchases of every type that have not expired.
func (s *Service) ActiveSubscriptions(ctx context.Context, userID uint64) ([]models.ActiveUserSubscription, error) {
	if errUser := s.store.UserExists(ctx, userID); errUser != nil {
		return nil, errUser
	}
	return s.store.ActiveSubscriptions(ctx, userID, "", s.clock())
}

// AcquiredResources lists the resources a user holds.
func (s *Service) AcquiredResources(ctx context.Context, userID uint64) ([]models.AcquiredUserResource, error) {
	if errUser := s.store.UserExists(ctx, userID); errUser != nil {
		return nil, errUser
	}
	return s.store.Acquisitions(ctx, userID)
}

// eligible returns the active subscriptions of the resource type with quota left whose
// plan restriction admits the resource, earliest expiry first.
func (s *Service) eligible(ctx context.Context, st *store.Store, userID uint64, res models.Resource, now time.Time) ([]models.ActiveUserSubscription, error) {
	active, errActive := st.ActiveSubscriptions(ctx, userID, res.Type, now)
	if errActive != nil {
		return nil, errActive
	}
	plans := map[uint64]*Restriction{}
	out := make([]models.ActiveUserSubscription, 0, len(active))
	for _, sub := range active {
		if sub.Remaining() == 0 {
			continue
		}
		restriction, cached := plans[sub.SubscriptionID]
		if !cached {
			plan, errPlan := st.FindSubscription(ctx, sub.SubscriptionID)
			if errPlan != nil {
				return nil, errPlan
			}
			parsed, errParse := ParseRestriction(plan.Restriction)
			if errParse != nil {
				log.WithError(errParse).WithField("subscription_id", plan.ID).Warn("entitlement: ignoring plan with invalid restriction")
				continue
			}
			restriction = parsed
			plans[sub.SubscriptionID] = restriction
		}
		if restriction.Admits(res, now) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func record(ctx context.Context, tx *store.Store, userID, resourceID uint64, subID *uint64, now time.Time) (models.AcquiredUserResource, error) {
	row := models.AcquiredUserResource{
		UserID:             userID,
		ResourceID:         resourceID,
		UserSubscriptionID: subID,
		AcquiredDate:       now,
	}
	inserted, errInsert := tx.InsertAcquisition(ctx, &row)
	if errInsert != nil {
		return models.AcquiredUserResource{}, errInsert
	}
	if inserted {
		return row, nil
	}
	existing, errFind := tx.FindAcquisition(ctx, userID, resourceID)
	if errFind != nil {
		return models.AcquiredUserResource{}, errFind
	}
	if existing == nil {
		return models.AcquiredUserResource{}, errors.New("entitlement: acquisition vanished after conflict")
	}
	return *existing, nil
}
