// Package payment sells subscription plans through Stripe Checkout.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/settings"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Metadata keys stored on checkout sessions.
const (
	MetadataUserID         = "user_id"
	MetadataSubscriptionID = "subscription_id"
)

// Config holds the Stripe credentials and redirect targets.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// PlanFinder loads catalog plans.
type PlanFinder interface {
	FindByID(ctx context.Context, id uint64) (models.Subscription, error)
}

// Fulfiller applies paid checkout sessions to the entitlement ledger.
type Fulfiller interface {
	HasActiveSubscription(ctx context.Context, userID uint64, t models.ResourceType) (bool, error)
	FulfilCheckout(ctx context.Context, sessionID string, userID, subscriptionID uint64) (models.Checkout, bool, error)
}

// Checkout is a created checkout session.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Service creates checkout sessions and applies completed payments.
type Service struct {
	cfg        Config
	plans      PlanFinder
	fulfiller  Fulfiller
	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewService constructs a Service and sets the process-wide Stripe key.
func NewService(cfg Config, plans PlanFinder, fulfiller Fulfiller) *Service {
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = settings.DefaultCurrency
	}
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &Service{
		cfg:        cfg,
		plans:      plans,
		fulfiller:  fulfiller,
		newSession: session.New,
	}
}

// Enabled reports whether Stripe credentials are configured.
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.SecretKey != ""
}

// CreateCheckout opens a one-time payment session for a plan.
func (s *Service) CreateCheckout(ctx context.Context, userID, subscriptionID uint64) (Checkout, error) {
	if !s.Enabled() {
		return Checkout{}, apperr.Validation("payments are not configured")
	}
	plan, errPlan := s.plans.FindByID(ctx, subscriptionID)
	if errPlan != nil {
		return Checkout{}, errPlan
	}
	if !plan.Active {
		return Checkout{}, apperr.ErrSubscriptionNotFound
	}
	amount := int64(math.Round(plan.Price * 100))
	if amount <= 0 {
		return Checkout{}, apperr.Validation("subscription %d is free and cannot be paid for", plan.ID)
	}
	active, errActive := s.fulfiller.HasActiveSubscription(ctx, userID, plan.Type)
	if errActive != nil {
		return Checkout{}, errActive
	}
	if active {
		return Checkout{}, apperr.ErrUserAlreadySubscribed
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(userID, 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(plan.Name),
						Description: optionalString(plan.Description),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, strconv.FormatUint(userID, 10))
	params.AddMetadata(MetadataSubscriptionID, strconv.FormatUint(plan.ID, 10))

	result, errSession := s.newSession(params)
	if errSession != nil {
		return Checkout{}, fmt.Errorf("payment: create checkout session: %w", errSession)
	}
	return Checkout{SessionID: result.ID, URL: result.URL}, nil
}

// HandleWebhook verifies a Stripe event and applies a paid checkout to the ledger once per session.
// Redelivered sessions and events other than completed checkouts are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.cfg.WebhookSecret == "" {
		return apperr.Validation("webhook secret is not configured")
	}
	event, errEvent := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if errEvent != nil {
		return apperr.Wrap(apperr.KindValidation, errEvent, "invalid webhook")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		log.WithField("type", event.Type).Debug("payment: ignoring webhook event")
		return nil
	}

	var checkout stripe.CheckoutSession
	if errUnmarshal := json.Unmarshal(event.Data.Raw, &checkout); errUnmarshal != nil {
		return apperr.Validation("invalid checkout session payload: %v", errUnmarshal)
	}
	if checkout.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.WithField("session", checkout.ID).Info("payment: checkout completed without payment")
		return nil
	}
	userID, errUser := metadataID(checkout.Metadata, MetadataUserID)
	if errUser != nil {
		return errUser
	}
	subscriptionID, errSub := metadataID(checkout.Metadata, MetadataSubscriptionID)
	if errSub != nil {
		return errSub
	}

	fields := log.Fields{"session": checkout.ID, "user_id": userID, "subscription_id": subscriptionID}
	record, recorded, errFulfil := s.fulfiller.FulfilCheckout(ctx, checkout.ID, userID, subscriptionID)
	if errFulfil != nil {
		return errFulfil
	}
	switch {
	case !recorded:
		log.WithFields(fields).Info("payment: checkout already processed")
	case record.Status == models.CheckoutRejected:
		log.WithFields(fields).WithField("reason", record.Reason).Error("payment: paid checkout could not be fulfilled, refund required")
	default:
		entry := log.WithFields(fields)
		if record.UserSubscriptionID != nil {
			entry = entry.WithField("user_subscription_id", *record.UserSubscriptionID)
		}
		entry.Info("payment: checkout fulfilled")
	}
	return nil
}

func metadataID(meta map[string]string, key string) (uint64, error) {
	raw := strings.TrimSpace(meta[key])
	id, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || id == 0 {
		return 0, apperr.Validation("checkout metadata %s is missing or invalid", key)
	}
	return id, nil
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return stripe.String(value)
}
