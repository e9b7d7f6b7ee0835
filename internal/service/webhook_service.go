package service

import (
	"context"
	"errors"
	"time"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/reelpostly/repostly/internal/config"
	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"
	"github.com/reelpostly/repostly/internal/pkg/logger"
	"github.com/reelpostly/repostly/internal/pkg/stripepay"
)

// Webhook outcomes.
const (
	WebhookOutcomeCredited = "credited"
	WebhookOutcomeSkipped  = "skipped"
	WebhookOutcomeIgnored  = "ignored"
	WebhookOutcomeDeferred = "deferred"
)

// WebhookResult summarizes what a delivery did.
type WebhookResult struct {
	Outcome     string `json:"outcome"`
	EventID     string `json:"event_id,omitempty"`
	Credits     int64  `json:"credits,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// WebhookService reconciles external payment events into credit grants,
// exactly once per event id. The idempotency marker row is written before
// any balance change; a grant that fails after the marker exists is retried
// by the reconciliation sweep, never re-delivered credits.
type WebhookService struct {
	events  WebhookEventRepository
	credits CreditRepository
	ledger  *CreditService
	cfg     *config.Config
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(events WebhookEventRepository, credits CreditRepository, ledger *CreditService, cfg *config.Config) *WebhookService {
	return &WebhookService{events: events, credits: credits, ledger: ledger, cfg: cfg}
}

// HandleStripeDelivery verifies, records and reconciles one webhook
// delivery. Signature failures are the only fatal outcome; everything after
// the marker insert reports success to the sender so Stripe does not retry
// an event we already own.
func (s *WebhookService) HandleStripeDelivery(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	err := stripepay.VerifySignature(payload, signatureHeader, s.cfg.Stripe.WebhookSecret, s.cfg.StripeTolerance(), time.Now())
	if err != nil {
		if errors.Is(err, stripepay.ErrTimestampTooOld) {
			return nil, infraerrors.BadRequest(ReasonUnauthorized, "signature timestamp outside tolerance").WithCause(err)
		}
		return nil, infraerrors.BadRequest(ReasonUnauthorized, "invalid webhook signature").WithCause(err)
	}

	event := stripepay.ParseEvent(payload)
	if event.ID == "" {
		return nil, infraerrors.BadRequest(ReasonMisconfigured, "event id missing")
	}
	if event.Type != stripepay.EventTypeCheckoutCompleted {
		return &WebhookResult{Outcome: WebhookOutcomeIgnored, EventID: event.ID}, nil
	}
	if event.PaymentStatus != "" && event.PaymentStatus != "paid" {
		logger.Info("webhook ignored, not paid",
			zap.String("event_id", event.ID),
			zap.String("payment_status", event.PaymentStatus))
		return &WebhookResult{Outcome: WebhookOutcomeIgnored, EventID: event.ID}, nil
	}
	if event.OwnerKey == "" {
		return nil, infraerrors.BadRequest(ReasonMisconfigured, "event carries no owner reference")
	}

	credits := event.MetaCredits
	if !event.HasMeta {
		credits = s.ledger.CreditsForAmount(event.AmountTotal)
	}
	if credits < 0 {
		// External metadata can claim anything; negative credit grants never
		// reach the ledger or the purchase stats.
		logger.Warn("negative webhook credits clamped to zero",
			zap.String("event_id", event.ID),
			zap.String("owner_key", event.OwnerKey),
			zap.Int64("credits", credits))
		credits = 0
	}

	marker := &WebhookEvent{
		EventID:     event.ID,
		Provider:    "stripe",
		EventType:   event.Type,
		OwnerKey:    event.OwnerKey,
		Credits:     credits,
		AmountGross: event.AmountTotal,
		AmountNet:   event.AmountSub,
		PayloadJSON: string(redactPayload(payload)),
		ProcessedAt: time.Now(),
	}
	created, err := s.events.CreateIfAbsent(ctx, marker)
	if err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "record webhook event").WithCause(err)
	}
	if !created {
		logger.Info("webhook replay skipped", zap.String("event_id", event.ID))
		return &WebhookResult{Outcome: WebhookOutcomeSkipped, EventID: event.ID}, nil
	}

	// Purchase statistics accumulate on first sight of the event, whether or
	// not the grant below succeeds; the sweep only retries the grant.
	if err := s.credits.RecordPurchaseStats(ctx, event.OwnerKey, event.AmountTotal, event.AmountSub, credits); err != nil {
		logger.Error("record purchase stats failed",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}

	result, err := s.reconcile(ctx, marker)
	if err != nil {
		// Marker exists; the sweep retries. The sender sees success.
		logger.Error("webhook grant deferred",
			zap.String("event_id", event.ID),
			zap.String("owner_key", event.OwnerKey),
			zap.Error(err))
		return &WebhookResult{Outcome: WebhookOutcomeDeferred, EventID: event.ID, Credits: credits}, nil
	}
	return result, nil
}

// redactPayload strips customer PII from a delivery before it is stored on
// the marker row. The marker only needs the fields the sweep replays from.
func redactPayload(payload []byte) []byte {
	for _, path := range []string{
		"data.object.customer_details",
		"data.object.customer_email",
		"data.object.shipping_details",
	} {
		if out, err := sjson.DeleteBytes(payload, path); err == nil {
			payload = out
		}
	}
	return payload
}

// Reconcile completes the grant for a marker whose credits have not landed
// yet. Used on first delivery and by the sweep.
func (s *WebhookService) Reconcile(ctx context.Context, marker *WebhookEvent) (*WebhookResult, error) {
	if marker.CreditedAt != nil {
		return &WebhookResult{Outcome: WebhookOutcomeSkipped, EventID: marker.EventID}, nil
	}
	return s.reconcile(ctx, marker)
}

func (s *WebhookService) reconcile(ctx context.Context, marker *WebhookEvent) (*WebhookResult, error) {
	grant, err := s.ledger.Grant(ctx, marker.OwnerKey, marker.Credits, marker.EventID)
	if err != nil {
		if markErr := s.events.MarkFailed(ctx, marker.EventID, err.Error()); markErr != nil {
			logger.Error("mark webhook failed", zap.String("event_id", marker.EventID), zap.Error(markErr))
		}
		return nil, err
	}
	if err := s.events.MarkCredited(ctx, marker.EventID, grant.AccountID); err != nil {
		// Credits landed but the marker update failed; the sweep would
		// re-grant, so this is the one place a loud log matters more than an
		// error return.
		logger.Error("mark webhook credited failed",
			zap.String("event_id", marker.EventID),
			zap.Error(err))
	}
	return &WebhookResult{
		Outcome:     WebhookOutcomeCredited,
		EventID:     marker.EventID,
		Credits:     marker.Credits,
		Destination: grant.Destination,
	}, nil
}
