package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/wdir-license-backend/api/responses"
	stripewebhook "github.com/angelmondragon/wdir-license-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const maxStripePayloadBytes = 65536

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type StripeEventGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookAck struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// StripeWebhook verifies and dispatches Stripe payment events. Events whose
// signature cannot be verified are rejected before anything is recorded.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard StripeEventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStripePayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"stripe_event_id":   event.ID,
				"stripe_event_type": string(event.Type),
			})
		}

		state, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		switch state {
		case stripewebhook.ClaimDone:
			if logg != nil {
				logg.Info(ctx, "stripe.event.duplicate")
			}
			responses.WriteSuccess(w, webhookAck{Received: true, Duplicate: true})
			return
		case stripewebhook.ClaimInFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := guard.Release(ctx, event.ID); relErr != nil && logg != nil {
				logg.Error(ctx, "stripe.event.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(ctx, event.ID); err != nil && logg != nil {
			logg.Error(ctx, "stripe.event.complete_failed", err)
		}

		if logg != nil {
			logg.Info(ctx, "stripe.event.processed")
		}
		responses.WriteSuccess(w, webhookAck{Received: true})
	}
}
