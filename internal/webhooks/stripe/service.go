package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/wdir-license-backend/internal/licenses"
	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/wdir-license-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

type provisioner interface {
	ProvisionFromPayment(ctx context.Context, payment licenses.PaymentConfirmation) (*licenses.ProvisionResult, error)
}

type ServiceParams struct {
	Licenses provisioner
	Metrics  *metrics.LicensingMetrics
	Logger   *logger.Logger
}

type Service struct {
	licenses provisioner
	metrics  *metrics.LicensingMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Licenses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "license provisioner required")
	}
	return &Service{
		licenses: params.Licenses,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent provisions a license for paid license checkouts and
// acknowledges every other event without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			s.metrics.WebhookEvent(eventType, "error")
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		outcome, err := s.handleCheckout(ctx, &session)
		if err != nil {
			s.metrics.WebhookEvent(eventType, "error")
			return err
		}
		s.metrics.WebhookEvent(eventType, outcome)
		return nil
	default:
		s.metrics.WebhookEvent(eventType, "ignored")
		return nil
	}
}

func (s *Service) handleCheckout(ctx context.Context, session *stripe.CheckoutSession) (string, error) {
	if session.Metadata[pkgstripe.MetaProductType] != enums.ProductTypeLicense {
		return "ignored", nil
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return "awaiting_payment", nil
	}

	payment := PaymentFromSession(session)
	result, err := s.licenses.ProvisionFromPayment(ctx, payment)
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		// Redelivery carries the same metadata, so the event is acknowledged.
		if s.logg != nil {
			ctx = s.logg.WithField(ctx, "stripe_session_id", payment.SessionID)
			s.logg.Error(ctx, "paid checkout session has incomplete license metadata", err)
		}
		return "invalid_metadata", nil
	}
	if err != nil {
		return "", err
	}

	if s.logg != nil {
		ctx = s.logg.WithLicenseID(ctx, result.License.ID.String())
		ctx = s.logg.WithField(ctx, "stripe_session_id", payment.SessionID)
	}
	if !result.Created {
		if s.logg != nil {
			s.logg.Info(ctx, "checkout session already provisioned")
		}
		return "duplicate", nil
	}
	if s.logg != nil {
		s.logg.Info(ctx, "license provisioned from checkout")
	}
	return "provisioned", nil
}

// PaymentFromSession maps a completed checkout session onto the provisioning input.
func PaymentFromSession(session *stripe.CheckoutSession) licenses.PaymentConfirmation {
	meta := session.Metadata
	payment := licenses.PaymentConfirmation{
		SessionID:            session.ID,
		Email:                strings.TrimSpace(meta[pkgstripe.MetaEmail]),
		CompanyName:          strings.TrimSpace(meta[pkgstripe.MetaCompanyName]),
		CompanyPhone:         strings.TrimSpace(meta[pkgstripe.MetaCompanyPhone]),
		CompanyLicenseNumber: strings.TrimSpace(meta[pkgstripe.MetaCompanyLicenseNumber]),
		InspectorName:        strings.TrimSpace(meta[pkgstripe.MetaInspectorName]),
		InspectorLicense:     strings.TrimSpace(meta[pkgstripe.MetaInspectorLicense]),
	}
	if payment.Email == "" {
		payment.Email = strings.TrimSpace(session.CustomerEmail)
	}
	if session.PaymentIntent != nil {
		payment.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		payment.CustomerID = session.Customer.ID
	}
	return payment
}
