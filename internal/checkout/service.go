package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/wdir-license-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/wdir-license-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

type paymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutRequest) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

// Service opens license purchase sessions and summarizes finished ones for
// the confirmation page.
type Service interface {
	CreateSession(ctx context.Context, input PurchaseInput) (*Session, error)
	GetSummary(ctx context.Context, sessionID string) (*Summary, error)
}

// PurchaseInput is what the buyer fills in before paying. The fields become
// the license once payment completes.
type PurchaseInput struct {
	Email                string
	CompanyName          string
	CompanyPhone         string
	CompanyLicenseNumber string
	InspectorName        string
	InspectorLicense     string
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Summary struct {
	Email         string `json:"email"`
	CompanyName   string `json:"company_name"`
	InspectorName string `json:"inspector_name"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
}

// URLs are absolute return targets handed to the payment page.
type URLs struct {
	Success string
	Cancel  string
}

type service struct {
	gateway paymentGateway
	urls    URLs
}

// NewService builds a checkout service. baseURL is joined with the success
// and cancel paths.
func NewService(gateway paymentGateway, baseURL, successPath, cancelPath string) (Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	return &service{
		gateway: gateway,
		urls: URLs{
			Success: baseURL + ensureLeadingSlash(successPath),
			Cancel:  baseURL + ensureLeadingSlash(cancelPath),
		},
	}, nil
}

func ensureLeadingSlash(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func (s *service) CreateSession(ctx context.Context, input PurchaseInput) (*Session, error) {
	fields := map[string]string{
		pkgstripe.MetaEmail:            strings.ToLower(strings.TrimSpace(input.Email)),
		pkgstripe.MetaCompanyName:      strings.TrimSpace(input.CompanyName),
		pkgstripe.MetaInspectorName:    strings.TrimSpace(input.InspectorName),
		pkgstripe.MetaInspectorLicense: strings.TrimSpace(input.InspectorLicense),
	}
	var missing []string
	for _, name := range []string{pkgstripe.MetaEmail, pkgstripe.MetaCompanyName, pkgstripe.MetaInspectorName, pkgstripe.MetaInspectorLicense} {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}

	metadata := map[string]string{
		pkgstripe.MetaProductType:          enums.ProductTypeLicense,
		pkgstripe.MetaCompanyPhone:         strings.TrimSpace(input.CompanyPhone),
		pkgstripe.MetaCompanyLicenseNumber: strings.TrimSpace(input.CompanyLicenseNumber),
	}
	for k, v := range fields {
		metadata[k] = v
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, pkgstripe.CheckoutRequest{
		CustomerEmail: fields[pkgstripe.MetaEmail],
		SuccessURL:    s.urls.Success,
		CancelURL:     s.urls.Cancel,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to create checkout session")
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (s *service) GetSummary(ctx context.Context, sessionID string) (*Summary, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to retrieve checkout session")
	}
	if sess.Metadata[pkgstripe.MetaProductType] != enums.ProductTypeLicense {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}

	return &Summary{
		Email:         sess.Metadata[pkgstripe.MetaEmail],
		CompanyName:   sess.Metadata[pkgstripe.MetaCompanyName],
		InspectorName: sess.Metadata[pkgstripe.MetaInspectorName],
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		PaymentStatus: string(sess.PaymentStatus),
	}, nil
}
