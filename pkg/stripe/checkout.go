package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

// Metadata keys written on license checkout sessions and read back by the
// webhook handler.
const (
	MetaProductType          = "product_type"
	MetaEmail                = "email"
	MetaCompanyName          = "company_name"
	MetaCompanyPhone         = "company_phone"
	MetaCompanyLicenseNumber = "company_license_number"
	MetaInspectorName        = "inspector_name"
	MetaInspectorLicense     = "inspector_license"
)

// CheckoutRequest carries what the purchase form collected.
type CheckoutRequest struct {
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

var errCheckoutEmailRequired = errors.New("checkout customer email is required")

// CreateCheckoutSession opens a one-off payment session for the license product.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if strings.TrimSpace(req.CustomerEmail) == "" {
		return nil, errCheckoutEmailRequired
	}

	params := newCheckoutParams(c.product, req)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sess, nil
}

// GetCheckoutSession loads a checkout session by id.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errors.New("stripe client not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("checkout session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := session.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return sess, nil
}

func newCheckoutParams(product Product, req CheckoutRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(strings.ToLower(strings.TrimSpace(req.CustomerEmail))),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(product.Currency),
					UnitAmount: stripe.Int64(product.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(product.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}
