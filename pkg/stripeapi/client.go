package stripeapi

import (
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Client is the slice of the Stripe API this backend calls. Handlers take it
// as a constructor argument so tests can swap in a fake instead of setting
// the package-global stripe.Key.
type Client interface {
	CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetPaymentMethod(id string) (*stripe.PaymentMethod, error)
}

type apiClient struct {
	api *client.API
}

// New builds a Client bound to the given secret key.
func New(secretKey string) Client {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &apiClient{api: api}
}

func (c *apiClient) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.New(params)
}

func (c *apiClient) GetPaymentMethod(id string) (*stripe.PaymentMethod, error) {
	return c.api.PaymentMethods.Get(id, nil)
}
