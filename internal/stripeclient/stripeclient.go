// Package stripeclient wraps the pieces of the Stripe API this service
// calls outside the webhook path.
package stripeclient

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
)

type Client struct{}

func New(apiKey string) *Client {
	stripe.Key = apiKey
	return &Client{}
}

// EmailForCustomer fetches the customer's current email address. An
// empty result is valid: Stripe customers are not required to carry
// one.
func (c *Client) EmailForCustomer(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	}
	cus, err := customer.Get(customerID, params)
	if err != nil {
		return "", fmt.Errorf("fetching customer %s: %w", customerID, err)
	}
	return cus.Email, nil
}
