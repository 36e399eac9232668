package customer

import "errors"

var ErrInvalidCustomer = errors.New("customer user_id and email are required")

// Customer identifies the buyer on an order.
type Customer struct {
	UserID string `json:"user_id" bson:"user_id"`
	Email  string `json:"email" bson:"email"`
}

// Validate checks that the required identity fields are present.
func (c Customer) Validate() error {
	if c.UserID == "" || c.Email == "" {
		return ErrInvalidCustomer
	}

	return nil
}
