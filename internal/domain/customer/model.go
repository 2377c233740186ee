// Package customer provides the Customer ledger entity and its addresses.
// Customers mirror the platform's customer resource over the resource API.
package customer

import (
	"context"
	"regexp"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
)

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Customer represents a buyer mirrored to the platform.
type Customer struct {
	entity.BaseRecord

	Email     string  `db:"email" json:"email"`
	FirstName string  `db:"first_name" json:"firstName"`
	LastName  string  `db:"last_name" json:"lastName"`
	Phone     *string `db:"phone" json:"phone,omitempty"`

	// Tags is a comma-separated label list, pushed verbatim.
	Tags *string `db:"tags" json:"tags,omitempty"`

	// AcceptsMarketing mirrors the platform's consent flag.
	AcceptsMarketing bool `db:"accepts_marketing" json:"acceptsMarketing"`

	// Note is internal only and never pushed.
	Note *string `db:"note" json:"note,omitempty"`
}

// NewCustomer creates a locally authored customer, dirty from birth.
func NewCustomer(email, firstName, lastName string) *Customer {
	return &Customer{
		BaseRecord: entity.NewBaseRecord(),
		Email:      email,
		FirstName:  firstName,
		LastName:   lastName,
	}
}

// Validate implements entity.Validatable.
func (c *Customer) Validate(_ context.Context) error {
	if c.Email == "" {
		return apperror.NewValidation("email is required").
			WithDetail("field", "email")
	}
	if !emailRE.MatchString(c.Email) {
		return apperror.NewValidation("invalid email format").
			WithDetail("field", "email")
	}
	if c.FirstName == "" && c.LastName == "" {
		return apperror.NewValidation("at least one of first name or last name is required").
			WithDetail("field", "firstName")
	}
	return nil
}

// Address is a customer's postal address. Addresses sync as their own
// records: the platform nests them under the owning customer, so an address
// push requires the customer's issued remote id.
type Address struct {
	entity.BaseRecord

	CustomerID id.ID `db:"customer_id" json:"customerId"`

	Address1   string  `db:"address1" json:"address1"`
	Address2   *string `db:"address2" json:"address2,omitempty"`
	City       string  `db:"city" json:"city"`
	Province   *string `db:"province" json:"province,omitempty"`
	Country    string  `db:"country" json:"country"`
	Zip        string  `db:"zip" json:"zip"`
	Phone      *string `db:"phone" json:"phone,omitempty"`
	IsDefault  bool    `db:"is_default" json:"isDefault"`

	// Latitude and Longitude are computed by a local geocoding job. They are
	// not push-relevant: the platform owns its own geocoding.
	Latitude  *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64 `db:"longitude" json:"longitude,omitempty"`
}

// NewAddress creates a locally authored address for a customer.
func NewAddress(customerID id.ID, address1, city, country, zip string) *Address {
	return &Address{
		BaseRecord: entity.NewBaseRecord(),
		CustomerID: customerID,
		Address1:   address1,
		City:       city,
		Country:    country,
		Zip:        zip,
	}
}

// Validate implements entity.Validatable.
func (a *Address) Validate(_ context.Context) error {
	if id.IsNil(a.CustomerID) {
		return apperror.NewValidation("customer id is required").
			WithDetail("field", "customerId")
	}
	if a.Address1 == "" {
		return apperror.NewValidation("address line 1 is required").
			WithDetail("field", "address1")
	}
	if a.City == "" {
		return apperror.NewValidation("city is required").
			WithDetail("field", "city")
	}
	if a.Country == "" {
		return apperror.NewValidation("country is required").
			WithDetail("field", "country")
	}
	return nil
}
