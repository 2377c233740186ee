package dto

import (
	"shopmirror/internal/domain/customer"
)

// --- Request DTOs ---

// CreateCustomerRequest is the request body for creating a customer.
type CreateCustomerRequest struct {
	Email            string  `json:"email" binding:"required"`
	FirstName        string  `json:"firstName" binding:"required"`
	LastName         string  `json:"lastName" binding:"required"`
	Phone            *string `json:"phone"`
	Tags             *string `json:"tags"`
	AcceptsMarketing bool    `json:"acceptsMarketing"`
	Note             *string `json:"note"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateCustomerRequest) ToEntity() *customer.Customer {
	c := customer.NewCustomer(r.Email, r.FirstName, r.LastName)
	c.Phone = r.Phone
	c.Tags = r.Tags
	c.AcceptsMarketing = r.AcceptsMarketing
	c.Note = r.Note
	return c
}

// UpdateCustomerRequest is the request body for updating a customer.
type UpdateCustomerRequest struct {
	Email            string  `json:"email" binding:"required"`
	FirstName        string  `json:"firstName" binding:"required"`
	LastName         string  `json:"lastName" binding:"required"`
	Phone            *string `json:"phone"`
	Tags             *string `json:"tags"`
	AcceptsMarketing bool    `json:"acceptsMarketing"`
	Note             *string `json:"note"`
	Version          int     `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateCustomerRequest) ApplyTo(c *customer.Customer) {
	c.Email = r.Email
	c.FirstName = r.FirstName
	c.LastName = r.LastName
	c.Phone = r.Phone
	c.Tags = r.Tags
	c.AcceptsMarketing = r.AcceptsMarketing
	c.Note = r.Note
	c.Version = r.Version
}

// SaveAddressRequest is the request body for creating or updating an address.
type SaveAddressRequest struct {
	Address1  string  `json:"address1" binding:"required"`
	Address2  *string `json:"address2"`
	City      string  `json:"city" binding:"required"`
	Province  *string `json:"province"`
	Country   string  `json:"country" binding:"required"`
	Zip       string  `json:"zip" binding:"required"`
	Phone     *string `json:"phone"`
	IsDefault bool    `json:"isDefault"`
}

// --- Response DTOs ---

// CustomerResponse is the response body for a customer.
type CustomerResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Phone            *string    `json:"phone,omitempty"`
	Tags             *string    `json:"tags,omitempty"`
	AcceptsMarketing bool       `json:"acceptsMarketing"`
	Note             *string    `json:"note,omitempty"`
	DeletionMark     bool       `json:"deletionMark"`
	Version          int        `json:"version"`
	Sync             SyncStatus `json:"sync"`
}

// FromCustomer creates response DTO from domain entity.
func FromCustomer(c *customer.Customer) *CustomerResponse {
	return &CustomerResponse{
		ID:               c.ID.String(),
		Email:            c.Email,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		Phone:            c.Phone,
		Tags:             c.Tags,
		AcceptsMarketing: c.AcceptsMarketing,
		Note:             c.Note,
		DeletionMark:     c.DeletionMark,
		Version:          c.Version,
		Sync:             FromSyncMeta(c.Meta()),
	}
}

// AddressResponse is the response body for an address.
type AddressResponse struct {
	ID           string     `json:"id"`
	CustomerID   string     `json:"customerId"`
	Address1     string     `json:"address1"`
	Address2     *string    `json:"address2,omitempty"`
	City         string     `json:"city"`
	Province     *string    `json:"province,omitempty"`
	Country      string     `json:"country"`
	Zip          string     `json:"zip"`
	Phone        *string    `json:"phone,omitempty"`
	IsDefault    bool       `json:"isDefault"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	DeletionMark bool       `json:"deletionMark"`
	Version      int        `json:"version"`
	Sync         SyncStatus `json:"sync"`
}

// FromAddress creates response DTO from domain entity.
func FromAddress(a *customer.Address) *AddressResponse {
	return &AddressResponse{
		ID:           a.ID.String(),
		CustomerID:   a.CustomerID.String(),
		Address1:     a.Address1,
		Address2:     a.Address2,
		City:         a.City,
		Province:     a.Province,
		Country:      a.Country,
		Zip:          a.Zip,
		Phone:        a.Phone,
		IsDefault:    a.IsDefault,
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
		DeletionMark: a.DeletionMark,
		Version:      a.Version,
		Sync:         FromSyncMeta(a.Meta()),
	}
}
