// Package store persists form submissions in Postgres, keyed by
// (form id, client identity) with idempotent upsert semantics.
package store

import (
	"time"

	"planforge/api/internal/forms"
)

// Submission is one stored form submission. At most one row exists per
// (FormID, UserEmail) pair; re-submission replaces the row.
//
// EntryCreatedAt and EntryUpdatedAt are the upstream sender's timestamps
// and may be absent; CreatedAt and UpdatedAt are this table's own.
type Submission struct {
	FormID         string
	UserEmail      string
	FormTitle      *string
	FirstName      *string
	LastName       *string
	CompanyName    *string
	EntryCreatedAt *time.Time
	EntryUpdatedAt *time.Time
	Payload        forms.Payload
	// CompanyLogoURL is only populated for the final form and survives
	// re-submissions that carry no new logo.
	CompanyLogoURL *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClientHit is one result of the admin client search.
type ClientHit struct {
	UserEmail   string `json:"email"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Forms       int    `json:"forms"`
}
