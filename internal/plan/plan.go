// Package plan gates document generation on submission completeness and
// assembles the rendering model for a client.
package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"planforge/api/internal/forms"
	"planforge/api/internal/store"
)

// Store is the slice of the submission store this package needs.
type Store interface {
	ListSubmissions(ctx context.Context, email string, formIDs []string) ([]store.Submission, error)
}

// RequiredForm reports the presence of one manifest entry for a client.
type RequiredForm struct {
	FormID  string `json:"formId"`
	Key     string `json:"key"`
	Title   string `json:"title"`
	Present bool   `json:"present"`
}

// Status is the completeness table for one client identity.
type Status struct {
	Email           string         `json:"email"`
	Required        []RequiredForm `json:"required"`
	ReadyToGenerate bool           `json:"readyToGenerate"`
}

// IncompleteError lists the manifest forms a client has not submitted.
// It is a gating state, not an internal failure.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("missing required forms: %s", strings.Join(e.Missing, ", "))
}

// Model is the flat rendering model handed to the document renderer.
// Built fresh on every generation request, never persisted.
type Model struct {
	// Sections maps each manifest key to that form's raw payload.
	Sections    map[string]forms.Payload
	CompanyName string
	LogoURL     string
	GeneratedOn time.Time
}

// Evaluate recomputes the completeness table from the current store
// snapshot. No caching: forms can arrive at any time and a stale answer
// would block legitimate generation.
func Evaluate(ctx context.Context, st Store, email string, manifest forms.Manifest) (Status, error) {
	email = forms.NormalizeIdentity(email)
	rows, err := st.ListSubmissions(ctx, email, manifest.IDs())
	if err != nil {
		return Status{}, fmt.Errorf("list submissions: %w", err)
	}
	required, _ := presence(rows, manifest)

	ready := true
	for _, r := range required {
		ready = ready && r.Present
	}
	return Status{Email: email, Required: required, ReadyToGenerate: ready}, nil
}

// Build fetches the required submissions and assembles the rendering
// model. It shares the presence computation with Evaluate so the two can
// never disagree about readiness.
func Build(ctx context.Context, st Store, email string, manifest forms.Manifest) (Model, error) {
	email = forms.NormalizeIdentity(email)
	if email == "" {
		return Model{}, fmt.Errorf("missing client identity")
	}

	rows, err := st.ListSubmissions(ctx, email, manifest.IDs())
	if err != nil {
		return Model{}, fmt.Errorf("list submissions: %w", err)
	}

	required, byID := presence(rows, manifest)
	var missing []string
	for _, r := range required {
		if !r.Present {
			missing = append(missing, r.FormID)
		}
	}
	if len(missing) > 0 {
		return Model{}, &IncompleteError{Missing: missing}
	}

	model := Model{
		Sections:    make(map[string]forms.Payload, len(manifest)),
		GeneratedOn: time.Now(),
	}
	for _, def := range manifest {
		model.Sections[def.Key] = byID[def.ID].Payload
	}

	// The final form's ingestion path is the only one that persists a
	// logo, so the logo must be read from that specific submission.
	final := byID[forms.FinalFormID]
	if final.CompanyLogoURL != nil {
		model.LogoURL = *final.CompanyLogoURL
	}
	model.CompanyName = resolveCompanyName(byID, manifest)

	return model, nil
}

// presence marks each manifest entry present iff a submission row exists
// for its form id, and indexes the rows by form id.
func presence(rows []store.Submission, manifest forms.Manifest) ([]RequiredForm, map[string]store.Submission) {
	byID := make(map[string]store.Submission, len(rows))
	for _, row := range rows {
		byID[row.FormID] = row
	}

	required := make([]RequiredForm, len(manifest))
	for i, def := range manifest {
		_, present := byID[def.ID]
		required[i] = RequiredForm{FormID: def.ID, Key: def.Key, Title: def.Title, Present: present}
	}
	return required, byID
}

// ResolveCompanyName applies the company-name rule to a set of rows.
func ResolveCompanyName(rows []store.Submission, manifest forms.Manifest) string {
	_, byID := presence(rows, manifest)
	return resolveCompanyName(byID, manifest)
}

// resolveCompanyName prefers the persisted company_name column over a
// CompanyName answer inside any payload; first match in manifest order wins.
func resolveCompanyName(byID map[string]store.Submission, manifest forms.Manifest) string {
	for _, def := range manifest {
		sub, ok := byID[def.ID]
		if !ok {
			continue
		}
		if sub.CompanyName != nil && strings.TrimSpace(*sub.CompanyName) != "" {
			return strings.TrimSpace(*sub.CompanyName)
		}
	}
	for _, def := range manifest {
		sub, ok := byID[def.ID]
		if !ok {
			continue
		}
		if name := sub.Payload.CompanyName(); name != "" {
			return name
		}
	}
	return ""
}
