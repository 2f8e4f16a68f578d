// Package ingest turns raw webhook payloads into stored form submissions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"planforge/api/internal/blob"
	"planforge/api/internal/forms"
	"planforge/api/internal/store"
)

var (
	// ErrMalformedSubmission marks payloads missing the form identifier
	// or client identity. The whole event is rejected; nothing is stored.
	ErrMalformedSubmission = errors.New("malformed submission")
	// ErrAssetPersist marks a failed logo download or object-store write.
	// It fails the whole ingestion so the webhook sender retries the event.
	ErrAssetPersist = errors.New("asset persist failed")
)

// maxLogoBytes caps the upstream logo download.
const maxLogoBytes = 8 << 20

type submissionStore interface {
	UpsertSubmission(ctx context.Context, sub store.Submission) error
}

// Normalizer validates webhook payloads, persists embedded logo assets
// and upserts the resulting submission.
type Normalizer struct {
	store  submissionStore
	blobs  blob.Store
	client *http.Client
	now    func() time.Time
}

func New(st submissionStore, blobs blob.Store) *Normalizer {
	return &Normalizer{
		store:  st,
		blobs:  blobs,
		client: &http.Client{Timeout: 20 * time.Second},
		now:    time.Now,
	}
}

// Normalize extracts the canonical submission record from a raw payload.
// It has no side effects. Missing form id or identity fails with
// ErrMalformedSubmission; unparsable timestamps degrade to absent.
func Normalize(payload forms.Payload) (store.Submission, error) {
	formID := payload.StringAt("Form", "Id")
	if formID == "" {
		return store.Submission{}, fmt.Errorf("%w: missing Form.Id", ErrMalformedSubmission)
	}
	identity := payload.Identity()
	if identity == "" {
		return store.Submission{}, fmt.Errorf("%w: missing Email", ErrMalformedSubmission)
	}

	sub := store.Submission{
		FormID:         formID,
		UserEmail:      identity,
		FormTitle:      optional(payload.StringAt("Form", "Name")),
		FirstName:      optional(payload.StringAt("Name", "First")),
		LastName:       optional(payload.StringAt("Name", "Last")),
		CompanyName:    optional(payload.CompanyName()),
		EntryCreatedAt: payload.TimeAt("Entry", "DateCreated"),
		EntryUpdatedAt: payload.TimeAt("Entry", "DateUpdated"),
		Payload:        payload,
	}
	return sub, nil
}

// Ingest normalizes the payload and stores it. When the submission is the
// final form and embeds a logo upload, the logo is fetched from its
// time-limited upstream URL and persisted to the object store before the
// row is written, so a stored submission never references a logo that has
// not landed. Acknowledgement therefore implies the asset is durable.
func (n *Normalizer) Ingest(ctx context.Context, payload forms.Payload) error {
	sub, err := Normalize(payload)
	if err != nil {
		return err
	}

	if sub.FormID == forms.FinalFormID {
		if fileURL, hint, ok := payload.LogoFile(); ok {
			url, err := n.persistLogo(ctx, sub.UserEmail, sub.FormID, fileURL, hint)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrAssetPersist, err)
			}
			sub.CompanyLogoURL = &url
		}
	}

	if err := n.store.UpsertSubmission(ctx, sub); err != nil {
		return fmt.Errorf("store submission: %w", err)
	}
	return nil
}

// persistLogo downloads the upstream file and writes it to the object
// store under a path namespaced by form and identity.
func (n *Normalizer) persistLogo(ctx context.Context, identity, formID, fileURL, hint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("build logo request: %w", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch logo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch logo: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
	if err != nil {
		return "", fmt.Errorf("read logo body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := safeFilename(hint)
	if name == "" {
		name = "company-logo"
	}
	path := fmt.Sprintf("logos/%s/%s/%d-%s", formID, safeFilename(identity), n.now().Unix(), name)

	url, err := n.blobs.Put(ctx, path, data, contentType)
	if err != nil {
		return "", fmt.Errorf("store logo: %w", err)
	}
	return url, nil
}

// safeFilename keeps the characters that are unambiguous in object paths
// and replaces the rest with underscores.
func safeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '@', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
