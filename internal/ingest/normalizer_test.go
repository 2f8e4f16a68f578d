package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"planforge/api/internal/forms"
	"planforge/api/internal/store"
)

type fakeStore struct {
	upserts []store.Submission
	err     error
}

func (f *fakeStore) UpsertSubmission(_ context.Context, sub store.Submission) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, sub)
	return nil
}

type fakeBlobs struct {
	paths []string
	data  [][]byte
	err   error
}

func (f *fakeBlobs) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	f.data = append(f.data, data)
	return "https://blobs.example.com/planforge-assets/" + path, nil
}

func finalPayload(logoURL string) forms.Payload {
	p := forms.Payload{
		"Form":  map[string]any{"Id": forms.FinalFormID, "Name": "Final Step - Reflections and Summary"},
		"Name":  map[string]any{"First": "Ada", "Last": "Lovelace"},
		"Email": "mailto:Client@Example.com",
		"Entry": map[string]any{
			"DateCreated": "2025-12-01T09:00:00Z",
			"DateUpdated": "garbage",
		},
		"CompanyName": "Acme Analytical",
	}
	if logoURL != "" {
		p["CompanyLogo"] = map[string]any{"File": logoURL, "Name": "logo.png"}
	}
	return p
}

func TestNormalizeExtractsIdentityAndTimestamps(t *testing.T) {
	sub, err := Normalize(finalPayload(""))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if sub.UserEmail != "client@example.com" {
		t.Errorf("UserEmail = %q, want normalized identity", sub.UserEmail)
	}
	if sub.FormID != forms.FinalFormID {
		t.Errorf("FormID = %q", sub.FormID)
	}
	if sub.FirstName == nil || *sub.FirstName != "Ada" {
		t.Errorf("FirstName = %v", sub.FirstName)
	}
	if sub.CompanyName == nil || *sub.CompanyName != "Acme Analytical" {
		t.Errorf("CompanyName = %v", sub.CompanyName)
	}
	if sub.EntryCreatedAt == nil {
		t.Error("EntryCreatedAt should parse")
	}
	if sub.EntryUpdatedAt != nil {
		t.Error("unparsable DateUpdated should degrade to nil, not fail")
	}
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		payload forms.Payload
	}{
		{"missing form id", forms.Payload{"Email": "a@b.com"}},
		{"missing email", forms.Payload{"Form": map[string]any{"Id": "8"}}},
		{"empty payload", forms.Payload{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.payload)
			if !errors.Is(err, ErrMalformedSubmission) {
				t.Errorf("Normalize() error = %v, want ErrMalformedSubmission", err)
			}
		})
	}
}

func TestIngestPersistsLogoForFinalForm(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer upstream.Close()

	st := &fakeStore{}
	blobs := &fakeBlobs{}
	n := New(st, blobs)
	n.now = func() time.Time { return time.Unix(1766131200, 0) }

	if err := n.Ingest(context.Background(), finalPayload(upstream.URL+"/files/logo")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(blobs.paths) != 1 {
		t.Fatalf("expected 1 blob write, got %d", len(blobs.paths))
	}
	wantPath := fmt.Sprintf("logos/%s/client@example.com/1766131200-logo.png", forms.FinalFormID)
	if blobs.paths[0] != wantPath {
		t.Errorf("blob path = %q, want %q", blobs.paths[0], wantPath)
	}
	if string(blobs.data[0]) != "png-bytes" {
		t.Errorf("blob data = %q", blobs.data[0])
	}

	if len(st.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(st.upserts))
	}
	sub := st.upserts[0]
	if sub.CompanyLogoURL == nil || !strings.HasSuffix(*sub.CompanyLogoURL, wantPath) {
		t.Errorf("CompanyLogoURL = %v, want suffix %q", sub.CompanyLogoURL, wantPath)
	}
}

func TestIngestWithoutLogoLeavesURLNil(t *testing.T) {
	st := &fakeStore{}
	n := New(st, &fakeBlobs{})

	if err := n.Ingest(context.Background(), finalPayload("")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if st.upserts[0].CompanyLogoURL != nil {
		t.Error("re-submission without a logo must not carry a logo URL")
	}
}

func TestIngestSkipsLogoForNonFinalForm(t *testing.T) {
	st := &fakeStore{}
	blobs := &fakeBlobs{}
	n := New(st, blobs)

	payload := forms.Payload{
		"Form":        map[string]any{"Id": "12"},
		"Email":       "client@example.com",
		"CompanyLogo": map[string]any{"File": "https://upstream/file"},
	}
	if err := n.Ingest(context.Background(), payload); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(blobs.paths) != 0 {
		t.Error("logo persistence is reserved for the final form")
	}
}

func TestIngestFailsWholeEventWhenLogoFetchFails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	st := &fakeStore{}
	n := New(st, &fakeBlobs{})

	err := n.Ingest(context.Background(), finalPayload(upstream.URL+"/expired"))
	if !errors.Is(err, ErrAssetPersist) {
		t.Fatalf("Ingest() error = %v, want ErrAssetPersist", err)
	}
	if len(st.upserts) != 0 {
		t.Error("no partial write: submission must not be stored when the logo fails")
	}
}
