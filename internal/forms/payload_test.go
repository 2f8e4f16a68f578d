package forms

import (
	"testing"
)

func TestStringAt(t *testing.T) {
	p := Payload{
		"Form": map[string]any{"Id": "24", "Name": "Final Step"},
		"Name": map[string]any{"First": "Ada"},
	}

	if got := p.StringAt("Form", "Id"); got != "24" {
		t.Errorf("StringAt(Form, Id) = %q, want %q", got, "24")
	}
	if got := p.StringAt("Name", "Last"); got != "" {
		t.Errorf("StringAt(Name, Last) = %q, want empty", got)
	}
	if got := p.StringAt("Form", "Id", "Deeper"); got != "" {
		t.Errorf("StringAt past a leaf = %q, want empty", got)
	}
}

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Client@Example.COM", "client@example.com"},
		{"  client@example.com  ", "client@example.com"},
		{"mailto:Client@Example.com", "client@example.com"},
		{"MAILTO: client@example.com", "client@example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeIdentity(tt.input); got != tt.expected {
			t.Errorf("NormalizeIdentity(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseTimeLenient(t *testing.T) {
	if ParseTime("not-a-date") != nil {
		t.Error("expected nil for unparsable date")
	}
	if ParseTime("") != nil {
		t.Error("expected nil for empty date")
	}
	parsed := ParseTime("2025-12-19")
	if parsed == nil {
		t.Fatal("expected 2025-12-19 to parse")
	}
	if parsed.Year() != 2025 || parsed.Day() != 19 {
		t.Errorf("unexpected parsed date: %v", parsed)
	}
	if ParseTime("2025-12-19T10:30:00Z") == nil {
		t.Error("expected RFC3339 to parse")
	}
}

func TestLogoFileShapes(t *testing.T) {
	tests := []struct {
		name     string
		payload  Payload
		wantURL  string
		wantName string
		wantOK   bool
	}{
		{
			name: "object",
			payload: Payload{"CompanyLogo": map[string]any{
				"File": "https://upstream/files/1", "Name": "logo.png",
			}},
			wantURL: "https://upstream/files/1", wantName: "logo.png", wantOK: true,
		},
		{
			name: "array of objects",
			payload: Payload{"CompanyLogo": []any{
				map[string]any{"File": "https://upstream/files/2"},
			}},
			wantURL: "https://upstream/files/2", wantOK: true,
		},
		{
			name:    "bare url",
			payload: Payload{"CompanyLogo": "https://upstream/files/3"},
			wantURL: "https://upstream/files/3", wantOK: true,
		},
		{name: "absent", payload: Payload{}},
		{name: "empty array", payload: Payload{"CompanyLogo": []any{}}},
		{name: "empty file", payload: Payload{"CompanyLogo": map[string]any{"File": " "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, name, ok := tt.payload.LogoFile()
			if ok != tt.wantOK || url != tt.wantURL || name != tt.wantName {
				t.Errorf("LogoFile() = (%q, %q, %v), want (%q, %q, %v)",
					url, name, ok, tt.wantURL, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestManifestReferencesFinalForm(t *testing.T) {
	def, ok := BusinessPlan.ByID(FinalFormID)
	if !ok {
		t.Fatalf("manifest has no entry for final form %s", FinalFormID)
	}
	if def.Key != "final" {
		t.Errorf("final form key = %q, want %q", def.Key, "final")
	}
	if len(BusinessPlan.IDs()) != 9 {
		t.Errorf("manifest has %d entries, want 9", len(BusinessPlan.IDs()))
	}
}
