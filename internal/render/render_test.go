package render

import (
	"strings"
	"testing"
	"time"

	"planforge/api/internal/forms"
	"planforge/api/internal/plan"
)

func sampleModel() plan.Model {
	model := plan.Model{
		Sections:    make(map[string]forms.Payload),
		CompanyName: "Acme Analytical",
		LogoURL:     "https://blobs.example.com/planforge-assets/logos/24/client@example.com/1-logo.png",
		GeneratedOn: time.Date(2025, 12, 19, 10, 0, 0, 0, time.UTC),
	}
	for _, def := range forms.BusinessPlan {
		model.Sections[def.Key] = forms.Payload{
			"Form":     map[string]any{"Id": def.ID},
			"Headline": "Answer for " + def.Key,
		}
	}
	model.Sections["swot"]["ThreatRisk"] = "H"
	model.Sections["financial"]["RevenueYearOne"] = "125,000"
	return model
}

func TestRenderContainsModelContent(t *testing.T) {
	html, err := Render(sampleModel())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(html, "Acme Analytical") {
		t.Error("markup missing company name")
	}
	if !strings.Contains(html, "Generated on 19 December 2025") {
		t.Error("markup missing generated-on date")
	}
	if !strings.Contains(html, `src="https://blobs.example.com/planforge-assets/logos/24/client@example.com/1-logo.png"`) {
		t.Error("markup missing logo image")
	}
	for _, def := range forms.BusinessPlan {
		if !strings.Contains(html, def.Title) {
			t.Errorf("markup missing section title %q", def.Title)
		}
	}
	if !strings.Contains(html, "risk high") {
		t.Error("markup missing risk style class for H code")
	}
}

func TestRenderDeterministic(t *testing.T) {
	model := sampleModel()
	first, err := Render(model)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for range 5 {
		again, err := Render(model)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if again != first {
			t.Fatal("same model and template version must produce identical output")
		}
	}
}

func TestRenderWithoutLogoOrCompany(t *testing.T) {
	model := sampleModel()
	model.LogoURL = ""
	model.CompanyName = ""

	html, err := Render(model)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(html, "<img") {
		t.Error("no logo image expected without a logo URL")
	}
	if !strings.Contains(html, "Business Plan") {
		t.Error("fallback title expected")
	}
}

func TestPayloadEntriesDeterministicAndFiltered(t *testing.T) {
	p := forms.Payload{
		"Form":       map[string]any{"Id": "12"},
		"Email":      "client@example.com",
		"Beta":       "second",
		"Alpha":      "first",
		"Nested":     map[string]any{"Inner": "value", "Risk": "M"},
		"Listy":      []any{"one", "two"},
		"EmptyValue": "",
	}
	entries := payloadEntries(p)

	var labels []string
	for _, e := range entries {
		labels = append(labels, e.Label)
	}
	want := []string{"Alpha", "Beta", "Listy", "Nested · Inner", "Nested · Risk"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}

	for _, e := range entries {
		if e.Label == "Nested · Risk" && e.Risk != "medium" {
			t.Errorf("nested risk class = %q, want medium", e.Risk)
		}
		if e.Label == "Listy" && e.Value != "one, two" {
			t.Errorf("list value = %q", e.Value)
		}
	}
}

func TestLabelize(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"CompanyName", "Company Name"},
		{"RevenueYearOne", "Revenue Year One"},
		{"SWOT", "SWOT"},
		{"simple", "simple"},
	}
	for _, tt := range tests {
		if got := labelize(tt.input); got != tt.expected {
			t.Errorf("labelize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
