// Package render turns a plan model into the printable document body.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"time"

	"planforge/api/internal/forms"
	"planforge/api/internal/plan"
)

//go:embed templates/*.html templates/*.css
var templateFS embed.FS

var planTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate":       FormatDate,
		"dashDate":         DashDate,
		"formatCurrency":   FormatCurrency,
		"formatPercentage": FormatPercentage,
		"riskClass":        RiskClass,
		"entries":          payloadEntries,
	}
	content, err := templateFS.ReadFile("templates/business-plan.html")
	if err != nil {
		panic(fmt.Sprintf("render: missing business-plan template: %v", err))
	}
	planTemplate = template.Must(template.New("business-plan").Funcs(funcMap).Parse(string(content)))
}

type sectionData struct {
	Key     string
	Title   string
	Payload forms.Payload
}

type templateData struct {
	PlanTitle   string
	CompanyName string
	LogoURL     string
	GeneratedOn time.Time
	CSS         template.CSS
	Sections    []sectionData
}

// Render produces the document markup for a plan model. It is a pure
// function of the model and the embedded template and stylesheet, so the
// same model and template version always yield the same bytes.
func Render(model plan.Model) (string, error) {
	css, err := templateFS.ReadFile("templates/business-plan.css")
	if err != nil {
		return "", fmt.Errorf("read stylesheet: %w", err)
	}

	// The document title feeds the print header's title band.
	title := "Business Plan"
	if model.CompanyName != "" {
		title = model.CompanyName + " Business Plan"
	}

	data := templateData{
		PlanTitle:   title,
		CompanyName: model.CompanyName,
		LogoURL:     model.LogoURL,
		GeneratedOn: model.GeneratedOn,
		CSS:         template.CSS(css),
		Sections:    make([]sectionData, 0, len(forms.BusinessPlan)),
	}
	for _, def := range forms.BusinessPlan {
		data.Sections = append(data.Sections, sectionData{
			Key:     def.Key,
			Title:   def.Title,
			Payload: model.Sections[def.Key],
		})
	}

	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// Entry is one displayable answer from a form payload.
type Entry struct {
	Label string
	Value string
	// Risk carries the style class when the value is a risk code.
	Risk string
}

// systemFields never render as answers; they are envelope metadata.
var systemFields = map[string]struct{}{
	"Form":        {},
	"Entry":       {},
	"Name":        {},
	"Email":       {},
	"Id":          {},
	"CompanyLogo": {},
}

// payloadEntries flattens a payload into labelled display entries in
// deterministic sorted-key order. Nested maps flatten one level with a
// combined label; lists of scalars join on commas.
func payloadEntries(p forms.Payload) []Entry {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		if _, system := systemFields[k]; system {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Entry
	for _, k := range keys {
		out = append(out, flatten(labelize(k), p[k])...)
	}
	return out
}

func flatten(label string, v any) []Entry {
	switch value := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []Entry
		for _, k := range keys {
			if s := displayValue(value[k]); s != "" {
				out = append(out, Entry{Label: label + " · " + labelize(k), Value: s, Risk: RiskClass(value[k])})
			}
		}
		return out
	default:
		s := displayValue(v)
		if s == "" {
			return nil
		}
		return []Entry{{Label: label, Value: s, Risk: RiskClass(v)}}
	}
}

func displayValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case bool:
		if value {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case []any:
		var parts []string
		for _, item := range value {
			if s := displayValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// labelize spaces out CamelCase field names for display.
func labelize(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(key[i-1])
			if prev >= 'a' && prev <= 'z' {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
