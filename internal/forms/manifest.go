// Package forms defines the required-forms manifest and the accessors
// used to read values out of opaque form payloads.
package forms

// FinalFormID identifies the reflections-and-summary form. Its submission
// is the only one that carries the company logo, and the plan builder
// reads the logo and company name from it. The manifest entry with key
// "final" must reference this constant.
const FinalFormID = "24"

// FormDef binds a form catalog identifier to the section key it populates
// in the plan template model.
type FormDef struct {
	ID    string
	Key   string
	Title string
}

// Manifest is the ordered set of forms that must all be present for a
// client before a plan can be generated. The order is also the section
// order in the generated document and the precedence order for company
// name resolution.
type Manifest []FormDef

// BusinessPlan is the manifest for the consolidated business plan.
var BusinessPlan = Manifest{
	{ID: "14", Key: "offerings", Title: "Tool to prioritise your offerings"},
	{ID: "15", Key: "sectors", Title: "Tool to Prioritise and Target Clients for maximum ROI"},
	{ID: "8", Key: "objectives", Title: "How to Spotlight Your Objectives"},
	{ID: "11", Key: "advantage", Title: "How to create an Advantage"},
	{ID: "16", Key: "market", Title: "Tool to determine your most effective route to market"},
	{ID: "12", Key: "swot", Title: "Business SWOT Analysis Questionnaire"},
	{ID: "23", Key: "ratesCard", Title: "Questionnaire to Calculate Labour Rates Card"},
	{ID: "25", Key: "financial", Title: "How to Forecast Your Financial Performance"},
	{ID: FinalFormID, Key: "final", Title: "Final Step - Reflections and Summary"},
}

// IDs returns the form identifiers in manifest order.
func (m Manifest) IDs() []string {
	ids := make([]string, len(m))
	for i, f := range m {
		ids[i] = f.ID
	}
	return ids
}

// ByID returns the manifest entry for a form identifier.
func (m Manifest) ByID(id string) (FormDef, bool) {
	for _, f := range m {
		if f.ID == id {
			return f, true
		}
	}
	return FormDef{}, false
}
