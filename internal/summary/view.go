package summary

import (
	"strings"

	"github.com/drfirst/go-summaryview/internal/fhir/r4"
)

// Placeholders shown for absent fields.
const (
	PlaceholderUnknown      = "Unknown"
	PlaceholderNotSpecified = "Not specified"
	PlaceholderNA           = "N/A"
)

// Empty-state messages.
const (
	NoPatientMessage    = "No patient information available."
	NoAllergyMessage    = "No allergy information available"
	NoMedicationMessage = "No medication information available"
)

// Demographics is the rendered patient card.
type Demographics struct {
	Found     bool   `json:"found"`
	PatientID string `json:"patientId,omitempty"`
	FullName  string `json:"fullName,omitempty"`
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
	Address   string `json:"address,omitempty"`
}

// AllergyRow is one row of the allergy table.
type AllergyRow struct {
	Allergy         string `json:"allergy"`
	Reaction        string `json:"reaction"`
	Severity        string `json:"severity"`
	Status          string `json:"status"`
	HighCriticality bool   `json:"highCriticality"`
}

// MedicationRow is one row of the medication table.
type MedicationRow struct {
	Medication string `json:"medication"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	Status     string `json:"status"`
}

// Summary holds the three rendered sections.
type Summary struct {
	Demographics Demographics    `json:"demographics"`
	Allergies    []AllergyRow    `json:"allergies"`
	Medications  []MedicationRow `json:"medications"`
}

// Build renders all three sections. Each section runs its own extraction
// over the bundle.
func Build(b *r4.Bundle, m Matcher) Summary {
	return Summary{
		Demographics: BuildDemographics(b),
		Allergies:    BuildAllergyRows(b, m),
		Medications:  BuildMedicationRows(b, m),
	}
}

// BuildDemographics renders the patient card.
func BuildDemographics(b *r4.Bundle) Demographics {
	p, ok := FindPatient(b)
	if !ok {
		return Demographics{}
	}
	d := Demographics{
		Found:     true,
		PatientID: p.ID,
		FullName:  PlaceholderUnknown,
		Gender:    PlaceholderNotSpecified,
		BirthDate: PlaceholderNotSpecified,
		Address:   formatAddress(p.PrimaryAddress()),
	}
	if name, ok := p.DisplayName(); ok {
		d.FullName = name
	}
	if p.Gender != "" {
		d.Gender = capitalize(p.Gender)
	}
	if p.BirthDate != "" {
		d.BirthDate = p.BirthDate
	}
	return d
}

// formatAddress joins the address lines, city and postal code with ", ".
func formatAddress(a *r4.Address) string {
	if a == nil {
		return PlaceholderNA
	}
	var parts []string
	if len(a.Line) > 0 {
		parts = append(parts, strings.Join(a.Line, ", "))
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	if a.PostalCode != "" {
		parts = append(parts, a.PostalCode)
	}
	if len(parts) == 0 {
		return PlaceholderNA
	}
	return strings.Join(parts, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// BuildAllergyRows renders the allergy table in section order.
func BuildAllergyRows(b *r4.Bundle, m Matcher) []AllergyRow {
	allergies := Allergies(b, m)
	rows := make([]AllergyRow, 0, len(allergies))
	for _, a := range allergies {
		row := AllergyRow{
			Allergy:         PlaceholderUnknown,
			Reaction:        PlaceholderNotSpecified,
			Severity:        PlaceholderNotSpecified,
			Status:          PlaceholderUnknown,
			HighCriticality: a.IsHighCriticality(),
		}
		if v, ok := a.Code.FirstDisplay(); ok {
			row.Allergy = v
		}
		if v, ok := a.FirstManifestation(); ok {
			row.Reaction = v
		}
		switch {
		case a.IsHighCriticality():
			row.Severity = "High"
		case a.Criticality != "":
			row.Severity = a.Criticality
		}
		if v, ok := a.ClinicalStatus.FirstCode(); ok {
			row.Status = v
		}
		rows = append(rows, row)
	}
	return rows
}

// BuildMedicationRows renders the medication table in section order.
func BuildMedicationRows(b *r4.Bundle, m Matcher) []MedicationRow {
	meds := Medications(b, m)
	rows := make([]MedicationRow, 0, len(meds))
	for _, med := range meds {
		stmt := med.Statement
		row := MedicationRow{
			Medication: PlaceholderUnknown,
			Dosage:     PlaceholderNotSpecified,
			Frequency:  PlaceholderNotSpecified,
			Status:     PlaceholderUnknown,
		}
		if v, ok := medicationName(med); ok {
			row.Medication = v
		}
		if v, ok := formatDose(stmt.FirstDose()); ok {
			row.Dosage = v
		}
		timing := stmt.TimingCode()
		if v, ok := timing.FirstDisplay(); ok {
			row.Frequency = v
		} else if v, ok := timing.TextValue(); ok {
			row.Frequency = v
		}
		if stmt.Status != "" {
			row.Status = stmt.Status
		}
		rows = append(rows, row)
	}
	return rows
}

// medicationName prefers the referenced Medication's code over the
// statement's own concept.
func medicationName(med MedicationEntry) (string, bool) {
	if med.Medication != nil {
		if v, ok := med.Medication.Code.FirstDisplay(); ok {
			return v, true
		}
	}
	return med.Statement.MedicationCodeableConcept.FirstDisplay()
}

// formatDose renders "<value> <unit>". A zero dose counts as absent.
func formatDose(q *r4.Quantity) (string, bool) {
	value, ok := q.FormattedValue()
	if !ok || *q.Value == 0 {
		return "", false
	}
	if q.Unit == "" {
		return value, true
	}
	return value + " " + q.Unit, true
}
