// Package r4 provides the FHIR R4 data structures consumed by the patient summary viewer.
package r4

import "strconv"

// Resource type tags used in Bundle entries.
const (
	TypeBundle              = "Bundle"
	TypePatient             = "Patient"
	TypeComposition         = "Composition"
	TypeAllergyIntolerance  = "AllergyIntolerance"
	TypeMedicationStatement = "MedicationStatement"
	TypeMedication          = "Medication"
	TypeOperationOutcome    = "OperationOutcome"
)

// Common code systems
const (
	SystemRxNorm = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemSNOMED = "http://snomed.info/sct"
	SystemLOINC  = "http://loinc.org"
	SystemUCUM   = "http://unitsofmeasure.org"

	SystemAllergyClinicalStatus = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
)

// Meta contains metadata about a resource.
type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Source      string   `json:"source,omitempty"`
	Profile     []string `json:"profile,omitempty"`
	Tag         []Coding `json:"tag,omitempty"`
}

// Identifier represents a FHIR Identifier.
type Identifier struct {
	Use    string           `json:"use,omitempty"` // usual | official | temp | secondary | old
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

// CodeableConcept represents a concept with text and codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// FirstDisplay returns the display of the first coding. Later codings are
// never consulted, even when the first one has no display.
func (c *CodeableConcept) FirstDisplay() (string, bool) {
	if c == nil || len(c.Coding) == 0 || c.Coding[0].Display == "" {
		return "", false
	}
	return c.Coding[0].Display, true
}

// FirstCode returns the code of the first coding.
func (c *CodeableConcept) FirstCode() (string, bool) {
	if c == nil || len(c.Coding) == 0 || c.Coding[0].Code == "" {
		return "", false
	}
	return c.Coding[0].Code, true
}

// TextValue returns the free text of the concept.
func (c *CodeableConcept) TextValue() (string, bool) {
	if c == nil || c.Text == "" {
		return "", false
	}
	return c.Text, true
}

// Coding represents a code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Reference represents a reference to another resource.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Period represents a time period. FHIR dateTimes may be partial ("2024",
// "2024-03"), so both bounds are kept as strings.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Quantity represents a measured amount. Value is a pointer so an absent
// value is distinguishable from zero.
type Quantity struct {
	Value      *float64 `json:"value,omitempty"`
	Comparator string   `json:"comparator,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	System     string   `json:"system,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// FormattedValue renders the value the way a JSON number prints: no
// trailing zeros, no exponent for ordinary doses.
func (q *Quantity) FormattedValue() (string, bool) {
	if q == nil || q.Value == nil {
		return "", false
	}
	return strconv.FormatFloat(*q.Value, 'f', -1, 64), true
}

// Range represents a range of values.
type Range struct {
	Low  *Quantity `json:"low,omitempty"`
	High *Quantity `json:"high,omitempty"`
}

// Ratio represents a ratio between two quantities.
type Ratio struct {
	Numerator   *Quantity `json:"numerator,omitempty"`
	Denominator *Quantity `json:"denominator,omitempty"`
}

// Annotation represents a note or comment.
type Annotation struct {
	AuthorReference *Reference `json:"authorReference,omitempty"`
	AuthorString    string     `json:"authorString,omitempty"`
	Time            string     `json:"time,omitempty"`
	Text            string     `json:"text"`
}

// HumanName represents a human name.
type HumanName struct {
	Use    string   `json:"use,omitempty"` // usual | official | temp | nickname | anonymous | old | maiden
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
	Period *Period  `json:"period,omitempty"`
}

// Address represents a postal address.
type Address struct {
	Use        string   `json:"use,omitempty"`  // home | work | temp | old | billing
	Type       string   `json:"type,omitempty"` // postal | physical | both
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
	Period     *Period  `json:"period,omitempty"`
}

// ContactPoint represents a contact detail.
type ContactPoint struct {
	System string  `json:"system,omitempty"` // phone | fax | email | pager | url | sms | other
	Value  string  `json:"value,omitempty"`
	Use    string  `json:"use,omitempty"` // home | work | temp | old | mobile
	Rank   int     `json:"rank,omitempty"`
	Period *Period `json:"period,omitempty"`
}

// OperationOutcome represents errors and warnings from FHIR operations.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

// OperationOutcomeIssue represents a single issue in an OperationOutcome.
type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"` // fatal | error | warning | information
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
}

// FirstDiagnostics returns the diagnostics text of the first issue, if any.
func (o *OperationOutcome) FirstDiagnostics() string {
	if o == nil || len(o.Issue) == 0 {
		return ""
	}
	if o.Issue[0].Diagnostics != "" {
		return o.Issue[0].Diagnostics
	}
	if text, ok := o.Issue[0].Details.TextValue(); ok {
		return text
	}
	return ""
}
