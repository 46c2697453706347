package r4

import "strings"

// Patient represents a FHIR R4 Patient resource.
type Patient struct {
	ResourceType         string                 `json:"resourceType"`
	ID                   string                 `json:"id,omitempty"`
	Meta                 *Meta                  `json:"meta,omitempty"`
	Identifier           []Identifier           `json:"identifier,omitempty"`
	Active               *bool                  `json:"active,omitempty"`
	Name                 []HumanName            `json:"name,omitempty"`
	Telecom              []ContactPoint         `json:"telecom,omitempty"`
	Gender               string                 `json:"gender,omitempty"` // male | female | other | unknown
	BirthDate            string                 `json:"birthDate,omitempty"`
	DeceasedBoolean      *bool                  `json:"deceasedBoolean,omitempty"`
	DeceasedDateTime     string                 `json:"deceasedDateTime,omitempty"`
	Address              []Address              `json:"address,omitempty"`
	MaritalStatus        *CodeableConcept       `json:"maritalStatus,omitempty"`
	Communication        []PatientCommunication `json:"communication,omitempty"`
	GeneralPractitioner  []Reference            `json:"generalPractitioner,omitempty"`
	ManagingOrganization *Reference             `json:"managingOrganization,omitempty"`
}

// PatientCommunication represents a patient's preferred language.
type PatientCommunication struct {
	Language  CodeableConcept `json:"language"`
	Preferred bool            `json:"preferred,omitempty"`
}

// PrimaryName returns the first listed name. The summary view always shows
// name[0], regardless of its use.
func (p *Patient) PrimaryName() *HumanName {
	if p == nil || len(p.Name) == 0 {
		return nil
	}
	return &p.Name[0]
}

// DisplayName returns the given names joined by spaces followed by the
// family name.
func (p *Patient) DisplayName() (string, bool) {
	name := p.PrimaryName()
	if name == nil {
		return "", false
	}
	parts := make([]string, 0, len(name.Given)+1)
	for _, g := range name.Given {
		if g != "" {
			parts = append(parts, g)
		}
	}
	if name.Family != "" {
		parts = append(parts, name.Family)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// PrimaryAddress returns the first listed address.
func (p *Patient) PrimaryAddress() *Address {
	if p == nil || len(p.Address) == 0 {
		return nil
	}
	return &p.Address[0]
}

// Composition represents a FHIR R4 Composition resource. In a summary
// bundle it is the table of contents: each section lists references to
// other entries of the same bundle.
type Composition struct {
	ResourceType string               `json:"resourceType"`
	ID           string               `json:"id,omitempty"`
	Meta         *Meta                `json:"meta,omitempty"`
	Status       string               `json:"status,omitempty"` // preliminary | final | amended | entered-in-error
	Type         *CodeableConcept     `json:"type,omitempty"`
	Subject      *Reference           `json:"subject,omitempty"`
	Date         string               `json:"date,omitempty"`
	Author       []Reference          `json:"author,omitempty"`
	Title        string               `json:"title,omitempty"`
	Section      []CompositionSection `json:"section,omitempty"`
}

// CompositionSection is one titled section of a Composition.
type CompositionSection struct {
	Title string           `json:"title,omitempty"`
	Code  *CodeableConcept `json:"code,omitempty"`
	Entry []Reference      `json:"entry,omitempty"`
}

// SectionByTitle returns the first section whose title equals title exactly.
func (c *Composition) SectionByTitle(title string) (*CompositionSection, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Section {
		if c.Section[i].Title == title {
			return &c.Section[i], true
		}
	}
	return nil, false
}

// AllergyIntolerance represents a FHIR R4 AllergyIntolerance resource.
type AllergyIntolerance struct {
	ResourceType       string                       `json:"resourceType"`
	ID                 string                       `json:"id,omitempty"`
	Meta               *Meta                        `json:"meta,omitempty"`
	ClinicalStatus     *CodeableConcept             `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept             `json:"verificationStatus,omitempty"`
	Type               string                       `json:"type,omitempty"`     // allergy | intolerance
	Category           []string                     `json:"category,omitempty"` // food | medication | environment | biologic
	Criticality        string                       `json:"criticality,omitempty"`
	Code               *CodeableConcept             `json:"code,omitempty"`
	Patient            *Reference                   `json:"patient,omitempty"`
	OnsetDateTime      string                       `json:"onsetDateTime,omitempty"`
	RecordedDate       string                       `json:"recordedDate,omitempty"`
	Note               []Annotation                 `json:"note,omitempty"`
	Reaction           []AllergyIntoleranceReaction `json:"reaction,omitempty"`
}

// Criticality values
const (
	CriticalityLow            = "low"
	CriticalityHigh           = "high"
	CriticalityUnableToAssess = "unable-to-assess"
)

// AllergyIntoleranceReaction describes one adverse reaction event.
type AllergyIntoleranceReaction struct {
	Substance     *CodeableConcept  `json:"substance,omitempty"`
	Manifestation []CodeableConcept `json:"manifestation,omitempty"`
	Description   string            `json:"description,omitempty"`
	Onset         string            `json:"onset,omitempty"`
	Severity      string            `json:"severity,omitempty"` // mild | moderate | severe
}

// FirstManifestation returns the display of the first manifestation of the
// first reaction.
func (a *AllergyIntolerance) FirstManifestation() (string, bool) {
	if a == nil || len(a.Reaction) == 0 || len(a.Reaction[0].Manifestation) == 0 {
		return "", false
	}
	return a.Reaction[0].Manifestation[0].FirstDisplay()
}

// IsHighCriticality reports whether the allergy is flagged high criticality.
func (a *AllergyIntolerance) IsHighCriticality() bool {
	return a != nil && a.Criticality == CriticalityHigh
}
