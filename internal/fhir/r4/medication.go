package r4

// MedicationStatement represents a FHIR R4 MedicationStatement resource.
// The medication[x] choice is either a concept or a reference to a
// Medication entry elsewhere in the bundle.
type MedicationStatement struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Meta         *Meta  `json:"meta,omitempty"`

	// active | completed | entered-in-error | intended | stopped | on-hold | unknown | not-taken
	Status       string            `json:"status,omitempty"`
	StatusReason []CodeableConcept `json:"statusReason,omitempty"`
	Category     *CodeableConcept  `json:"category,omitempty"`

	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`

	Subject           *Reference   `json:"subject,omitempty"`
	EffectiveDateTime string       `json:"effectiveDateTime,omitempty"`
	EffectivePeriod   *Period      `json:"effectivePeriod,omitempty"`
	DateAsserted      string       `json:"dateAsserted,omitempty"`
	Note              []Annotation `json:"note,omitempty"`
	Dosage            []Dosage     `json:"dosage,omitempty"`
}

// Medication represents a FHIR R4 Medication resource.
type Medication struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id,omitempty"`
	Meta         *Meta            `json:"meta,omitempty"`
	Code         *CodeableConcept `json:"code,omitempty"`
	Status       string           `json:"status,omitempty"`
	Form         *CodeableConcept `json:"form,omitempty"`
}

// Dosage contains dosage instructions for the medication.
type Dosage struct {
	Sequence           int              `json:"sequence,omitempty"`
	Text               string           `json:"text,omitempty"`
	PatientInstruction string           `json:"patientInstruction,omitempty"`
	Timing             *Timing          `json:"timing,omitempty"`
	AsNeededBoolean    *bool            `json:"asNeededBoolean,omitempty"`
	Site               *CodeableConcept `json:"site,omitempty"`
	Route              *CodeableConcept `json:"route,omitempty"`
	Method             *CodeableConcept `json:"method,omitempty"`
	DoseAndRate        []DoseAndRate    `json:"doseAndRate,omitempty"`
}

// DoseAndRate contains dose/rate information.
type DoseAndRate struct {
	Type         *CodeableConcept `json:"type,omitempty"`
	DoseRange    *Range           `json:"doseRange,omitempty"`
	DoseQuantity *Quantity        `json:"doseQuantity,omitempty"`
	RateRatio    *Ratio           `json:"rateRatio,omitempty"`
	RateRange    *Range           `json:"rateRange,omitempty"`
	RateQuantity *Quantity        `json:"rateQuantity,omitempty"`
}

// Timing contains timing information for dosage.
type Timing struct {
	Event  []string         `json:"event,omitempty"`
	Repeat *TimingRepeat    `json:"repeat,omitempty"`
	Code   *CodeableConcept `json:"code,omitempty"`
}

// TimingRepeat contains repeat details for timing.
type TimingRepeat struct {
	Count      int      `json:"count,omitempty"`
	Frequency  int      `json:"frequency,omitempty"`
	Period     float64  `json:"period,omitempty"`
	PeriodUnit string   `json:"periodUnit,omitempty"`
	DayOfWeek  []string `json:"dayOfWeek,omitempty"`
	TimeOfDay  []string `json:"timeOfDay,omitempty"`
	When       []string `json:"when,omitempty"`
}

// FirstDose returns the dose quantity of the first dosage's first
// dose-and-rate element.
func (m *MedicationStatement) FirstDose() *Quantity {
	if m == nil || len(m.Dosage) == 0 || len(m.Dosage[0].DoseAndRate) == 0 {
		return nil
	}
	return m.Dosage[0].DoseAndRate[0].DoseQuantity
}

// TimingCode returns the timing code of the first dosage.
func (m *MedicationStatement) TimingCode() *CodeableConcept {
	if m == nil || len(m.Dosage) == 0 || m.Dosage[0].Timing == nil {
		return nil
	}
	return m.Dosage[0].Timing.Code
}

// MedicationID returns the id part of the medicationReference, if any.
func (m *MedicationStatement) MedicationID() (string, bool) {
	if m == nil || m.MedicationReference == nil {
		return "", false
	}
	id := ReferenceID(m.MedicationReference.Reference)
	return id, id != ""
}
