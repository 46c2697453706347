// Package summary extracts the demographics, allergy and medication views
// from a patient summary bundle.
//
// The bundle shape is fixed: one Composition whose titled sections list
// relative references to other entries of the same bundle. Absence at any
// level (no Patient, no Composition, no section, unresolved reference) is an
// empty result, never an error, so partial bundles still render.
package summary

import (
	"strings"

	"github.com/drfirst/go-summaryview/internal/fhir/r4"
)

// Section titles matched exactly against Composition.section.title.
const (
	SectionAllergies   = "Allergies"
	SectionMedications = "Medications"
)

// Matcher decides whether a bundle entry's fullUrl is the target of a
// reference id.
type Matcher interface {
	Match(fullURL, id string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(fullURL, id string) bool

// Match calls f.
func (f MatcherFunc) Match(fullURL, id string) bool { return f(fullURL, id) }

// MatchSubstring accepts any fullUrl containing the id. It tolerates
// URN-prefixed identifiers but an id that is a substring of another id
// ("1" in ".../11") matches the wrong entry.
var MatchSubstring Matcher = MatcherFunc(func(fullURL, id string) bool {
	return id != "" && strings.Contains(fullURL, id)
})

// MatchExact accepts a fullUrl whose trailing path or URN segment equals
// the id.
var MatchExact Matcher = MatcherFunc(func(fullURL, id string) bool {
	return id != "" && r4.TrailingID(fullURL) == id
})

// ParseMatcher maps a configuration value to a Matcher. Unknown values fall
// back to substring matching.
func ParseMatcher(name string) Matcher {
	if strings.EqualFold(name, "exact") {
		return MatchExact
	}
	return MatchSubstring
}

// FindPatient returns the first Patient resource in the bundle. The boolean
// is false when the bundle holds no decodable Patient.
func FindPatient(b *r4.Bundle) (*r4.Patient, bool) {
	if b == nil {
		return nil, false
	}
	for _, e := range b.Entry {
		if !e.Resource.Is(r4.TypePatient) {
			continue
		}
		p, err := e.Resource.AsPatient()
		if err != nil {
			return nil, false
		}
		return p, true
	}
	return nil, false
}

// FindComposition returns the first Composition resource in the bundle.
func FindComposition(b *r4.Bundle) (*r4.Composition, bool) {
	if b == nil {
		return nil, false
	}
	for _, e := range b.Entry {
		if !e.Resource.Is(r4.TypeComposition) {
			continue
		}
		c, err := e.Resource.AsComposition()
		if err != nil {
			return nil, false
		}
		return c, true
	}
	return nil, false
}

// Resolution is the outcome of resolving one section.
type Resolution struct {
	Resources  []*r4.RawResource
	Unresolved []string
}

// ResolveSection resolves every reference of the titled section in section
// order, keeping the references that matched no entry aside.
func ResolveSection(b *r4.Bundle, title string, m Matcher) Resolution {
	var res Resolution
	comp, ok := FindComposition(b)
	if !ok {
		return res
	}
	section, ok := comp.SectionByTitle(title)
	if !ok || len(section.Entry) == 0 {
		return res
	}
	if m == nil {
		m = MatchSubstring
	}

	for _, ref := range section.Entry {
		target := resolve(b, r4.ReferenceID(ref.Reference), m)
		if target == nil {
			res.Unresolved = append(res.Unresolved, ref.Reference)
			continue
		}
		res.Resources = append(res.Resources, target)
	}
	return res
}

// SectionResources returns the resources referenced by the titled section,
// in section order, with unresolved references dropped.
func SectionResources(b *r4.Bundle, title string, m Matcher) []*r4.RawResource {
	return ResolveSection(b, title, m).Resources
}

// resolve scans every entry for the first one whose fullUrl matches id.
func resolve(b *r4.Bundle, id string, m Matcher) *r4.RawResource {
	if id == "" {
		return nil
	}
	for _, e := range b.Entry {
		if e.FullURL == "" || e.Resource == nil {
			continue
		}
		if m.Match(e.FullURL, id) {
			return e.Resource
		}
	}
	return nil
}

// Allergies returns one allergy per resolved reference of the "Allergies"
// section, in section order. A resolved entry of another kind still yields
// an allergy carrying whichever fields the two kinds share, and one that
// cannot be decoded at all yields an empty allergy.
func Allergies(b *r4.Bundle, m Matcher) []*r4.AllergyIntolerance {
	var out []*r4.AllergyIntolerance
	for _, raw := range SectionResources(b, SectionAllergies, m) {
		out = append(out, allergyOf(raw))
	}
	return out
}

func allergyOf(raw *r4.RawResource) *r4.AllergyIntolerance {
	if a, err := raw.AsAllergyIntolerance(); err == nil {
		return a
	}
	a := new(r4.AllergyIntolerance)
	if err := raw.DecodeFields(a); err != nil {
		return new(r4.AllergyIntolerance)
	}
	return a
}

// MedicationEntry pairs a statement with the Medication it references, when
// the bundle carries one. Statement is never nil.
type MedicationEntry struct {
	Statement  *r4.MedicationStatement
	Medication *r4.Medication
}

// Medications returns one entry per resolved reference of the
// "Medications" section, each statement joined with its referenced
// Medication. A section entry that is itself a Medication becomes the
// entry's Medication with an empty statement; any other kind is read for
// the statement fields it shares.
func Medications(b *r4.Bundle, m Matcher) []MedicationEntry {
	if m == nil {
		m = MatchSubstring
	}
	var out []MedicationEntry
	for _, raw := range SectionResources(b, SectionMedications, m) {
		if raw.Is(r4.TypeMedication) {
			entry := MedicationEntry{Statement: new(r4.MedicationStatement)}
			if med, err := raw.AsMedication(); err == nil {
				entry.Medication = med
			}
			out = append(out, entry)
			continue
		}

		entry := MedicationEntry{Statement: statementOf(raw)}
		if id, ok := entry.Statement.MedicationID(); ok {
			if target := resolve(b, id, m); target.Is(r4.TypeMedication) {
				if med, err := target.AsMedication(); err == nil {
					entry.Medication = med
				}
			}
		}
		out = append(out, entry)
	}
	return out
}

func statementOf(raw *r4.RawResource) *r4.MedicationStatement {
	if stmt, err := raw.AsMedicationStatement(); err == nil {
		return stmt
	}
	stmt := new(r4.MedicationStatement)
	if err := raw.DecodeFields(stmt); err != nil {
		return new(r4.MedicationStatement)
	}
	return stmt
}
