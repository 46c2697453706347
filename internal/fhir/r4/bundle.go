package r4

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotABundle is returned when a document is valid JSON but not a Bundle.
var ErrNotABundle = errors.New("document is not a FHIR Bundle")

// ErrResourceType is returned when a typed accessor is used on a resource of
// another type.
var ErrResourceType = errors.New("unexpected resource type")

// Bundle represents a FHIR R4 Bundle. Entry order carries no meaning for
// lookups.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type,omitempty"` // document | collection | searchset | ...
	Timestamp    string        `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleEntry is one entry of a Bundle. Resource is nil when the entry has
// no resource.
type BundleEntry struct {
	FullURL  string       `json:"fullUrl,omitempty"`
	Resource *RawResource `json:"resource,omitempty"`
}

// RawResource keeps a resource's type tag next to its undecoded body so
// that only the kinds a caller asks for are ever decoded.
type RawResource struct {
	Type string
	Raw  json.RawMessage
}

// UnmarshalJSON peeks at resourceType and keeps the full body.
func (r *RawResource) UnmarshalJSON(data []byte) error {
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode resource header: %w", err)
	}
	r.Type = head.ResourceType
	r.Raw = append(r.Raw[:0], data...)
	return nil
}

// MarshalJSON returns the original body.
func (r RawResource) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}

// Is reports whether the resource carries the given type tag.
func (r *RawResource) Is(resourceType string) bool {
	return r != nil && r.Type == resourceType
}

func (r *RawResource) decode(resourceType string, v interface{}) error {
	if r == nil {
		return fmt.Errorf("%w: want %s, got none", ErrResourceType, resourceType)
	}
	if r.Type != resourceType {
		return fmt.Errorf("%w: want %s, got %q", ErrResourceType, resourceType, r.Type)
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", resourceType, err)
	}
	return nil
}

// DecodeFields decodes the body into v whatever the type tag says. Fields v
// does not declare are ignored and fields whose JSON shape differs from v's
// are left zero, so a resource of another kind yields the fields the two
// kinds share.
func (r *RawResource) DecodeFields(v interface{}) error {
	if r == nil || len(r.Raw) == 0 {
		return fmt.Errorf("%w: empty resource", ErrResourceType)
	}
	err := json.Unmarshal(r.Raw, v)
	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.As(err, &typeErr) {
		return fmt.Errorf("decode %s fields: %w", r.Type, err)
	}
	return nil
}

// AsPatient decodes the resource as a Patient.
func (r *RawResource) AsPatient() (*Patient, error) {
	p := new(Patient)
	if err := r.decode(TypePatient, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AsComposition decodes the resource as a Composition.
func (r *RawResource) AsComposition() (*Composition, error) {
	c := new(Composition)
	if err := r.decode(TypeComposition, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AsAllergyIntolerance decodes the resource as an AllergyIntolerance.
func (r *RawResource) AsAllergyIntolerance() (*AllergyIntolerance, error) {
	a := new(AllergyIntolerance)
	if err := r.decode(TypeAllergyIntolerance, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AsMedicationStatement decodes the resource as a MedicationStatement.
func (r *RawResource) AsMedicationStatement() (*MedicationStatement, error) {
	m := new(MedicationStatement)
	if err := r.decode(TypeMedicationStatement, m); err != nil {
		return nil, err
	}
	return m, nil
}

// AsMedication decodes the resource as a Medication.
func (r *RawResource) AsMedication() (*Medication, error) {
	m := new(Medication)
	if err := r.decode(TypeMedication, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseBundle decodes a summary response body. Anything that is not a JSON
// object tagged "Bundle" is rejected; malformed entries inside a valid
// bundle are kept so partial bundles stay renderable.
func ParseBundle(data []byte) (*Bundle, error) {
	b := new(Bundle)
	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.ResourceType != TypeBundle {
		return nil, fmt.Errorf("%w: resourceType %q", ErrNotABundle, b.ResourceType)
	}
	return b, nil
}

// ReferenceID returns the id part of a relative reference such as
// "AllergyIntolerance/123" (also "AllergyIntolerance/123/_history/2").
// For "urn:uuid:" and "urn:oid:" references the trailing identifier is
// returned. Anything else yields "".
func ReferenceID(ref string) string {
	if strings.HasPrefix(ref, "urn:") {
		if i := strings.LastIndexByte(ref, ':'); i >= 0 {
			return ref[i+1:]
		}
		return ""
	}
	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// TrailingID returns the last path or URN segment of a fullUrl, e.g. "42"
// for "http://example.org/fhir/Patient/42" or "abc" for "urn:uuid:abc".
func TrailingID(fullURL string) string {
	for i := len(fullURL) - 1; i >= 0; i-- {
		if fullURL[i] == '/' || fullURL[i] == ':' {
			return fullURL[i+1:]
		}
	}
	return fullURL
}
