package domain

import (
	"bytes"
	"encoding/json"
	"math"
)

// Defaults applied to optional PatientSummary fields.
const (
	DefaultAge    = 30
	DefaultGender = "Male"
)

// PatientSummary is the resolved structured summary consumed by the note pipeline.
// Every field holds a concrete value; construct it through PatientSummaryInput.Resolve.
type PatientSummary struct {
	PainIntensity    int     `json:"pain_intensity"`
	Hemoglobin       float64 `json:"hemoglobin"`
	OxygenSaturation float64 `json:"oxygen_saturation"`
	PainType         string  `json:"pain_type"`
	FacilityType     string  `json:"facility_type"`
	Location         string  `json:"location"`
	Admitted         string  `json:"admitted"`
	Age              int     `json:"age"`
	Gender           string  `json:"gender"`
}

// PatientSummaryInput is the wire shape of a patient summary.
// Required fields are pointers so an absent field is not confused with a zero value.
type PatientSummaryInput struct {
	PainIntensity    *int     `json:"pain_intensity" binding:"required" jsonschema:"numeric pain rating, expected 1 to 10"`
	Hemoglobin       *float64 `json:"hemoglobin" binding:"required" jsonschema:"hemoglobin lab result in g/dL"`
	OxygenSaturation *float64 `json:"oxygen_saturation" binding:"required" jsonschema:"oxygen saturation in percent"`
	PainType         *string  `json:"pain_type" binding:"required" jsonschema:"pain category such as Legs or Chest"`
	FacilityType     *string  `json:"facility_type" binding:"required" jsonschema:"facility such as ER, Urgent Care or Outpatient"`
	Location         *string  `json:"location" binding:"required" jsonschema:"patient location"`
	Admitted         *string  `json:"admitted" binding:"required" jsonschema:"Yes or No"`
	Age              *int     `json:"age,omitempty" jsonschema:"patient age, defaults to 30"`
	Gender           *string  `json:"gender,omitempty" jsonschema:"patient gender, defaults to Male"`
}

// requiredFields lists the required wire fields in report order.
var requiredFields = []string{
	"pain_intensity", "hemoglobin", "oxygen_saturation",
	"pain_type", "facility_type", "location", "admitted",
}

// inputFields lists every wire field in report order.
var inputFields = append(append([]string{}, requiredFields...), "age", "gender")

// UnmarshalJSON decodes each field on its own so that every mistyped field is
// reported, together with any missing required field. Integer fields accept
// whole-valued numbers such as 8.0. A null field counts as absent.
func (in *PatientSummaryInput) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ValidationErrors{NewValidationError("body", "value is not a valid object", nil)}
	}

	typeErrs := make(map[string]*ValidationError)
	*in = PatientSummaryInput{
		PainIntensity:    decodeInteger(fields, "pain_intensity", typeErrs),
		Hemoglobin:       decodeNumber(fields, "hemoglobin", typeErrs),
		OxygenSaturation: decodeNumber(fields, "oxygen_saturation", typeErrs),
		PainType:         decodeString(fields, "pain_type", typeErrs),
		FacilityType:     decodeString(fields, "facility_type", typeErrs),
		Location:         decodeString(fields, "location", typeErrs),
		Admitted:         decodeString(fields, "admitted", typeErrs),
		Age:              decodeInteger(fields, "age", typeErrs),
		Gender:           decodeString(fields, "gender", typeErrs),
	}
	if len(typeErrs) == 0 {
		return nil
	}

	missing := in.missingFields()
	var errs ValidationErrors
	for _, name := range inputFields {
		if e, ok := typeErrs[name]; ok {
			errs = append(errs, e)
		} else if missing[name] {
			errs = append(errs, NewValidationError(name, "field required", nil))
		}
	}
	return errs
}

func lookupField(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeInteger(fields map[string]json.RawMessage, name string, errs map[string]*ValidationError) *int {
	raw, ok := lookupField(fields, name)
	if !ok {
		return nil
	}

	var v int
	if err := json.Unmarshal(raw, &v); err == nil {
		return &v
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
		v = int(f)
		return &v
	}

	errs[name] = NewValidationError(name, "value is not a valid integer", raw)
	return nil
}

func decodeNumber(fields map[string]json.RawMessage, name string, errs map[string]*ValidationError) *float64 {
	raw, ok := lookupField(fields, name)
	if !ok {
		return nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		errs[name] = NewValidationError(name, "value is not a valid number", raw)
		return nil
	}
	return &v
}

func decodeString(fields map[string]json.RawMessage, name string, errs map[string]*ValidationError) *string {
	raw, ok := lookupField(fields, name)
	if !ok {
		return nil
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		errs[name] = NewValidationError(name, "value is not a valid string", raw)
		return nil
	}
	return &v
}

// missingFields returns the required fields that are absent.
func (in *PatientSummaryInput) missingFields() map[string]bool {
	present := map[string]bool{
		"pain_intensity":    in.PainIntensity != nil,
		"hemoglobin":        in.Hemoglobin != nil,
		"oxygen_saturation": in.OxygenSaturation != nil,
		"pain_type":         in.PainType != nil,
		"facility_type":     in.FacilityType != nil,
		"location":          in.Location != nil,
		"admitted":          in.Admitted != nil,
	}

	missing := make(map[string]bool)
	for _, name := range requiredFields {
		if !present[name] {
			missing[name] = true
		}
	}
	return missing
}

// Resolve checks that every required field is present and applies defaults to the
// optional ones. All missing fields are reported together.
func (in *PatientSummaryInput) Resolve() (PatientSummary, error) {
	missing := in.missingFields()
	if len(missing) > 0 {
		var errs ValidationErrors
		for _, name := range requiredFields {
			if missing[name] {
				errs = append(errs, NewValidationError(name, "field required", nil))
			}
		}
		return PatientSummary{}, errs
	}

	summary := PatientSummary{
		PainIntensity:    *in.PainIntensity,
		Hemoglobin:       *in.Hemoglobin,
		OxygenSaturation: *in.OxygenSaturation,
		PainType:         *in.PainType,
		FacilityType:     *in.FacilityType,
		Location:         *in.Location,
		Admitted:         *in.Admitted,
		Age:              DefaultAge,
		Gender:           DefaultGender,
	}
	if in.Age != nil {
		summary.Age = *in.Age
	}
	if in.Gender != nil {
		summary.Gender = *in.Gender
	}

	return summary, nil
}
