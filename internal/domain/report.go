package domain

// Warning catalog, in evaluation order.
const (
	WarningHighPain         = "High pain intensity reported."
	WarningLowHemoglobin    = "Critically low hemoglobin level."
	WarningLowOxygen        = "Low oxygen saturation - potential hypoxia."
	WarningPatientAdmitted  = "Patient was admitted - consider severity."
	DefaultConfidenceScore  = 0.78
	GenerationFailurePrefix = "Error generating note: "
)

// GeneratedNote holds one model continuation before and after post-processing.
type GeneratedNote struct {
	Raw  string
	Text string
}

// MedicalReportResponse is the outcome of synthesizing a report from a summary.
// ConfidenceScore is a fixed placeholder and is not calibrated.
type MedicalReportResponse struct {
	GeneratedNote   string   `json:"generated_note"`
	ConfidenceScore float64  `json:"confidence_score"`
	Warnings        []string `json:"warnings"`

	// GenerationErr is set when the note is a failure placeholder.
	GenerationErr *GenerationError `json:"-"`
}

// Degraded reports whether the note carries a generation failure placeholder.
func (r *MedicalReportResponse) Degraded() bool {
	return r.GenerationErr != nil
}
