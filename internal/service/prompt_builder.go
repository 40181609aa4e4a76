package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/medreportgen-server/internal/domain"
)

// ClinicalNoteMarker ends every prompt; the model continues after it.
const ClinicalNoteMarker = "Clinical Note:"

// BuildPrompt renders a resolved summary into the fixed labeled template fed to
// the generation model. It is a pure function: equal summaries yield
// byte-identical prompts.
func BuildPrompt(summary domain.PatientSummary) string {
	var b strings.Builder
	b.Grow(256)

	b.WriteString("Patient Summary:\n")
	writeLine(&b, "Age", strconv.Itoa(summary.Age))
	writeLine(&b, "Gender", summary.Gender)
	writeLine(&b, "Pain Intensity (1-10)", strconv.Itoa(summary.PainIntensity))
	writeLine(&b, "Hemoglobin (g/dL)", formatMeasurement(summary.Hemoglobin))
	writeLine(&b, "Oxygen Saturation (%)", formatMeasurement(summary.OxygenSaturation))
	writeLine(&b, "Pain Type", summary.PainType)
	writeLine(&b, "Facility Type", summary.FacilityType)
	writeLine(&b, "Location", summary.Location)
	writeLine(&b, "Admitted", summary.Admitted)
	b.WriteString("\n")
	b.WriteString(ClinicalNoteMarker)

	return b.String()
}

func writeLine(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

// formatMeasurement renders a lab value with the shortest exact digits and at
// least one decimal place, so 95 prints as "95.0" and 8.5 as "8.5". Values with a
// decimal exponent below -4 or from 16 up switch to exponent form ("1e+16",
// "1e-05").
func formatMeasurement(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(v, 'e', -1, 64)
	if exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:]); err == nil && (exp < -4 || exp >= 16) {
		return sci
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
