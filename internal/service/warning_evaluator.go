package service

import (
	"strings"

	"github.com/medreportgen-server/internal/domain"
)

// Warning thresholds. Comparisons are strict.
const (
	HighPainThreshold      = 7
	LowHemoglobinThreshold = 7.0
	LowOxygenThreshold     = 92.0
)

// WarningRule is one advisory check over a patient summary.
type WarningRule struct {
	Code      string
	Message   string
	Condition func(summary domain.PatientSummary) bool
}

// warningRules is evaluated in order; the order of the produced warnings follows it.
var warningRules = []WarningRule{
	{
		Code:    "HIGH_PAIN",
		Message: domain.WarningHighPain,
		Condition: func(s domain.PatientSummary) bool {
			return s.PainIntensity > HighPainThreshold
		},
	},
	{
		Code:    "LOW_HEMOGLOBIN",
		Message: domain.WarningLowHemoglobin,
		Condition: func(s domain.PatientSummary) bool {
			return s.Hemoglobin < LowHemoglobinThreshold
		},
	},
	{
		Code:    "LOW_OXYGEN",
		Message: domain.WarningLowOxygen,
		Condition: func(s domain.PatientSummary) bool {
			return s.OxygenSaturation < LowOxygenThreshold
		},
	},
	{
		Code:    "ADMITTED",
		Message: domain.WarningPatientAdmitted,
		Condition: func(s domain.PatientSummary) bool {
			return strings.EqualFold(s.Admitted, "yes")
		},
	},
}

// WarningRules returns a copy of the ordered rule table.
func WarningRules() []WarningRule {
	rules := make([]WarningRule, len(warningRules))
	copy(rules, warningRules)
	return rules
}

// EvaluateWarnings applies every rule to summary and returns the messages of the
// rules that fired. The result is never nil.
func EvaluateWarnings(summary domain.PatientSummary) []string {
	warnings := make([]string, 0, len(warningRules))
	for _, rule := range warningRules {
		if rule.Condition(summary) {
			warnings = append(warnings, rule.Message)
		}
	}
	return warnings
}
