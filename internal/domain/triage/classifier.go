package triage

import "strings"

// severeKeywords are checked in order against the raw symptom text;
// the first hit decides the emergency type.
var severeKeywords = []string{
	"chest pain", "heart attack", "stroke", "can't breathe", "difficulty breathing",
	"unconscious", "seizure", "bleeding heavily", "anaphylaxis", "overdose",
}

// Classify derives the triage priority from latest vitals, the raw
// symptom text and the red flags detected at intake. It returns the
// priority and an emergency type ("" when none applies).
//
// Precedence: severe symptom keywords, then intake red flags, then
// critical vitals, then moderate vitals, then low. Vitals may be nil
// when no sample has been collected yet.
func Classify(vitals *Vitals, symptoms string, redFlags []string) (Priority, string) {
	lower := strings.ToLower(symptoms)
	for _, kw := range severeKeywords {
		if strings.Contains(lower, kw) {
			label := strings.ReplaceAll(kw, " ", "_")
			label = strings.ReplaceAll(label, "'", "")
			return PriorityHigh, label
		}
	}
	if len(redFlags) > 0 {
		return PriorityHigh, "emergency_symptoms"
	}

	if vitals != nil {
		if vitals.SpO2 != nil && *vitals.SpO2 < 92 {
			return PriorityHigh, "low_oxygen"
		}
		if vitals.HR != nil && (*vitals.HR > 130 || *vitals.HR < 45) {
			return PriorityHigh, "critical_heart_rate"
		}
		if vitals.BPSys != nil && (*vitals.BPSys > 180 || *vitals.BPSys < 85) {
			return PriorityHigh, "critical_bp"
		}
		if vitals.TempC != nil && (*vitals.TempC > 39.5 || *vitals.TempC < 35.0) {
			return PriorityHigh, "critical_temp"
		}
		if vitals.SpO2 != nil && *vitals.SpO2 < 95 {
			return PriorityMedium, ""
		}
		if vitals.HR != nil && (*vitals.HR > 110 || *vitals.HR < 50) {
			return PriorityMedium, ""
		}
		if vitals.BPSys != nil && (*vitals.BPSys > 160 || *vitals.BPSys < 95) {
			return PriorityMedium, ""
		}
	}

	return PriorityLow, ""
}
