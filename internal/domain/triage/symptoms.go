package triage

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Keyword clusters for the operational grouping of intake text.
// Matching is substring-based on the lowercased symptom text.
var clusterOrder = []string{"Respiratory", "GI", "Musculoskeletal", "Dermatology"}

var clusterKeywords = map[string][]string{
	"Respiratory":     {"cough", "sore throat", "congestion", "runny nose", "sinus", "wheezing", "chest"},
	"GI":              {"nausea", "vomit", "diarrhea", "stomach", "abdominal", "cramp", "constipation"},
	"Musculoskeletal": {"pain", "joint", "muscle", "sprain", "strain", "back", "neck", "ankle", "knee"},
	"Dermatology":     {"rash", "itch", "skin", "hives", "burn", "wound", "bite"},
}

// RedFlagKeywords are phrases that mark an intake for priority
// clinician review when present in the symptom text.
var RedFlagKeywords = []string{
	"chest pain", "difficulty breathing", "can't breathe", "trouble breathing",
	"having trouble breathing", "shortness of breath", "unconscious", "seizure",
	"bleeding heavily", "stroke", "heart attack", "anaphylaxis", "overdose",
}

var (
	symptomSplitRe = regexp.MustCompile(`[,\n]+`)
	firstNumberRe  = regexp.MustCompile(`\d+`)
	wordRe         = regexp.MustCompile(`[a-zA-Z]{3,}`)
)

// DurationDays parses free-text duration ("3 days", "1 week", "2 months")
// into a day count. A bare number is taken as days; no number means one.
func DurationDays(duration string) int {
	text := strings.ToLower(duration)
	n := 1
	if m := firstNumberRe.FindString(text); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			n = v
		}
	}
	if strings.Contains(text, "week") {
		return n * 7
	}
	if strings.Contains(text, "month") {
		return n * 30
	}
	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// StructureSymptoms turns free-text intake (symptoms plus duration)
// into a structured, non-diagnostic Assessment used for lane
// assignment and wait simulation. It never produces a diagnosis; the
// summary text says so explicitly.
func StructureSymptoms(symptoms, duration string, age *int) Assessment {
	text := strings.TrimSpace(strings.ToLower(symptoms))

	var list []string
	for _, part := range symptomSplitRe.Split(symptoms, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		list = append(list, capitalize(part))
		if len(list) == 6 {
			break
		}
	}
	if len(list) == 0 && text != "" {
		head := text
		if len(head) > 60 {
			head = head[:60]
		}
		list = []string{capitalize(head)}
	}

	type clusterScore struct {
		name  string
		score int
	}
	ranked := make([]clusterScore, 0, len(clusterOrder))
	for _, name := range clusterOrder {
		score := 0
		for _, w := range clusterKeywords[name] {
			if strings.Contains(text, w) {
				score++
			}
		}
		ranked = append(ranked, clusterScore{name, score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	primary := "General"
	if ranked[0].score > 0 {
		primary = ranked[0].name
	}
	secondary := ""
	if len(ranked) > 1 && ranked[1].score > 0 {
		secondary = ranked[1].name
	}
	cluster := primary
	if secondary != "" {
		cluster = primary + "+" + secondary
	}

	var flags []string
	for _, f := range RedFlagKeywords {
		if strings.Contains(text, f) {
			flags = append(flags, f)
		}
	}

	days := DurationDays(duration)
	symptomCount := len(wordRe.FindAllString(text, -1))

	var complexity string
	var visitMin int
	switch {
	case len(flags) > 0 || symptomCount > 35 || days > 10:
		complexity, visitMin = "High", 35
	case symptomCount > 20 || days > 4:
		complexity, visitMin = "Moderate", 25
	default:
		complexity, visitMin = "Low", 15
	}

	chief := "General symptom concern"
	if len(list) > 0 {
		chief = list[0]
	}

	resources := []string{"Vitals check", "Nurse triage review"}
	if strings.Contains(cluster, "Respiratory") {
		resources = append(resources, "Rapid respiratory panel (if indicated)")
	}
	if strings.Contains(cluster, "GI") {
		resources = append(resources, "Hydration assessment")
	}

	flagsText := "none detected"
	if len(flags) > 0 {
		flagsText = strings.Join(flags, ", ")
	}
	summary := fmt.Sprintf(
		"Chief complaint: %s. Cluster: %s. Duration: %d day(s). Red flags: %s. "+
			"Operational complexity: %s. Estimated visit duration: %d-%d min. "+
			"Non-diagnostic operational summary for triage workflow only.",
		chief, cluster, days, flagsText, complexity, visitMin, visitMin+10,
	)

	return Assessment{
		ChiefComplaint:   chief,
		SymptomList:      list,
		Cluster:          cluster,
		RedFlags:         flags,
		Complexity:       complexity,
		VisitDurationMin: visitMin,
		Summary:          summary,
		Resources:        resources,
		DurationDays:     days,
		Age:              age,
	}
}
