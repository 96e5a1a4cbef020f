package workitem

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	titleMinLen = 5
	titleMaxLen = 500

	fmeaMin = 1
	fmeaMax = 10

	priorityMin = 1
	priorityMax = 5
)

var testRunResults = map[string]bool{
	"": true, "passed": true, "failed": true, "blocked": true, "not_run": true,
}

func validateTitle(verr *ValidationError, title string) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		verr.add("title", "must not be blank")
		return
	}
	if n := utf8.RuneCountInString(trimmed); n < titleMinLen || n > titleMaxLen {
		verr.add("title", fmt.Sprintf("length must be between %d and %d characters", titleMinLen, titleMaxLen))
	}
}

func validatePriority(verr *ValidationError, priority int) {
	if priority != 0 && (priority < priorityMin || priority > priorityMax) {
		verr.add("priority", fmt.Sprintf("must be between %d and %d", priorityMin, priorityMax))
	}
}

func validateRating(verr *ValidationError, field string, value int) {
	if value != 0 && (value < fmeaMin || value > fmeaMax) {
		verr.add(field, fmt.Sprintf("must be between %d and %d", fmeaMin, fmeaMax))
	}
}

func validateHours(verr *ValidationError, field string, hours float64) {
	if hours < 0 {
		verr.add(field, "must not be negative")
	}
}

// validateCreate checks a typed create payload and normalizes defaults in
// place: blank status becomes draft, skills lists lose empty entries.
func validateCreate(in *CreateInput) error {
	verr := &ValidationError{}

	if !in.Type.Valid() {
		verr.add("type", fmt.Sprintf("unknown work item type %q", in.Type))
		return verr
	}
	validateTitle(verr, in.Title)

	if in.Status == "" {
		in.Status = StatusDraft
	}
	if !statusAllowed(in.Type, in.Status) {
		verr.add("status", fmt.Sprintf("status %q not allowed for type %q", in.Status, in.Type))
	}

	validatePriority(verr, in.Priority)
	validateHours(verr, "estimated_hours", in.EstimatedHours)
	if in.StoryPoints < 0 {
		verr.add("story_points", "must not be negative")
	}
	in.SkillsNeeded = cleanStrings(in.SkillsNeeded)
	in.Steps = cleanStrings(in.Steps)

	if in.Type == TypeRisk {
		validateRating(verr, "severity", in.Severity)
		validateRating(verr, "occurrence", in.Occurrence)
		validateRating(verr, "detection", in.Detection)
	}
	if in.Type == TypeTestRun && !testRunResults[in.Result] {
		verr.add("result", fmt.Sprintf("unknown test run result %q", in.Result))
	}

	return verr.orNil()
}

// validateUpdate checks the sparse fields of an update against the item's
// type. The item passed in already has the update applied.
func validateUpdate(item *WorkItem, u Update) error {
	verr := &ValidationError{}

	if strings.TrimSpace(u.ChangeDescription) == "" {
		verr.add("change_description", "required for audit compliance")
	}
	if u.Title != nil {
		validateTitle(verr, item.Title)
	}
	if u.Status != nil && !statusAllowed(item.Type, item.Status) {
		verr.add("status", fmt.Sprintf("status %q not allowed for type %q", item.Status, item.Type))
	}
	if u.Priority != nil {
		validatePriority(verr, item.Priority)
	}
	if u.EstimatedHours != nil {
		validateHours(verr, "estimated_hours", item.EstimatedHours)
	}
	if u.ActualHours != nil {
		validateHours(verr, "actual_hours", item.ActualHours)
	}
	if u.StoryPoints != nil && item.StoryPoints < 0 {
		verr.add("story_points", "must not be negative")
	}
	if u.Severity != nil {
		validateRating(verr, "severity", item.Severity)
	}
	if u.Occurrence != nil {
		validateRating(verr, "occurrence", item.Occurrence)
	}
	if u.Detection != nil {
		validateRating(verr, "detection", item.Detection)
	}
	if u.Result != nil && item.Type == TypeTestRun && !testRunResults[item.Result] {
		verr.add("result", fmt.Sprintf("unknown test run result %q", item.Result))
	}

	return verr.orNil()
}

// computeRPN derives the risk priority number when all three FMEA ratings
// are present.
func computeRPN(item *WorkItem) {
	if item.Type != TypeRisk {
		return
	}
	if item.Severity >= fmeaMin && item.Occurrence >= fmeaMin && item.Detection >= fmeaMin {
		item.RPN = item.Severity * item.Occurrence * item.Detection
	} else {
		item.RPN = 0
	}
}

func cleanStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
