package generation

import (
	"fmt"
	"strings"
)

// RequiredSections must appear in every draft.
var RequiredSections = []string{"Purpose", "Structure", "Key Rules", "Exceptions"}

var placeholderPhrases = []string{"[What the table", "[How the table", "[Main rules"}

const (
	minDraftLength = 100
	maxDraftLength = 2000
)

// Validation scores how well a draft follows the requested format.
type Validation struct {
	Valid       bool     `json:"is_valid"`
	Score       float64  `json:"score"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ValidateDraft checks sections, length and leftover template placeholders.
// The result is informational and never blocks a draft.
func ValidateDraft(text string) Validation {
	v := Validation{Score: 1.0}

	var missing []string
	for _, section := range RequiredSections {
		if !strings.Contains(text, "**"+section+"**") && !strings.Contains(text, section+":") {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		v.Issues = append(v.Issues, fmt.Sprintf("Missing sections: %s", strings.Join(missing, ", ")))
		v.Suggestions = append(v.Suggestions, "Regenerate or add the missing sections during editing")
		v.Score *= 0.8
	}

	switch n := len(text); {
	case n < minDraftLength:
		v.Issues = append(v.Issues, "Draft is too short")
		v.Score *= 0.7
	case n > maxDraftLength:
		v.Issues = append(v.Issues, "Draft is very long")
		v.Score *= 0.9
	}

	for _, phrase := range placeholderPhrases {
		if strings.Contains(text, phrase) {
			v.Issues = append(v.Issues, "Contains placeholder text")
			v.Score *= 0.6
			break
		}
	}

	v.Valid = len(v.Issues) == 0 && v.Score >= 0.7
	return v
}
