package observability

import "strings"

// SecurityFinding is one security concern surfaced during a Security
// review phase, derived from the reviewer's suggestions.
type SecurityFinding struct {
	Severity       string `json:"severity"` // critical | high | medium | low
	Description    string `json:"description"`
	File           string `json:"file,omitempty"`
	Recommendation string `json:"recommendation"`
}

var securityKeywords = []string{
	"vulnerability",
	"security",
	"injection",
	"authentication",
	"authorization",
	"secret",
	"credential",
	"sensitive",
}

// ExtractSecurityFindings scans free-form review text line-wise and tags
// any line mentioning a security keyword as a finding, with severity read
// from the line itself (critical/high/medium, defaulting to low).
func ExtractSecurityFindings(text string) []SecurityFinding {
	var findings []SecurityFinding
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, keyword := range securityKeywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			findings = append(findings, SecurityFinding{
				Severity:       severityOf(lower),
				Description:    strings.TrimSpace(line),
				Recommendation: "Review and address security concern",
			})
			break
		}
	}
	return findings
}

func severityOf(lower string) string {
	switch {
	case strings.Contains(lower, "critical"):
		return "critical"
	case strings.Contains(lower, "high"):
		return "high"
	case strings.Contains(lower, "medium"):
		return "medium"
	default:
		return "low"
	}
}
