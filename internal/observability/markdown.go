package observability

import (
	"fmt"
	"strings"
)

// MarkdownReport renders a run's record stream as markdown, suitable for a
// PR body or an issue comment. Sections with no records are omitted.
func MarkdownReport(l *Log) string {
	records := l.Records()

	var invocations, permissions, commits, reviews, findings []Record
	for _, r := range records {
		switch r.Kind {
		case KindInvocationStart, KindCommandLine:
			invocations = append(invocations, r)
		case KindPermissionRequest, KindPermissionGrant:
			permissions = append(permissions, r)
		case KindCommit:
			commits = append(commits, r)
		case KindReview:
			reviews = append(reviews, r)
		case KindSecurityFinding:
			findings = append(findings, r)
		}
	}

	var md strings.Builder
	md.WriteString("## Spawn-Team Observability\n\n")

	if len(invocations) > 0 {
		md.WriteString("### Agent Invocations\n\n")
		md.WriteString("| Iteration | Role | Agent | Timestamp |\n")
		md.WriteString("|-----------|------|-------|-----------|\n")
		for _, r := range invocations {
			if r.Kind != KindInvocationStart {
				continue
			}
			fmt.Fprintf(&md, "| %d | %s | %s | %s |\n", r.Iteration, r.Role, r.Agent, r.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
		}
		md.WriteString("\n")
	}

	if len(commits) > 0 {
		md.WriteString("### Commits\n\n")
		md.WriteString("| Iteration | Commit | Agent | Pushed |\n")
		md.WriteString("|-----------|--------|-------|--------|\n")
		for _, r := range commits {
			fmt.Fprintf(&md, "| %d | `%s` | %s | %s |\n", r.Iteration, shortHash(r.Hash), r.Agent, pushedIcon(r.Pushed))
		}
		md.WriteString("\n")
	}

	if len(reviews) > 0 {
		md.WriteString("### Reviews\n\n")
		md.WriteString("| Iteration | Phase | Verdict | Suggestions |\n")
		md.WriteString("|-----------|-------|---------|-------------|\n")
		for _, r := range reviews {
			phase := r.Phase
			if phase == "" {
				phase = "General"
			}
			fmt.Fprintf(&md, "| %d | %s | %s | %d |\n", r.Iteration, phase, r.Verdict, r.SuggestionCount)
		}
		md.WriteString("\n")
	}

	if len(permissions) > 0 {
		md.WriteString("### Permission Escalations\n\n")
		for _, r := range permissions {
			verb := "requested"
			if r.Kind == KindPermissionGrant {
				verb = "granted"
			}
			fmt.Fprintf(&md, "- %s %s: `%s`\n", r.PermissionType, verb, r.Resource)
		}
		md.WriteString("\n")
	}

	if len(findings) > 0 {
		md.WriteString("### Security Findings\n\n")
		for _, r := range findings {
			fmt.Fprintf(&md, "- **%s**: %s\n", r.Severity, r.Description)
			if r.Recommendation != "" {
				fmt.Fprintf(&md, "  - Recommendation: %s\n", r.Recommendation)
			}
		}
		md.WriteString("\n")
	}

	return md.String()
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func pushedIcon(pushed bool) string {
	if pushed {
		return "yes"
	}
	return "no"
}
