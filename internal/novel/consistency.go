package novel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// Issue severities, ordered.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Issue categories.
const (
	CategoryCharacter = "character"
	CategoryPlot      = "plot"
	CategoryWorld     = "world"
)

var severityRank = map[string]int{
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

var severityPenalty = map[string]float64{
	SeverityLow:    0.5,
	SeverityMedium: 1.5,
	SeverityHigh:   3.0,
}

// ConsistencyChecker compares a freshly generated chapter against the
// committed narrative state. Its report is advisory: issues are logged and
// attached to the chapter, but never block the commit.
type ConsistencyChecker struct {
	gen    TextGenerator
	logger *slog.Logger
}

func NewConsistencyChecker(gen TextGenerator) *ConsistencyChecker {
	return &ConsistencyChecker{
		gen:    gen,
		logger: slog.Default().With("component", "consistency_checker"),
	}
}

// Check evaluates a chapter against established facts: character profiles
// and behavior, plot continuity, and world rules. Relationship edges whose
// endpoints are missing from the cast are reported as issues. A model or
// parse failure returns an error; the caller logs it and continues, since
// the check must never stop the pipeline.
func (c *ConsistencyChecker) Check(ctx context.Context, view View, cast []CharacterProfile, edges []Relationship, chapter ChapterContent) (ConsistencyReport, error) {
	resp, err := c.gen.Generate(ctx, provider.Request{
		Prompt:       c.buildPrompt(view, cast, chapter),
		SystemPrompt: "You are a continuity editor. You always answer with valid JSON.",
		MaxTokens:    1000,
		Temperature:  0.2,
	})
	if err != nil {
		return ConsistencyReport{}, fmt.Errorf("consistency check for chapter %d: %w", chapter.Number, err)
	}

	var parsed struct {
		Issues []ConsistencyIssue `json:"issues"`
	}
	if err := ParseStructured(resp.Content, &parsed); err != nil {
		return ConsistencyReport{}, fmt.Errorf("consistency check for chapter %d: %w", chapter.Number, err)
	}

	issues := parsed.Issues
	for _, edge := range OrphanRelationships(cast, edges) {
		issues = append(issues, ConsistencyIssue{
			Category:    CategoryCharacter,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("relationship %s -> %s (%s) references a character missing from the cast", edge.From, edge.To, edge.Kind),
		})
	}

	report := BuildConsistencyReport(issues)
	if len(report.Issues) > 0 {
		c.logger.Warn("consistency issues found",
			"chapter", chapter.Number,
			"count", len(report.Issues),
			"severity", report.Severity,
			"score", report.Score)
	}
	return report, nil
}

// BuildConsistencyReport derives the aggregate severity and score from raw
// issues. Severity is the maximum across issues; the score starts at 10 and
// drops by a per-severity penalty.
func BuildConsistencyReport(issues []ConsistencyIssue) ConsistencyReport {
	report := ConsistencyReport{Issues: issues, Score: 10.0}
	for _, issue := range issues {
		if severityRank[issue.Severity] > severityRank[report.Severity] {
			report.Severity = issue.Severity
		}
		report.Score -= severityPenalty[issue.Severity]
	}
	if report.Score < 0 {
		report.Score = 0
	}
	if len(issues) == 0 {
		report.Severity = ""
	}
	return report
}

func (c *ConsistencyChecker) buildPrompt(view View, cast []CharacterProfile, chapter ChapterContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review chapter %d of a novel in progress for continuity errors.\n\n", chapter.Number)

	for _, p := range cast {
		fmt.Fprintf(&b, "Character %s (%s): %s\n", p.Name, p.Role, strings.Join(p.Personality, ", "))
	}
	if len(view.World.Rules) > 0 {
		b.WriteString("Established world rules:\n")
		for _, r := range view.World.Rules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	for name, cs := range view.CharacterStates {
		fmt.Fprintf(&b, "Character %s was last: %s (mood: %s, at: %s)\n",
			name, cs.LastDevelopment, cs.Mood, cs.Location)
	}
	if recent := lastN(view.Summaries, 2); len(recent) > 0 {
		b.WriteString("Previous chapters:\n")
		for _, s := range recent {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	b.WriteString("\nChapter text:\n")
	b.WriteString(chapter.Content)
	b.WriteString("\n\nReport every contradiction with established facts. Categories: character, plot, world. Severities: low, medium, high.\n")
	b.WriteString("Respond with JSON:\n")
	b.WriteString(`{"issues": [{"category": "character", "description": "what contradicts what", "severity": "medium"}]}`)
	return b.String()
}
