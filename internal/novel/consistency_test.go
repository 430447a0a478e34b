package novel

import (
	"context"
	"strings"
	"testing"
)

func TestCheckReportsOrphanRelationships(t *testing.T) {
	gen := &fixedGen{content: `{"issues": []}`}
	checker := NewConsistencyChecker(gen)

	cast := []CharacterProfile{
		{Name: "Mara", Role: "clerk", Personality: []string{"meticulous", "wary"}},
		{Name: "Deluca", Role: "magistrate"},
	}
	chapter := ChapterContent{Number: 1, Content: "some prose"}

	t.Run("intact edges raise no issues", func(t *testing.T) {
		edges := []Relationship{{From: "Mara", To: "Deluca", Kind: "rival"}}
		report, err := checker.Check(context.Background(), View{}, cast, edges, chapter)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if len(report.Issues) != 0 {
			t.Errorf("issues = %v, want none", report.Issues)
		}
	})

	t.Run("edge to a missing character becomes an issue", func(t *testing.T) {
		edges := []Relationship{
			{From: "Mara", To: "Deluca", Kind: "rival"},
			{From: "Mara", To: "Ghost", Kind: "mentor"},
		}
		report, err := checker.Check(context.Background(), View{}, cast, edges, chapter)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if len(report.Issues) != 1 {
			t.Fatalf("issues = %v, want exactly the orphan edge", report.Issues)
		}
		issue := report.Issues[0]
		if issue.Category != CategoryCharacter || issue.Severity != SeverityLow {
			t.Errorf("issue = %+v, want character/low", issue)
		}
		if !strings.Contains(issue.Description, "Ghost") {
			t.Errorf("description %q does not name the missing character", issue.Description)
		}
		if report.Severity != SeverityLow {
			t.Errorf("report severity = %q, want %q", report.Severity, SeverityLow)
		}
	})
}

func TestCheckPromptIncludesProfiles(t *testing.T) {
	gen := &fixedGen{content: `{"issues": []}`}
	checker := NewConsistencyChecker(gen)

	cast := []CharacterProfile{
		{Name: "Mara", Role: "clerk", Personality: []string{"meticulous", "wary"}},
	}
	if _, err := checker.Check(context.Background(), View{}, cast, nil, ChapterContent{Number: 2, Content: "prose"}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	for _, want := range []string{"Mara", "clerk", "meticulous"} {
		if !strings.Contains(gen.lastPrompt, want) {
			t.Errorf("prompt missing %q from the character profiles", want)
		}
	}
}
