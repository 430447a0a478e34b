package novel

import (
	"math"
	"testing"
)

func TestScoreReportWeights(t *testing.T) {
	report := ScoreReport(10, 0, 0, 0)
	if math.Abs(report.Overall-3.0) > 1e-9 {
		t.Errorf("plot-only overall = %v, want 3.0", report.Overall)
	}

	report = ScoreReport(8, 8, 8, 8)
	if math.Abs(report.Overall-8.0) > 1e-9 {
		t.Errorf("uniform overall = %v, want 8.0", report.Overall)
	}

	// 30/25/25/20 weighting.
	report = ScoreReport(10, 8, 6, 4)
	want := 10*0.30 + 8*0.25 + 6*0.25 + 4*0.20
	if math.Abs(report.Overall-want) > 1e-9 {
		t.Errorf("overall = %v, want %v", report.Overall, want)
	}
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{9.5, "A"},
		{9.0, "A"},
		{8.9, "B"},
		{7.5, "B"},
		{7.4, "C"},
		{6.0, "C"},
		{5.9, "D"},
		{4.0, "D"},
		{3.9, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		if got := GradeFor(tt.score); got != tt.want {
			t.Errorf("GradeFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestBuildConsistencyReport(t *testing.T) {
	t.Run("no issues", func(t *testing.T) {
		report := BuildConsistencyReport(nil)
		if report.Score != 10 || report.Severity != "" {
			t.Errorf("clean report = %+v", report)
		}
	})

	t.Run("severity is the maximum", func(t *testing.T) {
		report := BuildConsistencyReport([]ConsistencyIssue{
			{Category: CategoryPlot, Severity: SeverityLow},
			{Category: CategoryWorld, Severity: SeverityHigh},
			{Category: CategoryCharacter, Severity: SeverityMedium},
		})
		if report.Severity != SeverityHigh {
			t.Errorf("severity = %q, want high", report.Severity)
		}
	})

	t.Run("score drops per issue and floors at zero", func(t *testing.T) {
		report := BuildConsistencyReport([]ConsistencyIssue{
			{Severity: SeverityLow},
			{Severity: SeverityMedium},
		})
		if math.Abs(report.Score-8.0) > 1e-9 {
			t.Errorf("score = %v, want 8.0", report.Score)
		}

		var many []ConsistencyIssue
		for i := 0; i < 5; i++ {
			many = append(many, ConsistencyIssue{Severity: SeverityHigh})
		}
		if report := BuildConsistencyReport(many); report.Score != 0 {
			t.Errorf("score = %v, want floor of 0", report.Score)
		}
	})
}

func TestOrphanRelationships(t *testing.T) {
	cast := []CharacterProfile{{Name: "Mara", Role: "protagonist"}, {Name: "Iven", Role: "antagonist"}}
	edges := []Relationship{
		{From: "Mara", To: "Iven", Kind: "rival"},
		{From: "Mara", To: "Ghost", Kind: "mentor"},
		{From: "Unknown", To: "Iven", Kind: "ally"},
	}

	orphans := OrphanRelationships(cast, edges)
	if len(orphans) != 2 {
		t.Fatalf("orphans = %v, want 2", orphans)
	}
	for _, o := range orphans {
		if o.From == "Mara" && o.To == "Iven" {
			t.Error("valid edge flagged as orphan")
		}
	}
}
