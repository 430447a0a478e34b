package session

import (
	"testing"
)

func TestProgressIsMonotonic(t *testing.T) {
	s := newSession(Request{Premise: "a premise long enough", TargetWords: 20000})

	s.setStage("outline", progressOutline)
	if got := s.Snapshot().Progress; got != progressOutline {
		t.Fatalf("progress = %d, want %d", got, progressOutline)
	}

	// An internal retry reports an earlier stage; the bar must not move back.
	s.setStage("outline retry", progressConcept)
	snap := s.Snapshot()
	if snap.Progress != progressOutline {
		t.Errorf("progress = %d, regressed below %d", snap.Progress, progressOutline)
	}
	if snap.Stage != "outline retry" {
		t.Errorf("stage = %q, stage text should still update", snap.Stage)
	}
}

func TestChapterProgressBand(t *testing.T) {
	tests := []struct {
		done, planned int
		want          int
	}{
		{0, 10, 30},
		{5, 10, 60},
		{10, 10, 90},
		{12, 10, 90}, // overrun chapters never push past the band
		{0, 0, 30},
	}
	for _, tt := range tests {
		if got := chapterProgress(tt.done, tt.planned); got != tt.want {
			t.Errorf("chapterProgress(%d, %d) = %d, want %d", tt.done, tt.planned, got, tt.want)
		}
	}
}

func TestCancelFlag(t *testing.T) {
	s := newSession(Request{Premise: "a premise long enough", TargetWords: 20000})
	if s.Cancelled() {
		t.Fatal("fresh session reports cancelled")
	}
	s.Cancel()
	if !s.Cancelled() {
		t.Fatal("Cancel did not set the flag")
	}
	// Idempotent.
	s.Cancel()
	if !s.Cancelled() {
		t.Fatal("second Cancel cleared the flag")
	}
}

func TestResultOnlyAfterFinish(t *testing.T) {
	s := newSession(Request{Premise: "a premise long enough", TargetWords: 20000})
	if _, ok := s.Result(); ok {
		t.Fatal("result available before completion")
	}

	s.fail(ErrBusy)
	if _, ok := s.Result(); ok {
		t.Fatal("failed session has a result")
	}
	if snap := s.Snapshot(); snap.Status != StatusFailed || snap.Error == "" {
		t.Errorf("snapshot = %+v", snap)
	}
}
