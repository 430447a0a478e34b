package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/vampirenirmal/novelforge/internal/novel"
)

func testChapter(n int) novel.ChapterContent {
	return novel.ChapterContent{
		Number:    n,
		Title:     "A Title",
		Content:   "Prose goes here.",
		WordCount: 3,
		Summary:   "summary",
	}
}

// Both implementations honor the same contract, so they share the suite.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing session yields ErrNotFound", func(t *testing.T) {
		if _, err := store.LoadNovel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadNovel: %v, want ErrNotFound", err)
		}
		if _, err := store.LoadChapters(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadChapters: %v, want ErrNotFound", err)
		}
	})

	t.Run("chapters round-trip in order", func(t *testing.T) {
		for _, n := range []int{2, 1, 3} {
			if err := store.SaveChapter(ctx, "sess-a", testChapter(n)); err != nil {
				t.Fatalf("SaveChapter %d: %v", n, err)
			}
		}

		got, err := store.LoadChapters(ctx, "sess-a")
		if err != nil {
			t.Fatalf("LoadChapters: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("loaded %d chapters, want 3", len(got))
		}
		for i, ch := range got {
			if ch.Number != i+1 {
				t.Errorf("position %d holds chapter %d", i, ch.Number)
			}
		}
	})

	t.Run("resaving a chapter replaces it", func(t *testing.T) {
		ch := testChapter(1)
		if err := store.SaveChapter(ctx, "sess-b", ch); err != nil {
			t.Fatal(err)
		}
		ch.Summary = "revised"
		if err := store.SaveChapter(ctx, "sess-b", ch); err != nil {
			t.Fatal(err)
		}

		got, err := store.LoadChapters(ctx, "sess-b")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Summary != "revised" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("novel round-trips", func(t *testing.T) {
		n := novel.Novel{
			Chapters:   []novel.ChapterContent{testChapter(1)},
			TotalWords: 3,
			Quality:    novel.QualityReport{Overall: 8, Grade: "B"},
		}
		if err := store.SaveNovel(ctx, "sess-c", n); err != nil {
			t.Fatalf("SaveNovel: %v", err)
		}

		got, err := store.LoadNovel(ctx, "sess-c")
		if err != nil {
			t.Fatalf("LoadNovel: %v", err)
		}
		if got.TotalWords != 3 || got.Quality.Grade != "B" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("characters save", func(t *testing.T) {
		cast := []novel.CharacterProfile{{Name: "Mara", Role: "protagonist"}}
		if err := store.SaveCharacters(ctx, "sess-d", cast); err != nil {
			t.Errorf("SaveCharacters: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestFileSystemStore(t *testing.T) {
	runStoreSuite(t, NewFileSystemStore(t.TempDir()))
}

func TestFileSystemStoreRejectsTraversal(t *testing.T) {
	store := NewFileSystemStore(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"../escape", "a/b", "/abs", "..", "."} {
		if err := store.SaveChapter(ctx, id, testChapter(1)); err == nil {
			t.Errorf("session id %q accepted", id)
		}
	}
}
