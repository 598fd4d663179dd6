package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestTranscriptStoreAppendAndList(t *testing.T) {
	s, err := NewTranscriptStore(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	for _, row := range [][2]string{{"user", "plan please"}, {"assistant", `{"goal":"x"}`}, {"user", "evaluate"}} {
		if err := s.Append(ctx, "task-1", row[0], row[1]); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Append(ctx, "task-2", "user", "other"); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, "task-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Content != "plan please" || all[2].Content != "evaluate" {
		t.Errorf("entries not in chronological order: %+v", all)
	}

	last, err := s.List(ctx, "task-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0].Role != "assistant" || last[1].Content != "evaluate" {
		t.Errorf("unexpected tail: %+v", last)
	}
}

func TestTranscriptStoreDelete(t *testing.T) {
	s, err := NewTranscriptStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Append(ctx, "task-1", "user", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "task-1"); err != nil {
		t.Fatal(err)
	}
	entries, err := s.List(ctx, "task-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries after delete, got %d", len(entries))
	}
}
