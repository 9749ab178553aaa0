package domain

import (
	"testing"
	"time"
)

func TestBadgeSetMergeKeepsExistingEntries(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	owned := BadgeSet{{Name: "Level 5", Icon: "⭐", EarnedAt: first}}
	merged, added := owned.Merge([]Badge{
		{Name: "Level 5", Icon: "⭐", EarnedAt: later},
		{Name: "Dedicated Learner", Icon: "📚", EarnedAt: later},
		{Name: "Dedicated Learner", Icon: "📚", EarnedAt: later.Add(time.Hour)},
	})

	if len(merged) != 2 {
		t.Fatalf("expected 2 badges, got %+v", merged)
	}
	if merged[0].Name != "Level 5" || !merged[0].EarnedAt.Equal(first) {
		t.Fatalf("expected original Level 5 entry to win, got %+v", merged[0])
	}
	if merged[1].Name != "Dedicated Learner" || !merged[1].EarnedAt.Equal(later) {
		t.Fatalf("expected first Dedicated Learner occurrence, got %+v", merged[1])
	}
	if len(added) != 1 || added[0].Name != "Dedicated Learner" {
		t.Fatalf("expected one added badge, got %+v", added)
	}
	if len(owned) != 1 {
		t.Fatalf("merge must not mutate the receiver")
	}
}

func TestProgressRecordApply(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := ProgressRecord{UserID: "u1", ContentID: "c1"}.Apply(40, 50, at)
	p = p.Apply(30, 50, at.Add(time.Minute))

	if p.BestScore != 40 || p.AttemptCount != 2 {
		t.Fatalf("expected best 40 after 2 attempts, got %+v", p)
	}
	if !p.LastCompletedAt.Equal(at.Add(time.Minute)) {
		t.Fatalf("expected last completion to move forward, got %v", p.LastCompletedAt)
	}
}

func TestParseContentType(t *testing.T) {
	got, err := ParseContentType("mini-game")
	if err != nil || got != ContentMiniGame {
		t.Fatalf("expected MINI_GAME, got %q (%v)", got, err)
	}
	if _, err := ParseContentType("essay"); err != ErrInvalidContentType {
		t.Fatalf("expected invalid content type, got %v", err)
	}
}
