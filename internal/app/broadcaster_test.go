package app

import (
	"testing"

	"gamification-service/internal/domain"
)

func TestBroadcasterDropsStaleEventsForSlowSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 40; i++ {
		b.Publish(domain.ScoreEvent{PointsEarned: i})
	}

	var last domain.ScoreEvent
	for len(ch) > 0 {
		last = <-ch
	}
	if last.PointsEarned != 39 {
		t.Fatalf("expected newest event to survive, got %+v", last)
	}
}

func TestBroadcasterCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if b.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Len())
	}
}
