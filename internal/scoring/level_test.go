package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateLevelBoundaries(t *testing.T) {
	cases := map[int]int{
		0:    1,
		99:   1,
		100:  2,
		299:  2,
		300:  3,
		599:  3,
		600:  4,
		999:  4,
		1000: 5,
		1499: 5,
		1500: 6,
		5499: 13,
		5500: 14,
		-20:  1,
	}
	for points, want := range cases {
		assert.Equal(t, want, CalculateLevel(points), "points=%d", points)
	}
}

func TestCalculateLevelIsMonotonic(t *testing.T) {
	prev := CalculateLevel(0)
	for p := 1; p <= 10000; p++ {
		got := CalculateLevel(p)
		if got < prev {
			t.Fatalf("level dropped from %d to %d at %d points", prev, got, p)
		}
		prev = got
	}
}
