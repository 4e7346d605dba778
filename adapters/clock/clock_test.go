package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/artpar/pocket/adapters/clock"
)

func TestReal_NowIsUTC(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	if got.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", got.Location())
	}
	if got.Before(before.Add(-time.Millisecond)) || got.After(after.Add(time.Millisecond)) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	tests := []struct {
		name string
		step func() time.Time
		want time.Time
	}{
		{"stable", c.Now, start},
		{"advance", func() time.Time { return c.Advance(90 * time.Minute) }, start.Add(90 * time.Minute)},
		{"rewind", func() time.Time { return c.Advance(-30 * time.Minute) }, start.Add(time.Hour)},
		{"set", func() time.Time { c.Set(start.AddDate(1, 0, 0)); return c.Now() }, start.AddDate(1, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step(); !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFake_Concurrent(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			c.Now()
		}()
	}
	wg.Wait()

	if got := c.Now(); !got.Equal(time.Unix(100, 0)) {
		t.Errorf("Now() = %v, want 100s after epoch", got)
	}
}
