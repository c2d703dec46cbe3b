package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"2d", 48 * time.Hour, true},
		{" 5M ", 5 * time.Minute, true},
		{"", 0, false},
		{"m", 0, false},
		{"0s", 0, false},
		{"-1m", 0, false},
		{"1w", 0, false},
		{"1.5h", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseIntervalDuration(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestSchedulerRunsUntilContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(ctx, "test", 10*time.Millisecond)

	var runs int64
	done := make(chan struct{})
	go func() {
		s.Start(func() {
			if atomic.AddInt64(&runs, 1) >= 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("scheduler did not stop after context cancel")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt64(&runs), int64(3))
}

func TestSchedulerRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewIntervalScheduler(ctx, "test", time.Hour)
	s.RunImmediately = true

	ran := make(chan struct{})
	go s.Start(func() {
		close(ran)
		cancel()
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate run did not fire")
	}
}

func TestSchedulerContainsPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(ctx, "test", 5*time.Millisecond)

	var runs int64
	done := make(chan struct{})
	go func() {
		s.Start(func() {
			if atomic.AddInt64(&runs, 1) >= 2 {
				cancel()
			}
			panic("boom")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("scheduler died on task panic")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt64(&runs), int64(2))
}

func TestSchedulerRejectsInvalidInterval(t *testing.T) {
	s := NewIntervalScheduler(context.Background(), "test", 0)
	// Returns immediately instead of spinning.
	s.Start(func() { t.Fatal("task must not run") })
}
