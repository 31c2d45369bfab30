// internal/pipeline/scheduler_test.go
package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDaily(t *testing.T) {
	tests := []struct {
		now  time.Time
		at   string
		want time.Time
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "00:05", time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC)},
		{time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC), "00:05", time.Date(2025, 1, 2, 0, 5, 0, 0, time.UTC)},
		{time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), "00:05", time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)},
		// Local times are converted to UTC first
		{time.Date(2025, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600)), "00:30", time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := NextDaily(tt.now, tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "now=%v at=%s", tt.now, tt.at)
	}

	_, err := NextDaily(time.Now(), "25:00")
	assert.Error(t, err)
}

func TestSchedulerRunOnStartAndStop(t *testing.T) {
	backend := &fakeBackend{text: "## Summary\nOK: fine\n"}
	app, rec := testApp(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{App: app, Every: time.Hour, RunOnStart: true}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.runs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerTicks(t *testing.T) {
	backend := &fakeBackend{text: "## Summary\nOK: fine\n"}
	app, _ := testApp(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{App: app, Every: 20 * time.Millisecond}
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return backend.calls() >= 2 }, 5*time.Second, 10*time.Millisecond)

	// Run returns only after the in-flight pass finishes writing
	cancel()
	<-done
}

func TestSchedulerInvalidDailyAt(t *testing.T) {
	app, _ := testApp(t, &fakeBackend{})
	s := &Scheduler{App: app, DailyAt: "noon"}
	assert.Error(t, s.Run(context.Background()))
}
