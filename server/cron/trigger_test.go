package cron

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/scriptdash/logging"
)

// mockRunnable records the scripts it is asked to run.
type mockRunnable struct {
	runCount atomic.Int32
	runErr   error

	mu      sync.Mutex
	scripts []string
	values  []map[string]string
}

func (m *mockRunnable) RunWithValues(script string, values map[string]string) error {
	m.runCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, script)
	m.values = append(m.values, values)
	return m.runErr
}

// everySchedule fires at a fixed interval, well below cron's one minute
// resolution.
type everySchedule time.Duration

func (e everySchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func TestNewCronTrigger(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily at 2am", spec: "0 2 * * *"},
		{name: "every hour", spec: "0 * * * *"},
		{name: "weekdays", spec: "0 7 * * 1-5"},
		{name: "empty", spec: "", wantErr: true},
		{name: "wrong format", spec: "not a cron spec", wantErr: true},
		{name: "too few fields", spec: "0 2 *", wantErr: true},
		{name: "invalid value", spec: "60 2 * * *", wantErr: true},
		{name: "seconds field", spec: "0 0 2 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewCronTrigger(tt.spec, func() error { return nil }, logging.Discard())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec, trigger.spec)
		})
	}
}

func TestCronTrigger_NextRun(t *testing.T) {
	trigger, err := NewCronTrigger("0 2 * * *", func() error { return nil }, logging.Discard())
	require.NoError(t, err)

	nextRun := trigger.NextRun()
	assert.True(t, nextRun.After(time.Now()), "next run should be in the future")
	assert.Equal(t, 2, nextRun.Hour())
	assert.Equal(t, 0, nextRun.Minute())
}

func TestCronTrigger_Fires(t *testing.T) {
	var calls atomic.Int32
	trigger := &CronTrigger{
		spec:     "test",
		schedule: everySchedule(10 * time.Millisecond),
		callback: func() error {
			calls.Add(1)
			return nil
		},
		logger: logging.Discard(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger.Start(ctx)

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 5*time.Second, 5*time.Millisecond)
}

func TestCronTrigger_CancellationStopsLoop(t *testing.T) {
	var calls atomic.Int32
	trigger, err := NewCronTrigger("* * * * *", func() error {
		calls.Add(1)
		return nil
	}, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(0), calls.Load())
}
