package systemprofile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCachedProfilerReusesWithinTTL(t *testing.T) {
	t.Parallel()

	var calls int32
	detector := &Detector{
		lookPath:   func(string) (string, error) { return "", nil },
		runCommand: func(context.Context, string, ...string) (string, error) { atomic.AddInt32(&calls, 1); return "", nil },
	}

	cp := NewCachedProfiler(detector, 50*time.Millisecond)
	first := cp.Current(context.Background())
	second := cp.Current(context.Background())

	require.Equal(t, first.DetectedAt, second.DetectedAt)
}

func TestCachedProfilerRefreshesAfterTTL(t *testing.T) {
	t.Parallel()

	detector := &Detector{
		lookPath:   func(string) (string, error) { return "", nil },
		runCommand: func(context.Context, string, ...string) (string, error) { return "", nil },
	}

	cp := NewCachedProfiler(detector, 5*time.Millisecond)
	first := cp.Current(context.Background())
	time.Sleep(10 * time.Millisecond)
	second := cp.Current(context.Background())

	require.True(t, second.DetectedAt.After(first.DetectedAt))
}

func TestCachedProfilerInvalidateForcesRefresh(t *testing.T) {
	t.Parallel()

	detector := &Detector{
		lookPath:   func(string) (string, error) { return "", nil },
		runCommand: func(context.Context, string, ...string) (string, error) { return "", nil },
	}

	cp := NewCachedProfiler(detector, time.Minute)
	first := cp.Current(context.Background())
	cp.Invalidate()
	second := cp.Current(context.Background())

	require.True(t, second.DetectedAt.After(first.DetectedAt) || second.DetectedAt.Equal(first.DetectedAt))
}
