package execengine

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan ExecutionEvent) []ExecutionEvent {
	var events []ExecutionEvent
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestExecuteSuccessfulPlan(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	plan := installplan.InstallPlan{
		PlanID: "plan-1",
		Steps: []installplan.InstallStep{
			{ID: "s1", Kind: installplan.StepInstallTarget, Label: "echo", Command: []string{"echo", "hello"}, ExpectedExit: installplan.ExpectZero, Timeout: 5 * time.Second},
			{ID: "verify", Kind: installplan.StepVerify, Label: "verify", Command: []string{"true"}, ExpectedExit: installplan.ExpectZero, Timeout: 5 * time.Second},
		},
	}

	engine := NewEngine(2, 4)
	ch, err := engine.Execute(context.Background(), plan, "")
	require.NoError(t, err)

	events := drain(ch)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Kind)
	assert.True(t, last.OK)
	assert.False(t, last.Cancelled)

	var sawLog bool
	for _, e := range events {
		if e.Kind == EventLog && e.Line == "hello" {
			sawLog = true
		}
	}
	assert.True(t, sawLog)
}

func TestExecuteFailingStepEmitsStepFailedThenDone(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	plan := installplan.InstallPlan{
		PlanID: "plan-2",
		Steps: []installplan.InstallStep{
			{ID: "s1", Kind: installplan.StepInstallTarget, Label: "fail", Command: []string{"sh", "-c", "echo boom >&2; exit 1"}, ExpectedExit: installplan.ExpectZero, Timeout: 5 * time.Second},
			{ID: "verify", Kind: installplan.StepVerify, Label: "verify", Command: []string{"true"}, ExpectedExit: installplan.ExpectZero, Timeout: 5 * time.Second},
		},
	}

	engine := NewEngine(2, 4)
	ch, err := engine.Execute(context.Background(), plan, "")
	require.NoError(t, err)

	events := drain(ch)
	require.GreaterOrEqual(t, len(events), 2)

	var failedEvent, doneEvent *ExecutionEvent
	for i := range events {
		if events[i].Kind == EventStepFailed {
			failedEvent = &events[i]
		}
		if events[i].Kind == EventDone {
			doneEvent = &events[i]
		}
	}

	require.NotNil(t, failedEvent)
	assert.Equal(t, 1, failedEvent.ExitCode)
	assert.Contains(t, failedEvent.StderrTail, "boom")

	require.NotNil(t, doneEvent)
	assert.False(t, doneEvent.OK)
	assert.False(t, doneEvent.Cancelled)

	// verify step must never have run after a failure.
	for _, e := range events {
		assert.NotEqual(t, "verify", e.Label)
	}
}

func TestExecuteTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	plan := installplan.InstallPlan{
		PlanID: "plan-3",
		Steps: []installplan.InstallStep{
			{ID: "s1", Kind: installplan.StepInstallTarget, Label: "slow", Command: []string{"sleep", "5"}, ExpectedExit: installplan.ExpectZero, Timeout: 100 * time.Millisecond},
		},
	}

	engine := NewEngine(2, 4)
	ch, err := engine.Execute(context.Background(), plan, "")
	require.NoError(t, err)

	events := drain(ch)
	var failedEvent *ExecutionEvent
	for i := range events {
		if events[i].Kind == EventStepFailed {
			failedEvent = &events[i]
		}
	}
	require.NotNil(t, failedEvent)
	assert.Contains(t, failedEvent.StderrTail, "timed out")
}

func TestExecuteCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	plan := installplan.InstallPlan{
		PlanID: "plan-4",
		Steps: []installplan.InstallStep{
			{ID: "s1", Kind: installplan.StepInstallTarget, Label: "slow", Command: []string{"sleep", "5"}, ExpectedExit: installplan.ExpectZero, Timeout: 10 * time.Second},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := NewEngine(2, 4)
	ch, err := engine.Execute(ctx, plan, "")
	require.NoError(t, err)

	time.AfterFunc(50*time.Millisecond, cancel)

	events := drain(ch)
	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Kind)
	assert.True(t, last.Cancelled)
	assert.False(t, last.OK)
}

func TestExecuteRejectsWhenQueueFull(t *testing.T) {
	engine := NewEngine(1, 0)
	engine.maxQueue = 0

	_, err := engine.Execute(context.Background(), installplan.InstallPlan{}, "")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestExecutePostEnvStepNeverRunsAsSubprocess(t *testing.T) {
	plan := installplan.InstallPlan{
		PlanID: "plan-5",
		Steps: []installplan.InstallStep{
			{ID: "post", Kind: installplan.StepPostEnv, Label: "advisory"},
		},
	}

	engine := NewEngine(2, 4)
	ch, err := engine.Execute(context.Background(), plan, "")
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 3) // step_start, step_done, done
	assert.Equal(t, EventStepDone, events[1].Kind)
	assert.Equal(t, EventDone, events[2].Kind)
	assert.True(t, events[2].OK)
}
