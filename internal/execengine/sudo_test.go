package execengine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript drops a small executable shell script into a temp dir:
// drop an executable shell script into a temp dir so a test can stand a
// fake binary in front of a real exec.Command call.
func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o755))
}

// withFakeSudoOnPath installs a fake "sudo" binary that reads and
// discards stdin (so writeSudoSecret's write never blocks), then exits
// with exitCode, emitting stderrLine on stderr. The real sudo binary is
// never invoked.
func withFakeSudoOnPath(t *testing.T, exitCode int, stderrLine string) {
	t.Helper()
	dir := t.TempDir()
	writeScript(t, dir, "sudo", "#!/bin/sh\ncat >/dev/null\necho '"+stderrLine+"' 1>&2\nexit "+strconv.Itoa(exitCode)+"\n")

	original := os.Getenv("PATH")
	t.Cleanup(func() { _ = os.Setenv("PATH", original) })
	require.NoError(t, os.Setenv("PATH", dir+":"+original))
}

// secretHygieneFixtures are the known secrets fuzzed across every test in
// this file: plain text, shell-metacharacter-laden,
// unicode, and an empty/passwordless case.
var secretHygieneFixtures = []string{
	"hunter2",
	"p@ss'w\"ord$(whoami)`id`",
	"correct-horse-battery-staple-日本語-🔐",
	"",
}

func sudoStepPlan(planID string) installplan.InstallPlan {
	return installplan.InstallPlan{
		PlanID: planID,
		Steps: []installplan.InstallStep{
			{ID: "s1", Kind: installplan.StepSystemPkgs, Label: "install pkgs", Command: []string{"apt-get", "install", "-y", "widget"}, NeedsSudo: true, ExpectedExit: installplan.ExpectZero, Timeout: 5 * time.Second},
		},
	}
}

// TestSudoSecretNeverAppearsInEmittedEvents fuzzes a set of known sudo
// secrets through a real sudo-wrapped step and asserts the secret string
// never surfaces in any log line or stderr_tail the Engine emits, success
// or failure.
func TestSudoSecretNeverAppearsInEmittedEvents(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	for _, exitCode := range []int{0, 1} {
		for _, secret := range secretHygieneFixtures {
			withFakeSudoOnPath(t, exitCode, "authenticating...")

			engine := NewEngine(2, 4)
			ch, err := engine.Execute(context.Background(), sudoStepPlan("plan-hygiene"), secret)
			require.NoError(t, err)

			for _, event := range drain(ch) {
				if secret == "" {
					continue
				}
				assert.NotContains(t, event.Line, secret)
				assert.NotContains(t, event.StderrTail, secret)
			}
		}
	}
}

// TestSudoWrongPasswordSurfacesAsSudoSecretError exercises the wrong/
// missing-password path specifically: the fake sudo emits the stderr
// text real sudo uses for a bad password, and the step must fail with a
// SudoSecretError rather than a generic ExecutionError, with the secret
// still absent from the stderr tail.
func TestSudoWrongPasswordSurfacesAsSudoSecretError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	withFakeSudoOnPath(t, 1, "Sorry, try again.")

	engine := NewEngine(2, 4)
	ch, err := engine.Execute(context.Background(), sudoStepPlan("plan-wrong-password"), "wrong-password")
	require.NoError(t, err)

	var failed *ExecutionEvent
	for _, event := range drain(ch) {
		assert.NotContains(t, event.Line, "wrong-password")
		assert.NotContains(t, event.StderrTail, "wrong-password")
		if event.Kind == EventStepFailed {
			e := event
			failed = &e
		}
	}
	require.NotNil(t, failed)
	assert.True(t, strings.Contains(failed.StderrTail, "Sorry, try again"))

	// The step's own result carries the sudo-specific error kind.
	result := runStep(context.Background(), sudoStepPlan("plan-wrong-password").Steps[0], "wrong-password", 0, make(chan ExecutionEvent, 64))
	var sudoErr *opserr.SudoSecretError
	assert.True(t, errors.As(result.err, &sudoErr))
}

// TestWriteSudoSecretWritesExactlyOnceAndNeverOnEmpty covers the stdin
// plumbing directly: a non-empty secret is written followed by a single
// newline, and an empty (passwordless) secret writes nothing before the
// pipe is closed.
func TestWriteSudoSecretWritesExactlyOnceAndNeverOnEmpty(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, writeSudoSecret(w, "hunter2"))

	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hunter2\n", string(buf[:n]))

	r2, w2, err := os.Pipe()
	require.NoError(t, err)
	defer r2.Close()
	require.NoError(t, writeSudoSecret(w2, ""))

	n2, err := r2.Read(buf)
	assert.Equal(t, 0, n2)
	assert.Error(t, err) // EOF: the pipe was closed with nothing written
}
