package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/audit"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
	"github.com/spf13/cobra"
)

// Process exit codes for the install subcommand.
const (
	exitGeneric        = 1
	exitUsage          = 2
	exitNoViableMethod = 3
	exitCancelled      = 4
	exitRemediation    = 5
	exitUnhandled      = 6
)

// exitError carries an explicit process exit code up to main. msg may be
// empty when the command already printed everything the operator needs.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

type installFlags struct {
	configPath     string
	sudoSecretFile string
}

func newInstallCmd() *cobra.Command {
	flags := &installFlags{}

	cmd := &cobra.Command{
		Use:   "install <tool>",
		Short: "Resolve and execute an install plan for one tool",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &exitError{code: exitUsage, msg: "usage: controlplane install <tool>"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "controlplane.yaml", "path to the server settings file")
	cmd.Flags().StringVar(&flags.sudoSecretFile, "sudo-secret-file", "", "file containing the sudo password for privileged steps")

	return cmd
}

func runInstall(ctx context.Context, flags *installFlags, tool string) error {
	c, err := buildCore(flags.configPath)
	if err != nil {
		return err
	}
	defer c.Close()

	profile := c.profiler.Current(ctx)

	plan, err := c.resolver.Resolve(ctx, tool, profile)
	if err != nil {
		var planErr *opserr.PlanResolutionError
		if errors.As(err, &planErr) {
			return &exitError{code: exitNoViableMethod, msg: err.Error()}
		}
		return err
	}

	if plan.AlreadyInstalled {
		fmt.Printf("%s is already installed\n", tool)
		return nil
	}

	if plan.AdvisoryEphemeral {
		fmt.Println("note: this host looks like an ephemeral container; installed tools will not survive it")
	}

	sudoSecret, err := readSudoSecret(flags.sudoSecretFile, plan.NeedsSudoOverall)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := c.engine.Execute(ctx, plan, sudoSecret)
	if err != nil {
		return err
	}

	lastFailedIdx := -1
	var lastExitCode int
	var lastStderrTail string
	var done execengine.ExecutionEvent

	for event := range events {
		switch event.Kind {
		case execengine.EventStepStart:
			fmt.Printf("[%d/%d] %s\n", event.StepIdx+1, event.Total, event.Label)
		case execengine.EventLog:
			fmt.Println("  " + event.Line)
		case execengine.EventStepFailed:
			lastFailedIdx = event.StepIdx
			lastExitCode = event.ExitCode
			lastStderrTail = event.StderrTail
			fmt.Printf("step %d failed (exit %d)\n", event.StepIdx+1, event.ExitCode)
		case execengine.EventDone:
			done = event
		}
	}

	recordInstallAudit(c, plan.ToolID, plan.PlanID, done)

	if done.OK {
		fmt.Printf("%s installed\n", tool)
		return nil
	}
	if done.Cancelled {
		return &exitError{code: exitCancelled, msg: "install cancelled"}
	}

	recipe, err := c.registry.Lookup(plan.ToolID)
	if err != nil {
		return &exitError{code: exitUnhandled, msg: "install failed"}
	}

	methodFamily := ""
	if lastFailedIdx >= 0 && lastFailedIdx < len(plan.Steps) {
		methodFamily = plan.Steps[lastFailedIdx].MethodFamily
	}

	handler, layer, ok := c.matcher.Match(recipe, methodFamily, lastStderrTail, lastExitCode)
	if !ok {
		return &exitError{code: exitUnhandled, msg: "install failed: " + strings.TrimSpace(lastTail(lastStderrTail))}
	}

	response := c.planner.Build(ctx, handler, layer, profile, nil)
	printRemediation(response)
	return &exitError{code: exitRemediation}
}

// readSudoSecret loads the operator-provided sudo password from the
// named file. The secret is never taken from the environment or echoed;
// a plan that needs sudo but has no secret file still runs, relying on
// passwordless sudo.
func readSudoSecret(path string, needed bool) (string, error) {
	if path == "" || !needed {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read sudo secret file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func recordInstallAudit(c *core, toolID, planID string, done execengine.ExecutionEvent) {
	entry := audit.Entry{
		Timestamp:   time.Now(),
		Actor:       "operator",
		Action:      "install",
		Target:      toolID,
		AfterState:  map[string]interface{}{"ok": done.OK, "cancelled": done.Cancelled},
		OperationID: planID,
	}
	if err := c.audit.Record(entry); err != nil {
		c.log.Error(err, "failed to append audit entry")
	}
}

func printRemediation(response execengine.RemediationResponse) {
	fmt.Printf("install failed: %s\n", response.Failure.Label)
	if response.Failure.Description != "" {
		fmt.Println(response.Failure.Description)
	}
	fmt.Println("options:")
	for _, opt := range response.Options {
		marker := " "
		if opt.Recommended {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s (%s risk, %s", marker, opt.Label, opt.Risk, opt.Availability)
		if opt.LockReason != "" {
			line += ": " + opt.LockReason
		}
		line += ")"
		fmt.Println(line)
	}
	fmt.Printf("fallback: %s\n", strings.Join(response.Fallback.Actions, ", "))
}

func lastTail(tail string) string {
	lines := strings.Split(strings.TrimSpace(tail), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
