package execengine

import (
	"io"
	"regexp"
)

// sudoAuthFailurePattern recognizes sudo's own stderr text for a wrong
// or missing password. Checked only for steps that needed sudo, so it
// never fires on unrelated non-zero exits.
var sudoAuthFailurePattern = regexp.MustCompile(`(?i)sorry, try again|incorrect password attempt|a password is required|no password was provided`)

// sudoArgs wraps a step's command with sudo, using -S so the secret (if
// any) is read from stdin exactly once; -p "" suppresses sudo's own
// password prompt so it never reaches the captured stdout/stderr stream.
func sudoArgs(command []string) []string {
	args := make([]string, 0, len(command)+2)
	args = append(args, "-S", "-p", "")
	args = append(args, command...)
	return args
}

// writeSudoSecret writes the operator-provided secret to stdin exactly
// once, followed by a newline, then closes the pipe. It never logs or
// echoes the secret. Passwordless sudo passes an empty secret; the pipe
// is closed without a single byte written.
func writeSudoSecret(stdin io.WriteCloser, secret string) error {
	defer stdin.Close()
	if secret == "" {
		return nil
	}
	_, err := io.WriteString(stdin, secret+"\n")
	return err
}
