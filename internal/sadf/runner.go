package sadf

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to close after
// the extractor has been killed.
const DefaultWaitDelay = 2 * time.Second

// Runner runs an external command and returns what it wrote. When ctx ends
// before the command exits, the process is killed and whatever stdout and
// stderr were captured so far are still returned along with the error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	WaitDelay time.Duration
}

// Run executes name with args, capturing stdout and stderr separately.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
