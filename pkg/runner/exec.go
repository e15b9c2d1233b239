package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"
)

// capture is the raw result of one subprocess.
type capture struct {
	exitCode int
	stdout   []byte
	stderr   []byte
	duration time.Duration
	// startErr is set when the process could not be started at all.
	startErr error
	timedOut bool
}

// execute runs the command to completion. The child is not tied to ctx's
// cancellation: once started it is allowed to exit on its own, bounded
// only by the suite timeout.
func execute(ctx context.Context, spec Spec, extraEnv map[string]string) capture {
	start := time.Now()
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		return capture{exitCode: -1, startErr: errors.New("suite has no command")}
	}

	runCtx := context.WithoutCancel(ctx)
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Command[0], spec.Command[1:]...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = mergeEnv(os.Environ(), extraEnv, spec.Env)

	if spec.Timeout > 0 {
		// grandchildren may hold the pipes open after the kill
		cmd.WaitDelay = time.Second
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return capture{exitCode: -1, startErr: err, duration: time.Since(start)}
	}
	waitErr := cmd.Wait()

	c := capture{
		stdout:   stdout.Bytes(),
		stderr:   stderr.Bytes(),
		duration: time.Since(start),
		timedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			c.exitCode = exitCode(exitErr)
		} else {
			c.exitCode = -1
		}
	}
	return c
}

// mergeEnv appends overrides to base; later maps win. Keys are emitted in
// sorted order so the child environment is reproducible.
func mergeEnv(base []string, extras ...map[string]string) []string {
	env := make([]string, len(base))
	copy(env, base)
	for _, extra := range extras {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
		}
	}
	return env
}

func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal())
		}
		return status.ExitStatus()
	}
	return 1
}

func truncateOutput(output []byte, maxLen int) string {
	s := string(bytes.TrimSpace(output))
	if maxLen > 0 && len(s) > maxLen {
		return "..." + s[len(s)-maxLen:]
	}
	return s
}
