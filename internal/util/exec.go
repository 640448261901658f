package util

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// RequireBinary verifies the binary is on PATH.
func RequireBinary(name string) error {
	_, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("required binary not found: %s", name)
	}
	return nil
}

// Command builds an exec.Cmd with the process env plus env.
func Command(ctx context.Context, name string, args []string, env map[string]string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = MergeEnv(env)
	return cmd
}

// Output is what a finished command wrote.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Run executes cmd to completion and captures both streams. The returned
// error is the one from cmd.Run; Output is populated either way.
func Run(cmd *exec.Cmd) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	return out, err
}

// Tail returns at most the last n bytes of b.
func Tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}
