package ffmpeg

import (
	"context"
	"os/exec"
)

// commandRunner runs an external binary and returns its combined output.
// Tests replace it to avoid depending on ffmpeg being installed.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// stdoutRunner is like execRunner but keeps stderr out of the returned bytes.
func stdoutRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
