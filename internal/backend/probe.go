package backend

import (
	"context"
	"io"
	"os/exec"
	"time"
)

// probeTimeout bounds the availability check. Anything slower than this is
// treated as unavailable.
const probeTimeout = 5 * time.Second

// Probe runs a lightweight invocation of the target tool, typically its
// version subcommand. Any spawn failure or non-zero exit means
// "unavailable" and triggers the local-execution fallback path rather than
// failing the job.
func Probe(ctx context.Context, command string, args ...string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run() == nil
}
