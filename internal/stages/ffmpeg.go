package stages

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mediapress/internal/services"
)

// runFFmpeg invokes the configured ffmpeg binary with the given arguments
// under the stage timeout. Non-zero exit is reported as an external tool
// failure with the tail of the combined output attached.
func (l *Library) runFFmpeg(ctx context.Context, stage string, args ...string) error {
	timeout := time.Duration(l.cfg.Pipeline.StageTimeoutSeconds) * time.Second
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := l.cfg.Pipeline.FFmpegBinary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(toolCtx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if toolCtx.Err() != nil {
		err = toolCtx.Err()
	}
	detail := outputTail(string(output), 4)
	msg := fmt.Sprintf("%s %s", binary, strings.Join(args, " "))
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return services.Wrap(services.ErrExternalTool, stage, "ffmpeg", msg, err)
}

// outputTail returns the last n non-empty lines of tool output. ffmpeg puts
// the useful diagnostic at the end of a long banner.
func outputTail(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			kept = append([]string{line}, kept...)
		}
	}
	return strings.Join(kept, " | ")
}
