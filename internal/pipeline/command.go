package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	logx "unityops/pkg/logx"
)

// toolAvailable reports whether the named binary can be resolved.
// Paths containing a separator are checked directly; bare names go
// through PATH lookup.
func toolAvailable(bin string) bool {
	if strings.TrimSpace(bin) == "" {
		return false
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

// runOptionalCommand executes argv if its binary is installed.
//
// Returns ran=false (and no error) when the binary is missing, so callers
// can fall back to their stub path. A non-zero exit folds captured
// stdout/stderr into the returned error.
func runOptionalCommand(ctx context.Context, log logx.Logger, label string, argv []string) (ran bool, err error) {
	if len(argv) == 0 {
		return false, fmt.Errorf("%s: empty command", label)
	}
	bin := argv[0]
	if !toolAvailable(bin) {
		log.Warn("tool not installed; stage will run stub path",
			logx.String("stage", label), logx.String("bin", bin))
		return false, nil
	}

	log.Info("running external tool",
		logx.String("stage", label), logx.String("cmd", strings.Join(argv, " ")))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return true, fmt.Errorf("%s failed: %w\nstdout: %s\nstderr: %s",
			label, err, strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()))
	}
	return true, nil
}
