package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/arrestlog/internal/common"
)

// stderrKeep is how much of a failing tool's stderr is logged. Poppler and
// tesseract print the useful line last.
const stderrKeep = 4 << 10

// Runner executes one OCR tool. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := common.LoggerFrom(ctx, r.logger).With("tool", filepath.Base(name), "argc", len(args))
	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		// killed by the run's deadline, not a tool failure
		err = errors.Join(ctx.Err(), err)
	}
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("ocr.exec.failed", "elapsed_ms", elapsed, "err", err,
			"stderr", string(tail(stderr.Bytes(), stderrKeep)))
		return stdout.Bytes(), stderr.Bytes(), err
	}
	log.Debug("ocr.exec.ok", "elapsed_ms", elapsed, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.Bytes(), nil
}

// tail returns the last n bytes of b.
func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
