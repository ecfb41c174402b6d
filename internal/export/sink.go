// Package export writes reconstructed arrest records to files.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/entity"
)

// RecordSink accepts the final, ordered result of a run.
type RecordSink interface {
	Name() string
	Write(ctx context.Context, res entity.Result) error
}

// writeFile replaces path atomically so readers never see a half-written export.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", common.ErrSink, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrSink, path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: write %s: %v", common.ErrSink, path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: close %s: %v", common.ErrSink, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: rename %s: %v", common.ErrSink, path, err)
	}
	return nil
}
