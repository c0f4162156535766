// Package transfer copies finished payloads to their routed destination.
package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shuttle/internal/fileutil"
	"shuttle/internal/queue"
	"shuttle/internal/services"
)

// Copier implements filesystem transfers. Every file is attempted even
// after a failure so the result enumerates exactly what made it across.
type Copier struct{}

// New constructs a copier.
func New() *Copier {
	return &Copier{}
}

// Transfer copies files into destDir. When some files copy and others
// fail the error is a partial-transfer failure, which is never retried;
// the caller inspects the result for what needs manual attention.
func (c *Copier) Transfer(ctx context.Context, files []string, destDir string, progress services.ProgressFunc) (*services.TransferResult, error) {
	if len(files) == 0 {
		return &services.TransferResult{}, nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, string(queue.PhaseUploading), "transfer", "create destination directory", err)
	}

	result := &services.TransferResult{}
	var firstErr error
	for i, source := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		target := filepath.Join(destDir, filepath.Base(source))
		if err := fileutil.CopyFile(source, target); err != nil {
			result.Failed = append(result.Failed, source)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if size, err := fileutil.FileSize(target); err == nil {
			result.BytesCopied += size
		}
		result.Transferred = append(result.Transferred, source)
		if progress != nil {
			progress(float64(i+1)/float64(len(files)), fmt.Sprintf("copied %s", filepath.Base(source)))
		}
	}

	switch {
	case len(result.Failed) == 0:
		return result, nil
	case len(result.Transferred) == 0:
		return result, services.Wrap(services.ErrTransient, string(queue.PhaseUploading), "transfer", "no files copied", firstErr)
	default:
		detail := fmt.Sprintf("%d of %d files failed (%s)", len(result.Failed), len(files), summarize(result.Failed))
		return result, services.Wrap(services.ErrPartialTransfer, string(queue.PhaseUploading), "transfer", detail, firstErr)
	}
}

func summarize(paths []string) string {
	names := make([]string, 0, 3)
	for i, path := range paths {
		if i == 3 {
			names = append(names, "...")
			break
		}
		names = append(names, filepath.Base(path))
	}
	return strings.Join(names, ", ")
}

var _ services.StorageTransfer = (*Copier)(nil)
