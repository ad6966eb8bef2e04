// Package unpack extracts the compressed source dataset.
package unpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/klauspost/compress/zip"
)

// Result reports what EnsureExtracted did.
type Result struct {
	Skipped bool
	Files   int
}

// EnsureExtracted extracts archive into the directory of target unless
// target already exists. A missing archive is reported as
// *domain.MissingInputError before anything is written.
func EnsureExtracted(ctx context.Context, archive, target string) (Result, error) {
	log := logger.FromContext(ctx)

	if _, err := os.Stat(archive); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, &domain.MissingInputError{Path: archive, What: "archive"}
		}
		return Result{}, fmt.Errorf("EnsureExtracted: stat archive: %w", err)
	}

	if _, err := os.Stat(target); err == nil {
		log.Debug().Str("path", target).Msg("Dataset already extracted")
		return Result{Skipped: true}, nil
	}

	dir := filepath.Dir(target)
	n, err := Extract(ctx, archive, dir)
	if err != nil {
		return Result{}, err
	}

	if _, err := os.Stat(target); err != nil {
		return Result{Files: n}, &domain.MissingInputError{Path: target, What: "dataset"}
	}
	log.Info().Str("archive", archive).Str("dir", dir).Int("files", n).Msg("Extracted dataset archive")
	return Result{Files: n}, nil
}

// Extract writes every entry of the zip archive below dir and returns the
// number of files written. Entries that would land outside dir are rejected.
func Extract(ctx context.Context, archive, dir string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("Extract: open %q: %w", archive, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("Extract: %w", err)
	}

	files := 0
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		dest := filepath.Join(root, filepath.FromSlash(zf.Name))
		if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("Extract: entry %q escapes %q", zf.Name, dir)
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return files, fmt.Errorf("Extract: %w", err)
			}
			continue
		}
		if err := extractFile(zf, dest); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func extractFile(zf *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extractFile: %w", err)
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("extractFile: open entry %q: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("extractFile: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extractFile: write %q: %w", dest, err)
	}
	return out.Close()
}
