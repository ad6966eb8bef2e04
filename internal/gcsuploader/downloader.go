package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/fraud-detection/internal/domain"
)

// DownloadToFile streams the object at gcsURI into dst. The object is written
// to a temporary file next to dst and renamed once complete. A missing object
// is reported as *domain.MissingInputError.
func DownloadToFile(ctx context.Context, gcsURI, dst string) (int64, error) {
	bucketName, objectPath, err := ParseGCSURI(gcsURI)
	if err != nil {
		return 0, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return 0, fmt.Errorf("DownloadToFile: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return 0, &domain.MissingInputError{Path: gcsURI, What: "archive"}
		}
		return 0, fmt.Errorf("DownloadToFile: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	return writeAtomically(rc, dst)
}

func writeAtomically(r io.Reader, dst string) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("DownloadToFile: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("DownloadToFile: %w", err)
	}
	name := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(name, dst)
	}
	if err != nil {
		os.Remove(name)
		return 0, fmt.Errorf("DownloadToFile: writing %q: %w", dst, err)
	}
	return n, nil
}
