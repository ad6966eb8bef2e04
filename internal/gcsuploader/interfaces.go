package gcsuploader

import (
	"context"
)

// StorageService is the cloud storage surface the training job needs. It
// enables mocking in tests.
type StorageService interface {
	// DownloadToFile copies the object at a gs:// URI to a local path.
	DownloadToFile(ctx context.Context, gcsURI, dst string) (int64, error)

	// UploadFile uploads a local file to a bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error
}

// GCSStorageService is the StorageService backed by Google Cloud Storage.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// DownloadToFile delegates to DownloadToFile.
func (s *GCSStorageService) DownloadToFile(ctx context.Context, gcsURI, dst string) (int64, error) {
	return DownloadToFile(ctx, gcsURI, dst)
}

// UploadFile delegates to UploadFile.
func (s *GCSStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	return UploadFile(ctx, bucketName, objectName, filePath)
}

var _ StorageService = (*GCSStorageService)(nil)
