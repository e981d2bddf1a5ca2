package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// OpenFromEnv selects a pack Store from COFFER_ARCHIVE_BACKEND:
//
//	file  directory tree under COFFER_DATA_DIR (default)
//	s3    bucket COFFER_S3_BUCKET in COFFER_S3_REGION or AWS_REGION,
//	      keys under COFFER_S3_PREFIX; COFFER_S3_ENDPOINT points the
//	      client at MinIO or LocalStack when set
//	gcs   bucket COFFER_GCS_BUCKET, keys under COFFER_GCS_PREFIX;
//	      available in builds tagged gcp
func OpenFromEnv(ctx context.Context) (Store, error) {
	switch backend := os.Getenv("COFFER_ARCHIVE_BACKEND"); backend {
	case "", "file":
		dir := os.Getenv("COFFER_DATA_DIR")
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "packs"))
	case "s3":
		return openS3(ctx)
	case "gcs":
		return openGCS(ctx)
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", backend)
	}
}

func openS3(ctx context.Context) (Store, error) {
	bucket := os.Getenv("COFFER_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("archive: COFFER_S3_BUCKET is required for the s3 backend")
	}
	region := os.Getenv("COFFER_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	return NewS3Store(ctx, S3Config{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("COFFER_S3_ENDPOINT"),
		Prefix:   os.Getenv("COFFER_S3_PREFIX"),
	})
}
