//go:build gcp

package archive

import (
	"context"
	"fmt"
	"os"
)

func openGCS(ctx context.Context) (Store, error) {
	bucket := os.Getenv("COFFER_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("archive: COFFER_GCS_BUCKET is required for the gcs backend")
	}

	return NewGCSStore(ctx, GCSConfig{
		Bucket: bucket,
		Prefix: os.Getenv("COFFER_GCS_PREFIX"),
	})
}
