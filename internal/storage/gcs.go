package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/transcript-queue/internal/queue"
)

// BucketClient relays audio through a Cloud Storage bucket.
type BucketClient struct {
	client  *gcs.Client
	bucket  string
	prefix  string
	workDir string
}

// NewBucketClient creates a bucket relay. Objects are stored as prefix/name.
func NewBucketClient(ctx context.Context, bucket, prefix, workDir string, opts ...option.ClientOption) (*BucketClient, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create storage client: %w", err)
	}
	return &BucketClient{client: client, bucket: bucket, prefix: prefix, workDir: workDir}, nil
}

func (bc *BucketClient) object(name string) *gcs.ObjectHandle {
	return bc.client.Bucket(bc.bucket).Object(path.Join(bc.prefix, name))
}

// Put uploads localPath as name. The local file is left in place.
func (bc *BucketClient) Put(ctx context.Context, localPath, name string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	obj := bc.object(name)
	w := obj.NewWriter(ctx)
	w.ContentType = "audio/mpeg"
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", bc.bucket, obj.ObjectName()), nil
}

// Locate downloads the item's object into the working directory.
func (bc *BucketClient) Locate(ctx context.Context, itemID string) (queue.Artifact, bool, error) {
	name := queue.ArtifactName(itemID)
	r, err := bc.object(name).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return queue.Artifact{}, false, nil
	}
	if err != nil {
		return queue.Artifact{}, false, fmt.Errorf("open %s: %w", name, err)
	}
	defer r.Close()

	localPath, err := writeArtifact(bc.workDir, name, r)
	if err != nil {
		return queue.Artifact{}, false, err
	}
	return queue.Artifact{Path: localPath, Temporary: true}, true, nil
}

// Writable checks that the bucket exists and is reachable.
func (bc *BucketClient) Writable(ctx context.Context) error {
	if _, err := bc.client.Bucket(bc.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s: %w", bc.bucket, err)
	}
	return nil
}

// Close releases the underlying client.
func (bc *BucketClient) Close() error {
	return bc.client.Close()
}
