// Package s3 implements the object gateway on Amazon S3 or any
// S3-compatible endpoint (MinIO, Localstack, Cubbit DS3).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/stratafs/stratafs/pkg/store/object"
)

// Store implements object.Store backed by an S3 bucket.
//
// Characteristics carried through to callers:
//   - Listing is paginated internally and always fully drained; a failure
//     mid-pagination fails the whole call rather than returning a prefix of
//     the result.
//   - Individual object reads are read-after-write consistent; listings may
//     lag a just-completed write.
//   - Batch deletes use DeleteObjects, chunked to the backend's per-call
//     limit.
//
// Thread safety: safe for concurrent use; the underlying SDK client is
// goroutine-safe and the Store itself holds no mutable state.
type Store struct {
	client      *s3.Client
	presigner   *s3.PresignClient
	bucket      string
	deleteChunk int
}

// Config contains construction parameters for the S3 store.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the bucket name. It must already exist.
	Bucket string

	// DeleteChunkSize caps the number of keys per DeleteObjects call.
	// Defaults to 1000, the S3 API maximum.
	DeleteChunkSize int
}

// New creates the store and verifies bucket access with a HeadBucket call.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	chunk := cfg.DeleteChunkSize
	if chunk <= 0 {
		chunk = 1000
	}
	if chunk > 1000 {
		return nil, fmt.Errorf("delete chunk size must be at most 1000, got %d", chunk)
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store{
		client:      cfg.Client,
		presigner:   s3.NewPresignClient(cfg.Client),
		bucket:      cfg.Bucket,
		deleteChunk: chunk,
	}, nil
}

// Bucket returns the bucket name the store operates on.
func (s *Store) Bucket() string {
	return s.bucket
}

// List returns every key under prefix, draining pagination before returning.
func (s *Store) List(ctx context.Context, prefix string) ([]object.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []object.Info

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, wrapTransient(err))
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := object.Info{Key: *obj.Key}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}

// ListCommonPrefixes returns the first-level prefixes under prefix using the
// "/" delimiter, without listing the keys below them.
func (s *Store) ListCommonPrefixes(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prefixes []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list prefixes under %q: %w", prefix, wrapTransient(err))
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				prefixes = append(prefixes, *cp.Prefix)
			}
		}
	}

	return prefixes, nil
}

// Get returns a reader for the object's bytes.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, wrapTransient(err))
	}

	return result.Body, nil
}

// Put writes the object, replacing any existing one.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, wrapTransient(err))
	}

	return nil
}

// Delete removes the object. Idempotent: deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, wrapTransient(err))
	}

	return nil
}

// DeleteMany removes keys with DeleteObjects, chunked to the configured
// per-call limit. Per-key failures are reported in the returned map and do
// not abort the remaining chunks.
func (s *Store) DeleteMany(ctx context.Context, keys []string) ([]string, map[string]error, error) {
	deleted := make([]string, 0, len(keys))
	failed := make(map[string]error)

	for i := 0; i < len(keys); i += s.deleteChunk {
		if err := ctx.Err(); err != nil {
			for _, k := range keys[i:] {
				failed[k] = err
			}
			return deleted, failed, err
		}

		end := i + s.deleteChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[i:end]

		objects := make([]types.ObjectIdentifier, len(chunk))
		for j, k := range chunk {
			objects[j] = types.ObjectIdentifier{Key: aws.String(k)}
		}

		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			for _, k := range chunk {
				failed[k] = wrapTransient(err)
			}
			continue
		}

		chunkFailed := make(map[string]bool, len(result.Errors))
		for _, delErr := range result.Errors {
			if delErr.Key == nil {
				continue
			}
			chunkFailed[*delErr.Key] = true
			msg := "unknown error"
			if delErr.Code != nil && delErr.Message != nil {
				msg = fmt.Sprintf("%s: %s", *delErr.Code, *delErr.Message)
			}
			failed[*delErr.Key] = errors.New(msg)
		}

		for _, k := range chunk {
			if !chunkFailed[k] {
				deleted = append(deleted, k)
			}
		}
	}

	return deleted, failed, nil
}

// Copy duplicates src to dst within the bucket.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + src),
		Key:        aws.String(dst),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("object %s: %w", src, object.ErrObjectNotFound)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, wrapTransient(err))
	}

	return nil
}

// Head returns object metadata without fetching the body.
func (s *Store) Head(ctx context.Context, key string) (*object.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to head object %s: %w", key, wrapTransient(err))
	}

	meta := &object.Metadata{}
	if result.ContentLength != nil {
		meta.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		meta.LastModified = *result.LastModified
	}
	if result.ContentType != nil {
		meta.ContentType = *result.ContentType
	}

	return meta, nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PresignGet mints a time-limited GET URL for the object.
func (s *Store) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	return req.URL, nil
}

// isNotFound detects the S3 error shapes that mean "no such object".
// GetObject reports NoSuchKey; HeadObject reports a bare 404 ("NotFound").
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

// wrapTransient tags backend failures as retry-safe unavailability unless the
// context was cancelled, which is the caller's signal and passes through.
func wrapTransient(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", object.ErrUnavailable, err)
}
