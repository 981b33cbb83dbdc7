package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/zlnvch/easel/blob"
)

type Options struct {
	DevMode       bool
	Endpoint      string
	Region        string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
}

type S3BlobStore struct {
	client        *s3.Client
	presigner     *s3.PresignClient
	bucket        string
	publicBaseURL string
}

func NewS3BlobStore(ctx context.Context, opts Options) (*S3BlobStore, error) {
	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := checkBucket(ctx, client, opts.Bucket); err != nil {
		return nil, fmt.Errorf("given bucket '%s' not reachable in S3: %w", opts.Bucket, err)
	}

	publicBaseURL := strings.TrimSuffix(opts.PublicBaseURL, "/")
	if publicBaseURL == "" {
		publicBaseURL = defaultPublicBaseURL(opts)
	}

	return &S3BlobStore{
		client:        client,
		presigner:     s3.NewPresignClient(client),
		bucket:        opts.Bucket,
		publicBaseURL: publicBaseURL,
	}, nil
}

func (s *S3BlobStore) PresignPut(ctx context.Context, key string, contentType string, size int64, ttl time.Duration) (blob.PresignedRequest, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return blob.PresignedRequest{}, err
	}
	return presignedFromV4(req.URL, req.Method, req.SignedHeader, ttl), nil
}

func (s *S3BlobStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (blob.PresignedRequest, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return blob.PresignedRequest{}, err
	}
	return presignedFromV4(req.URL, req.Method, req.SignedHeader, ttl), nil
}

func (s *S3BlobStore) ObjectSize(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, blob.ErrObjectNotFound
		}
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Delete is idempotent: S3 reports success for keys that do not exist.
func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3BlobStore) PublicURL(key string) string {
	return joinPublicURL(s.publicBaseURL, key)
}

func defaultPublicBaseURL(opts Options) string {
	if opts.DevMode && opts.Endpoint != "" {
		return strings.TrimSuffix(opts.Endpoint, "/") + "/" + opts.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
}

func joinPublicURL(base string, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return base + "/" + strings.Join(segments, "/")
}
