package blob

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// PresignedRequest is a time-limited URL a client can use directly against
// object storage. Headers must be sent as-is for the signature to verify.
type PresignedRequest struct {
	URL     string      `json:"url"`
	Method  string      `json:"method"`
	Headers http.Header `json:"headers,omitempty"`
	Expires time.Time   `json:"expiresAt"`
}

type BlobStore interface {
	// PresignPut binds contentType and size into the signature, so the
	// upload must carry exactly that Content-Type and Content-Length.
	PresignPut(ctx context.Context, key string, contentType string, size int64, ttl time.Duration) (PresignedRequest, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (PresignedRequest, error)
	// ObjectSize returns ErrObjectNotFound when nothing is stored at key.
	ObjectSize(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}
