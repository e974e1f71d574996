package s3blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Reader answers existence queries for archive objects.
type Reader struct {
	c *Client
}

// NewReader creates a Reader for the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{c: c}
}

// Exists issues a HeadObject for path under the client's prefix. Only
// not-found responses map to false.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	key := r.c.key(path)
	_, err := r.c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.c.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case notFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3blob: head %s: %w", key, err)
	}
}

// statusCoder is satisfied by the SDK's HTTP response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

// notFound matches the typed SDK errors as well as the bare 404 that
// HeadObject yields on several S3-compatible providers.
func notFound(err error) bool {
	var (
		nsk *types.NoSuchKey
		nf  *types.NotFound
		sc  statusCoder
	)
	return errors.As(err, &nsk) || errors.As(err, &nf) ||
		(errors.As(err, &sc) && sc.HTTPStatusCode() == 404)
}

var _ domain.BlobStat = (*Reader)(nil)
