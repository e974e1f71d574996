package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const (
	// multipartThreshold is the body size above which objects go through
	// the multipart uploader.
	multipartThreshold = 16 << 20
	multipartPartSize  = 8 << 20
)

// Writer uploads archive objects. Small bodies are sent in one PutObject
// with a SHA-256 checksum; large ones are split into parts.
type Writer struct {
	c        *Client
	uploader *manager.Uploader
}

// NewWriter creates a Writer for the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		c: c,
		uploader: manager.NewUploader(c.api, func(u *manager.Uploader) {
			u.PartSize = multipartPartSize
		}),
	}
}

// Put uploads obj under the client's prefix.
func (w *Writer) Put(ctx context.Context, obj domain.BlobObject) error {
	key := w.c.key(obj.Path)
	in := &s3.PutObjectInput{
		Bucket:   aws.String(w.c.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(obj.Body),
		Metadata: obj.Metadata,
	}
	if obj.ContentType != "" {
		in.ContentType = aws.String(obj.ContentType)
	}

	if len(obj.Body) > multipartThreshold {
		if _, err := w.uploader.Upload(ctx, in); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s (%d bytes): %w", key, len(obj.Body), err)
		}
		return nil
	}

	in.ChecksumAlgorithm = types.ChecksumAlgorithmSha256
	if _, err := w.c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
