package storage

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Purger deletes attachment blobs when their message is soft-deleted.
// The message tombstone stands whether or not the delete succeeds.
type S3Purger struct {
	client *s3.Client
	bucket string
	log    *zap.SugaredLogger
}

func NewS3Purger(ctx context.Context, region, bucket string, log *zap.SugaredLogger) (*S3Purger, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &S3Purger{client: s3.NewFromConfig(cfg), bucket: bucket, log: log}, nil
}

// Purge deletes the objects behind the attachment URLs, best-effort per
// object.
func (p *S3Purger) Purge(ctx context.Context, urls []string) error {
	var firstErr error
	for _, u := range urls {
		key := objectKey(u)
		if key == "" {
			p.log.Warnw("unparseable attachment url", "url", u)
			continue
		}
		_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			p.log.Warnw("blob delete failed", "key", key, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// objectKey extracts the S3 object key from a stored attachment URL.
func objectKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
