package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures the S3 uploader. SecretAccessKey comes from the
// secret store (keyed by AccessKeyID), never from the config file.
type S3Options struct {
	Region          string
	Bucket          string
	Endpoint        string // optional override, e.g. a MinIO host
	AccessKeyID     string
	SecretAccessKey string
}

// S3Uploader uploads backups to an S3 bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Uploader builds an uploader with static credentials.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return &S3Uploader{client: client, bucket: opts.Bucket}, nil
}

// Upload implements Uploader. Progress comes from a counting reader wrapped
// around the local file.
func (u *S3Uploader) Upload(ctx context.Context, localPath, remotePath string, report ReportFunc) error {
	if report == nil {
		report = noReport
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat backup %s: %w", localPath, err)
	}

	body := &countingReader{r: f, total: info.Size(), report: report}
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(remotePath),
		Body:          body,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s/%s: %w", localPath, u.bucket, remotePath, err)
	}
	report(1)
	return nil
}

type countingReader struct {
	r      *os.File
	total  int64
	done   int64
	report ReportFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.done += int64(n)
	if c.total > 0 && n > 0 {
		c.report(float64(c.done) / float64(c.total))
	}
	return n, err
}

// Seek lets the SDK rewind the body for retries and signing.
func (c *countingReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := c.r.Seek(offset, whence)
	if err == nil {
		c.done = pos
	}
	return pos, err
}
