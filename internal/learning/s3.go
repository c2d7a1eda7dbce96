package learning

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// s3Putter is the slice of the S3 client the archiver uses.
type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes weekly reports to an S3 bucket under reports/{user}/.
type S3Archiver struct {
	client s3Putter
	bucket string
}

// NewS3Archiver builds an archiver for the bucket.
func NewS3Archiver(client *s3.Client, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// Archive uploads one report body.
func (a *S3Archiver) Archive(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return domain.E(domain.KindTransient, "report_archive_failed", "uploading "+key, err)
	}
	return nil
}
