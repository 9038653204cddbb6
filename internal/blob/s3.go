package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Config holds the connection settings for an S3 bucket.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Prefix          string
}

// S3Storage keeps content as objects in an S3 bucket.
type S3Storage struct {
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

// NewS3Storage builds an S3Storage from static credentials, or the default chain when none are set.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("blob: missing s3 bucket")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, errSession := session.NewSession(awsCfg)
	if errSession != nil {
		return nil, fmt.Errorf("blob: s3 session: %w", errSession)
	}
	return NewS3StorageWithClient(s3.New(sess), s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix), nil
}

// NewS3StorageWithClient builds an S3Storage around existing clients.
func NewS3StorageWithClient(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(strings.TrimSpace(prefix), "/"),
	}
}

func (s *S3Storage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Write uploads r under key.
func (s *S3Storage) Write(ctx context.Context, key string, r io.Reader) (Info, error) {
	if errKey := ValidateKey(key); errKey != nil {
		return Info{}, errKey
	}
	body := &countingReader{r: r}
	if _, errUpload := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   body,
	}); errUpload != nil {
		return Info{}, fmt.Errorf("blob: s3 upload %s: %w", key, errUpload)
	}
	return Info{Key: key, Size: body.n}, nil
}

// Read streams the object stored under key.
func (s *S3Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if errKey := ValidateKey(key); errKey != nil {
		return nil, errKey
	}
	output, errGet := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if errGet != nil {
		if isS3NotFound(errGet) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: s3 get %s: %w", key, errGet)
	}
	return output.Body, nil
}

// Delete removes the object stored under key. S3 treats missing keys as deleted.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if errKey := ValidateKey(key); errKey != nil {
		return errKey
	}
	if _, errDelete := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}); errDelete != nil {
		return fmt.Errorf("blob: s3 delete %s: %w", key, errDelete)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
