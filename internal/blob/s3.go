package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// MaxPresignTTL is the longest expiry SigV4 accepts for a presigned URL.
const MaxPresignTTL = 7 * 24 * time.Hour

// deleteBatchSize is the DeleteObjects per-request maximum.
const deleteBatchSize = 1000

// S3Config configures the S3 store
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the service endpoint, e.g. http://localstack:4566.
	Endpoint string
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Presigner is the subset of the S3 presign client used by S3Store.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores attachments in an S3 bucket
type S3Store struct {
	client  S3API
	presign Presigner
	bucket  string
}

// NewS3Store loads the default AWS credential chain and builds a store for cfg.Bucket.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// NewS3StoreWithClients builds a store over existing clients.
func NewS3StoreWithClients(client S3API, presign Presigner, bucket string) *S3Store {
	return &S3Store{client: client, presign: presign, bucket: bucket}
}

// Put implements Store. The conditional header makes S3 refuse to overwrite.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("failed to put object %s: %w", key, ErrObjectExists)
		}
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// RemoveMany implements Store.
func (s *S3Store) RemoveMany(ctx context.Context, keys []string) error {
	failed := make(map[string]string)

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		batch := keys[start:end]

		objects := make([]s3types.ObjectIdentifier, 0, len(batch))
		for _, k := range batch {
			objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			for _, k := range batch {
				failed[k] = err.Error()
			}
			continue
		}
		for _, e := range out.Errors {
			failed[aws.ToString(e.Key)] = fmt.Sprintf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))
		}
	}

	if len(failed) > 0 {
		return &RemoveError{Failed: failed}
	}
	return nil
}

// Sign implements Store. ttl is capped at MaxPresignTTL.
func (s *S3Store) Sign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ttl = min(ttl, MaxPresignTTL)
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return req.URL, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
