package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/vango-dev/trialstream/pkg/ndarray"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes .npy artifacts to an S3 bucket.
//
// Example usage:
//
//	client := store.NewS3Client("us-east-1", "", false)
//	artifacts := store.NewS3Store(client, "lab-data", "trialstream/")
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates an S3 artifact store. Keys are prefix + the artifact's
// relative path.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Client builds an S3 client from static settings. Credentials come
// from the default AWS environment variables.
func NewS3Client(region, endpoint string, pathStyle bool) *s3.Client {
	return s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: optionalString(endpoint),
		UsePathStyle: pathStyle,
		Credentials:  aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	})
}

// envCredentials reads the standard AWS_* variables.
func envCredentials(context.Context) (aws.Credentials, error) {
	creds := aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "Environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, errors.New("store: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return creds, nil
}

// Put uploads arr and returns its s3:// location. Uploads are conditional on
// the key not existing; a taken key is retried with a collision suffix.
func (s *S3Store) Put(ctx context.Context, key ArtifactKey, arr *ndarray.Array) (string, error) {
	body := ndarray.EncodeNPY(arr)

	for attempt := 0; attempt < maxCollisions; attempt++ {
		objectKey := s.prefix + path.Clean(ArtifactPath(key, attempt))
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectKey),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
			ContentType:   aws.String("application/octet-stream"),
			IfNoneMatch:   aws.String("*"),
			Metadata: map[string]string{
				"name":  key.Name,
				"trial": fmt.Sprint(key.Trial),
				"dtype": arr.DType.Descr(),
			},
		})
		if isPreconditionFailed(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store: put s3://%s/%s: %w", s.bucket, objectKey, err)
		}
		return "s3://" + s.bucket + "/" + objectKey, nil
	}
	return "", ErrNameExhausted
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
