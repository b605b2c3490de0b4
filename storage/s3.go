package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/agmanagement/kyc-intake/interfaces"
)

// s3RefScheme prefixes remote references so they are distinguishable from
// local file paths.
const s3RefScheme = "s3:"

// S3Backend persists envelopes to S3 or an S3-compatible service. Evidence
// buckets are private: objects are written without any public ACL and only
// retrievable with the service credentials.
type S3Backend struct {
	client *s3.S3
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Backend creates a remote object-storage backend. Credentials are
// required; failing fast here keeps a misconfigured deployment from
// accepting uploads it can never persist.
func NewS3Backend(bucket, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket not set", interfaces.ErrConfiguration)
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: s3 credentials missing", interfaces.ErrConfiguration)
	}
	if region == "" {
		region = "us-east-1"
	}

	cfg := aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating AWS session: %v", interfaces.ErrConfiguration, err)
	}

	return &S3Backend{
		client: s3.New(sess),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}, nil
}

// Put uploads the envelope under <prefix>/<kind>/<name> and returns an
// "s3:" scheme reference.
func (b *S3Backend) Put(ctx context.Context, kind interfaces.FileKind, name string, envelope []byte) (interfaces.ArtifactRef, error) {
	key := path.Join(b.prefix, string(kind), name)

	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(envelope),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: uploading artifact to s3: %v", interfaces.ErrStorage, err)
	}

	b.log.Debug("Uploaded artifact to S3",
		slog.String("bucket", b.bucket),
		slog.String("key", key),
		slog.Int("size", len(envelope)))

	return interfaces.ArtifactRef(s3RefScheme + key), nil
}

// Get downloads an envelope by its "s3:" reference.
func (b *S3Backend) Get(ctx context.Context, ref interfaces.ArtifactRef) ([]byte, error) {
	key := strings.TrimPrefix(string(ref), s3RefScheme)
	if key == string(ref) {
		return nil, fmt.Errorf("%w: reference %q is not an s3 reference", interfaces.ErrStorage, ref)
	}

	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, fmt.Errorf("%w: artifact %s", interfaces.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("%w: downloading artifact from s3: %v", interfaces.ErrStorage, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading artifact body: %v", interfaces.ErrStorage, err)
	}
	return data, nil
}

// Name returns the backend identifier for logging.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucket)
}
