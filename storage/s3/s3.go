package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"OpenCargoRegistry/config"
	"OpenCargoRegistry/storage"
)

const presignExpiry = 15 * time.Minute

// Client is the subset of the S3 API the storage uses.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner creates time limited download URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Storage keeps blobs in an S3 compatible bucket under a key prefix.
type Storage struct {
	client    Client
	presigner Presigner
	bucket    string
	prefix    string
}

func New(client Client, presigner Presigner, bucket string, prefix string) *Storage {
	return &Storage{client: client, presigner: presigner, bucket: bucket, prefix: prefix}
}

// Open builds the S3 client from the standard AWS credential chain.
// A configured endpoint (for example MinIO) switches to path style addressing.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS configuration")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, s3.NewPresignClient(client), cfg.Bucket, cfg.KeyPrefix), nil
}

func (s *Storage) GetCrate(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	return s.get(ctx, storage.CrateKey(s.prefix, name, version))
}

func (s *Storage) PutCrate(ctx context.Context, name string, version string, data []byte) error {
	return s.put(ctx, storage.CrateKey(s.prefix, name, version), data, storage.CrateContentType, true)
}

func (s *Storage) DeleteCrate(ctx context.Context, name string, version string) error {
	return s.delete(ctx, storage.CrateKey(s.prefix, name, version))
}

func (s *Storage) GetReadme(ctx context.Context, name string, version string) (io.ReadCloser, error) {
	return s.get(ctx, storage.ReadmeKey(s.prefix, name, version))
}

func (s *Storage) PutReadme(ctx context.Context, name string, version string, html []byte) error {
	return s.put(ctx, storage.ReadmeKey(s.prefix, name, version), html, storage.ReadmeContentType, false)
}

func (s *Storage) DeleteReadme(ctx context.Context, name string, version string) error {
	return s.delete(ctx, storage.ReadmeKey(s.prefix, name, version))
}

// CrateURL returns a presigned GET URL for the tarball.
func (s *Storage) CrateURL(ctx context.Context, name string, version string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storage.CrateKey(s.prefix, name, version)),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", errors.Wrap(err, "presigning download")
	}
	return req.URL, nil
}

func (s *Storage) get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting s3://%s/%s", s.bucket, key)
	}
	return out.Body, nil
}

// put uploads data under key. An exclusive put is a conditional write that
// fails with storage.ErrExists when key is already present.
func (s *Storage) put(ctx context.Context, key string, data []byte, contentType string, exclusive bool) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if exclusive {
		input.IfNoneMatch = aws.String("*")
	}
	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		if exclusive && isPreconditionFailed(err) {
			return storage.ErrExists
		}
		return errors.Wrapf(err, "putting s3://%s/%s", s.bucket, key)
	}
	return nil
}

func (s *Storage) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return errors.Wrapf(err, "deleting s3://%s/%s", s.bucket, key)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var responseErr *awshttp.ResponseError
	return errors.As(err, &responseErr) && responseErr.HTTPStatusCode() == http.StatusNotFound
}

// isPreconditionFailed reports a rejected conditional write. A concurrent
// conditional write to the same key is answered with 409 instead of 412.
func isPreconditionFailed(err error) bool {
	var responseErr *awshttp.ResponseError
	if !errors.As(err, &responseErr) {
		return false
	}
	status := responseErr.HTTPStatusCode()
	return status == http.StatusPreconditionFailed || status == http.StatusConflict
}
