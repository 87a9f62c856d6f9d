package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"sitemirror/pkg/models"
	"sitemirror/pkg/utils"
)

// s3API is the subset of the S3 client used by S3Store
type s3API interface {
	GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements ObjectStore on an S3 bucket. Metadata travels as object tags,
// so a PutObject writes body and metadata atomically.
type S3Store struct {
	client s3API
	bucket string
	log    *logrus.Entry
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store creates a store writing into bucket
func NewS3Store(client s3API, bucket string, logger *logrus.Entry) *S3Store {
	return &S3Store{client: client, bucket: bucket, log: logger}
}

// Head implements ObjectStore
func (s *S3Store) Head(ctx context.Context, key string) (models.ObjectMeta, bool, error) {
	out, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return models.ObjectMeta{}, false, nil
	}
	if err != nil {
		return models.ObjectMeta{}, false, fmt.Errorf("%w: tagging of s3://%s/%s: %w", utils.ErrDependency, s.bucket, key, err)
	}

	tags := make(map[string]string, len(out.TagSet))
	for _, t := range out.TagSet {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	meta, err := models.MetaFromTags(tags)
	if err != nil {
		return models.ObjectMeta{}, false, fmt.Errorf("%w: tags of s3://%s/%s: %w", utils.ErrParsing, s.bucket, key, err)
	}
	return meta, true, nil
}

// Get implements ObjectStore
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: s3://%s/%s", utils.ErrStoreMiss, s.bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get s3://%s/%s: %w", utils.ErrDependency, s.bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3://%s/%s: %w", utils.ErrResponseBodyRead, s.bucket, key, err)
	}
	return body, nil
}

// Put implements ObjectStore
func (s *S3Store) Put(ctx context.Context, obj models.StoredObject) error {
	tagging := url.Values{}
	for k, v := range obj.Meta.Tags() {
		tagging.Set(k, v)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(obj.Key),
		Body:        bytes.NewReader(obj.Body),
		ContentType: aws.String(obj.Meta.ContentType),
		Tagging:     aws.String(tagging.Encode()),
	})
	if err != nil {
		s.log.WithField("key", obj.Key).Errorf("PutObject failed: %v", err)
		return fmt.Errorf("%w: put s3://%s/%s: %w", utils.ErrDependency, s.bucket, obj.Key, err)
	}
	return nil
}

// Close implements ObjectStore
func (s *S3Store) Close() error { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
