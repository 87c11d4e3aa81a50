package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/diarygraph/internal/util"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned by GetFile when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectAPI is the part of *s3.Client used here.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

func bucket() string {
	return util.GetEnv("AWS_BUCKET")
}

// SegmentKey is the object key of a submitted segment payload.
func SegmentKey(userID, segmentID string) string {
	return fmt.Sprintf("segments/%s/%s.json", userID, segmentID)
}

// CheckpointKey is the object key of a segment that already went through
// resolution and only waits for its persist.
func CheckpointKey(userID, segmentID string) string {
	return fmt.Sprintf("segments/%s/%s.checkpoint.json", userID, segmentID)
}

func GetFile(ctx context.Context, client ObjectAPI, key string) ([]byte, error) {
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket()),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return buf.Bytes(), nil
}

func PutFile(ctx context.Context, client ObjectAPI, key string, contentType string, body []byte) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}

func DeleteFile(ctx context.Context, client ObjectAPI, key string) error {
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket()),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// PutSegment stores segment as JSON and returns its key.
func PutSegment(ctx context.Context, client ObjectAPI, userID string, segment *common.Segment) (string, error) {
	key := SegmentKey(userID, segment.ID)
	if err := putSegmentAt(ctx, client, key, segment); err != nil {
		return "", err
	}
	return key, nil
}

// PutCheckpoint stores segment under its checkpoint key.
func PutCheckpoint(ctx context.Context, client ObjectAPI, userID string, segment *common.Segment) error {
	return putSegmentAt(ctx, client, CheckpointKey(userID, segment.ID), segment)
}

func putSegmentAt(ctx context.Context, client ObjectAPI, key string, segment *common.Segment) error {
	data, err := json.Marshal(segment)
	if err != nil {
		return fmt.Errorf("failed to marshal segment: %w", err)
	}
	return PutFile(ctx, client, key, "application/json", data)
}

func GetSegment(ctx context.Context, client ObjectAPI, key string) (*common.Segment, error) {
	data, err := GetFile(ctx, client, key)
	if err != nil {
		return nil, err
	}
	var segment common.Segment
	if err := json.Unmarshal(data, &segment); err != nil {
		return nil, fmt.Errorf("failed to decode segment %s: %w", key, err)
	}
	return &segment, nil
}
