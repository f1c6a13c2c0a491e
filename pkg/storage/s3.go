package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const (
	// FolderRecordings is the S3 prefix for recording objects.
	FolderRecordings = "recordings"
	// RecordingFileName is the object name of every stored recording.
	RecordingFileName = "recording.mp4"
	// RecordingContentType is used when the source does not send one.
	RecordingContentType = "video/mp4"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// S3 stores recordings in a private bucket and hands out time-boxed URLs.
type S3 struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	cdn      *CloudFront // optional; nil falls back to S3 presigned URLs
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the default chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey, logger)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	logger.Info("S3 client ready", zap.String("region", cfg.Region), zap.String("recordings_bucket", cfg.RecordingsBucket))
	return &S3{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// LoadAWSConfig builds an aws.Config from static keys when given, else from the default credential chain.
// The other AWS clients (SSM, Cognito) share it.
func LoadAWSConfig(ctx context.Context, region, accessKey, secretKey string, logger *zap.Logger) (aws.Config, error) {
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else if logger != nil {
		logger.Info("AWS clients using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// WithCloudFront serves playback and download URLs through a signed CloudFront distribution.
func (s *S3) WithCloudFront(cdn *CloudFront) *S3 {
	s.cdn = cdn
	return s
}

// RecordingKey returns the S3 object key: recordings/{user_id}/{recording_id}/recording.mp4.
func RecordingKey(userID, recordingID string) string {
	return path.Join(FolderRecordings, userID, recordingID, RecordingFileName)
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// Upload streams body into the recordings bucket with server-side encryption.
// size may be -1 when unknown; the multipart uploader then buffers part by part.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	if contentType == "" {
		contentType = RecordingContentType
	}
	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.cfg.RecordingsBucket),
		Key:                  aws.String(key),
		Body:                 body,
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug("recording uploaded", zap.String("s3_key", key), zap.Int64("size", size))
	return nil
}

// Delete removes an object from the recordings bucket. Deleting a missing key succeeds.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// PlaybackURL returns a time-boxed GET URL for streaming the object.
func (s *S3) PlaybackURL(ctx context.Context, key string) (string, error) {
	if s.cdn != nil {
		return s.cdn.SignedURL(key, false, time.Now().Add(s.PresignExpire()))
	}
	return s.presignGet(ctx, key, "")
}

// DownloadURL returns a time-boxed GET URL that makes browsers save the object.
func (s *S3) DownloadURL(ctx context.Context, key string) (string, error) {
	if s.cdn != nil {
		return s.cdn.SignedURL(key, true, time.Now().Add(s.PresignExpire()))
	}
	return s.presignGet(ctx, key, "attachment")
}

func (s *S3) presignGet(ctx context.Context, key, disposition string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	}
	if disposition != "" {
		input.ResponseContentDisposition = aws.String(disposition)
	}
	req, err := s.presign.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
