package services

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/logging"
	"github.com/kurswerk/backend/internal/config"
)

// BlobInfo describes one raw object in the video bucket
type BlobInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	MimeType     string    `json:"mime_type,omitempty"`
}

// S3Service is the read-only gateway to the object storage tier. The
// catalog never writes to or deletes from the video bucket.
type S3Service struct {
	videoClient *s3.Client
	cfg         *config.Config
}

func NewS3Service(cfg *config.Config) (*S3Service, error) {
	client, err := buildClient(cfg.VideoS3Endpoint, cfg.VideoS3Region, cfg.VideoS3AccessKeyID, cfg.VideoS3SecretAccessKey, cfg.VideoS3UsePathStyle)
	if err != nil {
		return nil, err
	}
	return &S3Service{videoClient: client, cfg: cfg}, nil
}

func (s *S3Service) GetConfig() *config.Config { return s.cfg }

func buildClient(endpoint, region, key, secret string, pathStyle bool) (*s3.Client, error) {
	resolver := awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
		func(service, rgn string, options ...interface{}) (aws.Endpoint, error) {
			if endpoint != "" {
				return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}))
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
		resolver,
		awsconfig.WithLogger(logging.NewStandardLogger(nil)),
	)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	})
	return client, nil
}

// ListVideoBlobs lists blob descriptors under a key prefix. Listing
// failures are infrastructure errors; callers may retry.
func (s *S3Service) ListVideoBlobs(ctx context.Context, prefix string) ([]BlobInfo, error) {
	blobs := []BlobInfo{}
	var token *string
	for {
		out, err := s.videoClient.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.cfg.VideoBucket,
			Prefix:            &prefix,
			ContinuationToken: token,
			MaxKeys:           aws.Int32(1000),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list video bucket: %w", err)
		}
		for _, o := range out.Contents {
			info := BlobInfo{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
			if o.LastModified != nil {
				info.LastModified = *o.LastModified
			}
			// ListObjectsV2 carries no content type; guess from the extension
			if mt := mime.TypeByExtension(filepath.Ext(info.Key)); mt != "" {
				info.MimeType = mt
			}
			blobs = append(blobs, info)
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	return blobs, nil
}

// PresignVideoGet returns a time-limited download URL for a blob
func (s *S3Service) PresignVideoGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(s.videoClient)
	out, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &s.cfg.VideoBucket, Key: &key}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

// VideoURL builds the public endpoint URL for a blob key
func (s *S3Service) VideoURL(key string) string {
	e := s.videoClient.Options().BaseEndpoint
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", *e, s.cfg.VideoBucket, url.PathEscape(key))
}
