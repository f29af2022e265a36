package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/CTAG07/Pronostico/pkg/markov"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds the connection settings for S3 sources. Empty credentials
// fall back to the default AWS credentials chain (environment, shared
// config, instance role).
type S3Config struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"` // optional, e.g. a MinIO URL
	PathStyle       bool   `json:"path_style"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`
}

// NewS3Client builds an S3 client from cfg. optFns are applied after the
// settings derived from cfg.
func NewS3Client(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	fns := make([]func(*s3.Options), 0, len(optFns)+1)
	fns = append(fns, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	fns = append(fns, optFns...)
	return s3.NewFromConfig(awsCfg, fns...), nil
}

// S3Source is a log stored as a CSV object in an S3 bucket.
type S3Source struct {
	Client  *s3.Client
	Bucket  string
	Key     string
	Columns Columns
}

// Load downloads and parses the object. A missing object yields ErrSourceNotFound.
func (s *S3Source) Load(ctx context.Context) ([]markov.Observation, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.Bucket, Key: &s.Key})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s)
		}
		return nil, fmt.Errorf("could not get %s: %w", s, err)
	}
	defer func() { _ = out.Body.Close() }()

	obs, err := ReadCSV(out.Body, s.Columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s, err)
	}
	return obs, nil
}

// Save uploads obs as a CSV object, replacing any existing object.
func (s *S3Source) Save(ctx context.Context, obs []markov.Observation) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, obs, s.Columns); err != nil {
		return fmt.Errorf("failed to encode observations: %w", err)
	}
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.Bucket,
		Key:         &s.Key,
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("could not put %s: %w", s, err)
	}
	return nil
}

func (s *S3Source) String() string { return "s3://" + s.Bucket + "/" + s.Key }
