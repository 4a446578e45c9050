// utils/r2.go
package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
	URLTTL          time.Duration
}

// IconResolver maps badge icon references (R2 object keys) to loadable URLs:
// absolute URLs pass through, a CDN base wins when set, otherwise a
// presigned R2 GET is issued, and without R2 credentials the key is returned.
type IconResolver struct {
	cdnBaseURL string
	bucket     string
	ttl        time.Duration
	presigner  *s3.PresignClient
}

func NewIconResolver(ctx context.Context, cfg R2Config) (*IconResolver, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.Bucket == "" {
		return newIconResolver(cfg, nil), nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
	})
	return newIconResolver(cfg, client), nil
}

func newIconResolver(cfg R2Config, client *s3.Client) *IconResolver {
	r := &IconResolver{
		cdnBaseURL: strings.TrimRight(cfg.CDNBaseURL, "/"),
		bucket:     cfg.Bucket,
		ttl:        cfg.URLTTL,
	}
	if r.ttl <= 0 {
		r.ttl = time.Hour
	}
	if client != nil {
		r.presigner = s3.NewPresignClient(client)
	}
	return r
}

func (r *IconResolver) IconURL(ctx context.Context, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return ref
	}
	key := strings.TrimLeft(ref, "/")

	if r.cdnBaseURL != "" {
		return fmt.Sprintf("%s/%s", r.cdnBaseURL, key)
	}

	if r.presigner != nil {
		req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(r.ttl))
		if err == nil {
			return req.URL
		}
		logrus.WithFields(logrus.Fields{"component": "icons", "key": key}).
			WithError(err).Warn("⚠️ failed to presign badge icon")
	}
	return ref
}
