package utils

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIconURLWithoutStorage(t *testing.T) {
	r, err := NewIconResolver(context.Background(), R2Config{})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "", r.IconURL(ctx, ""))
	assert.Equal(t, "badges/first-step.svg", r.IconURL(ctx, "badges/first-step.svg"))
	assert.Equal(t, "https://img.example.com/a.png", r.IconURL(ctx, "https://img.example.com/a.png"))
}

func TestIconURLPrefersCDN(t *testing.T) {
	r, err := NewIconResolver(context.Background(), R2Config{CDNBaseURL: "https://cdn.coach.app/"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "https://cdn.coach.app/badges/first-step.svg", r.IconURL(ctx, "badges/first-step.svg"))
	assert.Equal(t, "https://cdn.coach.app/badges/first-step.svg", r.IconURL(ctx, "/badges/first-step.svg"))
	assert.Equal(t, "http://elsewhere/x.svg", r.IconURL(ctx, "http://elsewhere/x.svg"))
}

func TestIconURLPresignsR2Objects(t *testing.T) {
	client := s3.New(s3.Options{
		Region:       "auto",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String("https://acct.r2.cloudflarestorage.com"),
		UsePathStyle: true,
	})
	r := newIconResolver(R2Config{Bucket: "coach-assets", URLTTL: 15 * time.Minute}, client)

	raw := r.IconURL(context.Background(), "badges/week-warrior.svg")
	require.True(t, strings.HasPrefix(raw, "https://acct.r2.cloudflarestorage.com/coach-assets/badges/week-warrior.svg?"), raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Equal(t, "900", q.Get("X-Amz-Expires"))
	assert.Contains(t, q.Get("X-Amz-Credential"), "AKIDEXAMPLE")
}

func TestNewIconResolverWithCredentials(t *testing.T) {
	r, err := NewIconResolver(context.Background(), R2Config{
		AccountID:       "acct",
		AccessKeyID:     "AKIDEXAMPLE",
		AccessKeySecret: "secret",
		Bucket:          "coach-assets",
	})
	require.NoError(t, err)
	require.NotNil(t, r.presigner)
	assert.Equal(t, time.Hour, r.ttl)

	raw := r.IconURL(context.Background(), "badges/x.svg")
	assert.Contains(t, raw, "acct.r2.cloudflarestorage.com/coach-assets/badges/x.svg")
	assert.Contains(t, raw, "X-Amz-Signature=")
}
