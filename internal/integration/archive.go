package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

var ErrAudioNotFound = errors.New("audio not found")

// AudioArchive keeps the audio of finished sessions.
type AudioArchive interface {
	Store(ctx context.Context, key string, data []byte, contentType string) error
	Fetch(ctx context.Context, key string) (io.ReadCloser, int64, string, error)
	Presign(ctx context.Context, key string) (string, error)
}

type minioArchive struct {
	client *minio.Client
	bucket string
	region string
	expiry time.Duration
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Timeout   time.Duration
	URLExpiry time.Duration
}

func NewMinIOArchive(opts MinIOOptions, logger zerolog.Logger) (AudioArchive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	expiry := opts.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	archive := &minioArchive{
		client: client,
		bucket: opts.Bucket,
		region: opts.Region,
		expiry: expiry,
		logger: logger,
	}

	// A storage outage at startup must not stop the bridge; the bucket is
	// ensured again on first use.
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := archive.ensureBucket(ctx); err != nil {
		logger.Error().Err(err).
			Str("endpoint", opts.Endpoint).
			Str("bucket", opts.Bucket).
			Msg("MinIO not ready during startup, will retry on demand")
	}

	logger.Info().
		Str("endpoint", opts.Endpoint).
		Str("bucket", opts.Bucket).
		Bool("ssl", opts.UseSSL).
		Msg("Connected to MinIO")

	return archive, nil
}

func (a *minioArchive) ensureBucket(ctx context.Context) error {
	a.ensureMu.Lock()
	defer a.ensureMu.Unlock()
	if a.bucketEnsured {
		return nil
	}

	backoff := 500 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("minio not ready: %w", err)
		}

		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			sleep(ctx, backoff)
			continue
		}

		if !exists {
			if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
				sleep(ctx, backoff)
				continue
			}
			a.logger.Info().Str("bucket", a.bucket).Msg("Created new bucket")
		}

		a.bucketEnsured = true
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (a *minioArchive) Store(ctx context.Context, key string, data []byte, contentType string) error {
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}

	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload audio: %w", err)
	}

	a.logger.Debug().
		Str("bucket", a.bucket).
		Str("key", key).
		Str("etag", info.ETag).
		Int("size", len(data)).
		Msg("Audio uploaded to MinIO")

	return nil
}

func (a *minioArchive) Fetch(ctx context.Context, key string) (io.ReadCloser, int64, string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return nil, 0, "", err
	}

	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, 0, "", ErrAudioNotFound
		}
		return nil, 0, "", fmt.Errorf("failed to stat audio: %w", err)
	}

	object, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to get audio: %w", err)
	}

	return object, info.Size, info.ContentType, nil
}

func (a *minioArchive) Presign(ctx context.Context, key string) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}

	url, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// AudioKey places a session's audio under YYYY/MM/<session>.<ext>.
func AudioKey(session, format string, at time.Time) string {
	return fmt.Sprintf("%d/%02d/%s.%s", at.Year(), at.Month(), session, AudioExtension(format))
}

// AudioExtension maps a recorder format (a mime type such as
// "audio/wav" or "audio/ogg;codecs=opus") to a file extension.
func AudioExtension(format string) string {
	base := strings.ToLower(strings.TrimSpace(format))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimPrefix(base, "audio/")

	switch base {
	case "wav", "wave", "x-wav", "vnd.wave":
		return "wav"
	case "ogg", "opus":
		return "ogg"
	case "webm":
		return "webm"
	case "pcm", "l16", "raw":
		return "pcm"
	default:
		return "bin"
	}
}

// ContentType is the stored content type for a recorder format.
func ContentType(format string) string {
	switch AudioExtension(format) {
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
