// Package filestore indexes project documents kept in an S3 bucket. Objects are filed as
// <prefix><project display key>/<file>; the folder name is matched against the display key
// case-insensitively.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
	"github.com/denisok6893-rgb/estatebot/internal/metrics"
)

// ErrNotConfigured is returned by NewS3 when no bucket is set.
var ErrNotConfigured = errors.New("file store bucket not configured")

type Config struct {
	Bucket string `koanf:"bucket" yaml:"bucket"`
	Region string `koanf:"region" yaml:"region"`
	Prefix string `koanf:"prefix" yaml:"prefix"`
	// DefaultExt is appended to file names that have no extension.
	DefaultExt string `koanf:"default_ext" yaml:"default_ext"`
	// RefreshInterval re-lists the bucket in the background; zero lists it once on first use.
	RefreshInterval time.Duration `koanf:"refresh_interval" yaml:"refresh_interval"`
	Breaker         BreakerConfig `koanf:"breaker" yaml:"breaker"`
}

func DefaultConfig() Config {
	return Config{
		Region:          "us-east-1",
		DefaultExt:      ".pdf",
		RefreshInterval: time.Hour,
		Breaker:         BreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second},
	}
}

// ObjectAPI is the slice of the S3 client the index uses.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Index struct {
	client  ObjectAPI
	cfg     Config
	breaker *Breaker
	log     *slog.Logger

	mu          sync.RWMutex
	folders     map[string][]domain.Document
	refreshedAt time.Time
}

// NewS3 builds an index over the configured bucket using the default AWS credential chain.
func NewS3(ctx context.Context, cfg Config, log *slog.Logger) (*Index, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewIndex(s3.NewFromConfig(awsCfg), cfg, log), nil
}

func NewIndex(client ObjectAPI, cfg Config, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "filestore"))
	return &Index{
		client:  client,
		cfg:     cfg,
		breaker: NewBreaker("s3:"+cfg.Bucket, cfg.Breaker, log),
		log:     log,
	}
}

func folderKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Refresh re-lists the bucket and swaps the index in one go.
func (x *Index) Refresh(ctx context.Context) error {
	folders := make(map[string][]domain.Document)
	p := s3.NewListObjectsV2Paginator(x.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(x.cfg.Bucket),
		Prefix: aws.String(x.cfg.Prefix),
	})

	objects := 0
	for p.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := x.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			page, err = p.NextPage(ctx)
			return err
		})
		if err != nil {
			metrics.RecordFileStoreCall("list", callStatus(err))
			return fmt.Errorf("list bucket %s: %w", x.cfg.Bucket, err)
		}
		metrics.RecordFileStoreCall("list", "ok")

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, x.cfg.Prefix)
			folder, rest, ok := strings.Cut(rel, "/")
			if !ok || strings.TrimSpace(folder) == "" || rest == "" || strings.HasSuffix(rest, "/") {
				continue
			}
			name := path.Base(rest)
			if path.Ext(name) == "" {
				name += x.cfg.DefaultExt
			}
			fk := folderKey(folder)
			folders[fk] = append(folders[fk], domain.Document{
				Key:  key,
				Name: name,
				Size: aws.ToInt64(obj.Size),
			})
			objects++
		}
	}

	for _, docs := range folders {
		sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	}

	x.mu.Lock()
	x.folders = folders
	x.refreshedAt = time.Now()
	x.mu.Unlock()

	x.log.Info("index refreshed", slog.Int("folders", len(folders)), slog.Int("objects", objects))
	return nil
}

// Watch refreshes the index now and then every interval until ctx is done. A failed
// refresh keeps the previous index and is retried on the next tick. A non-positive
// interval refreshes once.
func (x *Index) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		if err := x.Refresh(ctx); err != nil && ctx.Err() == nil {
			x.log.Warn("index refresh failed", slog.String("error", err.Error()))
		}
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := x.Refresh(ctx); err != nil && ctx.Err() == nil {
			x.log.Warn("index refresh failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Search returns the documents in folder, matched on the trimmed, lowercased name.
func (x *Index) Search(folder string) []domain.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()
	docs := x.folders[folderKey(folder)]
	if len(docs) == 0 {
		return nil
	}
	return append([]domain.Document(nil), docs...)
}

// Find is Search for a project, refreshing first if the index was never loaded.
func (x *Index) Find(ctx context.Context, displayKey string) ([]domain.Document, error) {
	if x.RefreshedAt().IsZero() {
		if err := x.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return x.Search(displayKey), nil
}

// SearchFiles lists indexed documents whose folder and file name contain keyword,
// case-insensitively, ordered by key and capped at limit.
func (x *Index) SearchFiles(ctx context.Context, keyword string, limit int) ([]domain.Document, error) {
	if x.RefreshedAt().IsZero() {
		if err := x.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return nil, nil
	}

	x.mu.RLock()
	var out []domain.Document
	for _, docs := range x.folders {
		for _, d := range docs {
			rel := strings.TrimPrefix(d.Key, x.cfg.Prefix)
			if strings.Contains(strings.ToLower(rel), kw) || strings.Contains(strings.ToLower(d.Name), kw) {
				out = append(out, d)
			}
		}
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Open streams one object. The caller closes the reader.
func (x *Index) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var out *s3.GetObjectOutput
	err := x.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = x.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(x.cfg.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
	metrics.RecordFileStoreCall("get", callStatus(err))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

func (x *Index) RefreshedAt() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.refreshedAt
}

// Folders reports how many project folders are indexed.
func (x *Index) Folders() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.folders)
}

func (x *Index) BreakerState() BreakerState { return x.breaker.State() }

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOpen):
		return "rejected"
	default:
		return "error"
	}
}
