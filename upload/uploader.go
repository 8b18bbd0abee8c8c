package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/google/uuid"
)

// operationName labels every upload in logs, events and metrics. File names
// stay out of it since they come from clients.
const operationName = "upload"

// Config configures an Uploader
type Config struct {
	Bucket string       `yaml:"bucket"`
	Prefix string       `yaml:"prefix"`
	Policy Policy       `yaml:"policy"`
	Retry  retry.Config `yaml:"retry"`
}

// Result locates an uploaded object
type Result struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Uploader validates files and writes them to an ObjectStore, retrying failed writes
type Uploader struct {
	store  ObjectStore
	config Config
	logger logger.Logger
	opts   []retry.Option
}

// NewUploader creates an uploader. opts apply to the executor of every upload.
func NewUploader(store ObjectStore, config Config, l logger.Logger, opts ...retry.Option) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("uploader requires an object store")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("uploader requires a bucket")
	}
	if err := config.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upload retry config: %w", err)
	}
	config.Policy = config.Policy.withDefaults()
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Uploader{
		store:  store,
		config: config,
		logger: l,
		opts:   append([]retry.Option{retry.WithLogger(l)}, opts...),
	}, nil
}

// Policy returns the effective upload policy
func (u *Uploader) Policy() Policy {
	return u.config.Policy
}

// Upload validates file and stores body under {prefix}/{uuid}{ext}. body is read
// from the start on every attempt.
func (u *Uploader) Upload(ctx context.Context, file FileInfo, body io.ReaderAt) (*Result, error) {
	if err := Validate(file, u.config.Policy); err != nil {
		return nil, err
	}

	key := u.objectKey(file.Name)

	// Uploads are independent, so each gets its own executor
	executor, err := retry.NewExecutor(u.config.Retry, u.opts...)
	if err != nil {
		return nil, err
	}

	err = executor.Do(ctx, operationName, func(ctx context.Context) error {
		reader := io.NewSectionReader(body, 0, file.Size)
		return u.store.Put(ctx, u.config.Bucket, key, reader, file.Size, file.ContentType)
	})
	if err != nil {
		u.logger.Printf("Upload of %s to %s/%s failed: %v", file.Name, u.config.Bucket, key, err)
		return nil, err
	}

	u.logger.Printf("Uploaded %s (%d bytes) to %s/%s", file.Name, file.Size, u.config.Bucket, key)
	return &Result{
		Bucket:      u.config.Bucket,
		Path:        key,
		URL:         u.store.URL(u.config.Bucket, key),
		Size:        file.Size,
		ContentType: file.ContentType,
	}, nil
}

func (u *Uploader) objectKey(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	key := uuid.NewString() + ext

	prefix := strings.Trim(u.config.Prefix, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}
